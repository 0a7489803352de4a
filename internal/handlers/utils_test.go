package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemreport/apiserver/internal/services"
	"github.com/stemreport/apiserver/internal/store"
	"github.com/stemreport/apiserver/types"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		page       int
		limit      int
		offset     int
		shouldFail bool
	}{
		{query: "", page: 1, limit: defaultLimit, offset: 0},
		{query: "page=3&limit=5", page: 3, limit: 5, offset: 10},
		{query: "per_page=7", page: 1, limit: 7, offset: 0},
		{query: "limit=1000", page: 1, limit: maxLimit, offset: 0},
		{query: "page=0", shouldFail: true},
		{query: "limit=abc", shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/reports?"+tt.query, nil)
			page, limit, offset, err := parsePagination(r)
			if tt.shouldFail {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.limit, limit)
			assert.Equal(t, tt.offset, offset)
		})
	}
}

func TestWriteServiceErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: summary failed on required", services.ErrValidation), http.StatusBadRequest},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{services.ErrUnauthorized, http.StatusForbidden},
		{store.ErrNotFound, http.StatusNotFound},
		{services.ErrInvalidTransition, http.StatusConflict},
		{store.ErrConflict, http.StatusConflict},
		{services.ErrStorageDisabled, http.StatusServiceUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			writeServiceError(rec, r, tt.err, "failed")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	writeServiceError(rec, r, errors.New("pq: password authentication failed"), "failed to list reports")
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.Contains(t, rec.Body.String(), "failed to list reports")
}

func TestReadFileLimited(t *testing.T) {
	data, err := readFileLimited(strings.NewReader("abcd"), 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	_, err = readFileLimited(strings.NewReader("abcde"), 4)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := bearerToken(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Basic abc")
	_, err = bearerToken(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer abc.def")
	token, err := bearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)
}

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("secret")
	user := types.User{ID: "u-1", Role: types.RoleNegeri}

	token, err := issueToken(user, secret, time.Hour)
	require.NoError(t, err)

	claims, err := parseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, types.RoleNegeri, claims.Role)

	_, err = parseToken(token, []byte("other"))
	assert.Error(t, err)

	expired, err := issueToken(user, secret, -time.Minute)
	require.NoError(t, err)
	_, err = parseToken(expired, secret)
	assert.Error(t, err)
}

func TestPrincipalFromContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := principalFromContext(r.Context())
	assert.Error(t, err)

	ctx := withPrincipal(r.Context(), types.Principal{UserID: "u-1", Role: types.RoleAdmin})
	p, err := principalFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, p.Role)
}

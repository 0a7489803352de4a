package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemreport/apiserver/config"
)

type mapBackend struct {
	objects map[string][]byte
	types   map[string]string
	ensured bool
}

func (m *mapBackend) EnsureBucket(context.Context) error {
	m.ensured = true
	return nil
}

func (m *mapBackend) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *mapBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mapBackend) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *mapBackend) Bucket() string { return "evidence" }

func TestStorageDelegates(t *testing.T) {
	backend := &mapBackend{objects: map[string][]byte{}, types: map[string]string{}}
	s := NewStorage(backend)
	ctx := context.Background()

	require.NoError(t, s.EnsureBucket(ctx))
	assert.True(t, backend.ensured)

	require.NoError(t, s.Put(ctx, "reports/r1/a1/photo.jpg", bytes.NewReader([]byte("jpeg")), 4, "image/jpeg"))
	assert.Equal(t, "image/jpeg", backend.types["reports/r1/a1/photo.jpg"])

	rc, err := s.Get(ctx, "reports/r1/a1/photo.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	require.NoError(t, s.Delete(ctx, "reports/r1/a1/photo.jpg"))
	assert.Empty(t, backend.objects)
	assert.Equal(t, "evidence", s.Bucket())
}

func TestOpenBackends(t *testing.T) {
	s, err := Open(context.Background(), config.StorageConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.StorageConfig{Backend: config.BackendMinio})
	assert.ErrorContains(t, err, "minio endpoint is required")
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="photo camp.jpg"`, contentDisposition("reports/r1/a1/photo camp.jpg"))
}

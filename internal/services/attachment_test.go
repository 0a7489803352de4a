package services

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemreport/apiserver/types"
)

func TestAddAndOpenAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.submit(t, f.ppd, nil)

	updated, err := f.reports.AddAttachment(ctx, f.ppd, report.ID, AttachmentUpload{
		Filename:    `C:\evidence\photo.jpg`,
		ContentType: "image/jpeg",
		Data:        []byte("jpeg bytes"),
	})
	require.NoError(t, err)
	require.Len(t, updated.Attachments, 1)

	attachment := updated.Attachments[0]
	assert.Equal(t, "photo.jpg", attachment.Filename)
	assert.Equal(t, int64(10), attachment.Size)
	assert.Len(t, attachment.SHA256, 64)
	assert.True(t, strings.HasPrefix(attachment.ObjectKey, "reports/"+report.ID+"/"))

	meta, rc, err := f.reports.OpenAttachment(ctx, f.negeri, report.ID, attachment.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
	assert.Equal(t, "image/jpeg", meta.ContentType)

	_, _, err = f.reports.OpenAttachment(ctx, f.negeri, report.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachmentRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.submit(t, f.ppd, nil)
	upload := AttachmentUpload{Filename: "a.pdf", Data: []byte("pdf")}

	_, err := f.reports.AddAttachment(ctx, f.user, report.ID, upload)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.reports.AddAttachment(ctx, f.ppd, report.ID, AttachmentUpload{Filename: "big.bin", Data: make([]byte, 2048)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.reports.AddAttachment(ctx, f.ppd, report.ID, AttachmentUpload{Filename: "empty.txt"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.reports.Review(ctx, f.admin, report.ID, ReviewInput{Decision: types.DecisionApprove})
	require.NoError(t, err)

	_, err = f.reports.AddAttachment(ctx, f.ppd, report.ID, upload)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, f.objects.objects)
}

func TestAttachmentsDisabledWithoutStorage(t *testing.T) {
	f := newFixture(t)
	reports := NewReportService(f.store.Reports(), f.store.Planning(), f.store.Users(), zerolog.Nop())
	report := f.submit(t, f.ppd, nil)

	_, err := reports.AddAttachment(context.Background(), f.ppd, report.ID, AttachmentUpload{Filename: "a.txt", Data: []byte("a")})
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

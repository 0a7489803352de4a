package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stemreport/apiserver/internal/access"
	"github.com/stemreport/apiserver/types"
)

// ErrStorageDisabled is returned by attachment operations when no object
// storage backend is configured.
var ErrStorageDisabled = errors.New("attachment storage is not configured")

// ObjectStore is the subset of object storage used for report evidence.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// AttachmentUpload is one evidence file read from the client.
type AttachmentUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AddAttachment stores an evidence file and links it to the report. The
// submitter or an Admin may attach files until the report is approved.
func (s *ReportService) AddAttachment(ctx context.Context, actor types.Principal, reportID string, upload AttachmentUpload) (types.Report, error) {
	if s.storage == nil {
		return types.Report{}, ErrStorageDisabled
	}
	if !access.Allowed(actor.Role, access.EditReport) {
		return types.Report{}, ErrUnauthorized
	}
	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return types.Report{}, err
	}
	relation, err := s.relation(ctx, actor, report)
	if err != nil {
		return types.Report{}, err
	}
	if !access.Can(actor.Role, access.EditReport, relation) {
		return types.Report{}, ErrUnauthorized
	}
	if report.Status == types.StatusApproved {
		return types.Report{}, ErrInvalidTransition
	}

	filename := sanitizeFilename(upload.Filename)
	if filename == "" {
		return types.Report{}, validationf("filename is required")
	}
	if len(upload.Data) == 0 {
		return types.Report{}, validationf("empty attachment")
	}
	if s.maxBytes > 0 && int64(len(upload.Data)) > s.maxBytes {
		return types.Report{}, validationf("attachment exceeds %d bytes", s.maxBytes)
	}
	contentType := strings.TrimSpace(upload.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	hash := sha256.Sum256(upload.Data)
	attachment := types.Attachment{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(upload.Data)),
		SHA256:      hex.EncodeToString(hash[:]),
		UploadedBy:  actor.UserID,
		UploadedAt:  time.Now().UTC(),
	}
	attachment.ObjectKey = attachmentKey(report.ID, attachment.ID, filename)

	if err := s.storage.Put(ctx, attachment.ObjectKey, bytes.NewReader(upload.Data), attachment.Size, contentType); err != nil {
		return types.Report{}, fmt.Errorf("store attachment: %w", err)
	}

	updated, err := s.reports.AddAttachment(ctx, report.ID, attachment)
	if err != nil {
		// Without the report link the object is unreferenced.
		if delErr := s.storage.Delete(ctx, attachment.ObjectKey); delErr != nil {
			s.logger.Warn().Err(delErr).Str("object_key", attachment.ObjectKey).Msg("failed to remove orphaned attachment")
		}
		return types.Report{}, transitionError(err)
	}

	s.logger.Info().
		Str("report_id", report.ID).
		Str("attachment_id", attachment.ID).
		Str("actor", actor.UserID).
		Int64("size", attachment.Size).
		Msg("report attachment added")
	return updated, nil
}

// OpenAttachment returns the metadata and content of an attachment of a
// report the caller may see. The caller closes the reader.
func (s *ReportService) OpenAttachment(ctx context.Context, actor types.Principal, reportID, attachmentID string) (types.Attachment, io.ReadCloser, error) {
	if s.storage == nil {
		return types.Attachment{}, nil, ErrStorageDisabled
	}
	report, err := s.Get(ctx, actor, reportID)
	if err != nil {
		return types.Attachment{}, nil, err
	}
	for _, attachment := range report.Attachments {
		if attachment.ID != attachmentID {
			continue
		}
		rc, err := s.storage.Get(ctx, attachment.ObjectKey)
		if err != nil {
			return types.Attachment{}, nil, err
		}
		return attachment, rc, nil
	}
	return types.Attachment{}, nil, ErrNotFound
}

func attachmentKey(reportID, attachmentID, filename string) string {
	return path.Join("reports", reportID, attachmentID, filename)
}

// sanitizeFilename keeps the base name of a client-side path.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

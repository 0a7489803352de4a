package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stemreport/apiserver/internal/services"
	"github.com/stemreport/apiserver/types"
)

const (
	formFieldFile      = "file"
	maxMultipartMemory = 32 << 20

	scopeMine = "mine"
	scopeAll  = "all"
)

// ReportHandler provides HTTP handlers for the report lifecycle.
type ReportHandler struct {
	reportService  *services.ReportService
	maxUploadBytes int64
}

// NewReportHandler constructs a handler over the lifecycle engine.
func NewReportHandler(reportService *services.ReportService, maxUploadBytes int64) *ReportHandler {
	return &ReportHandler{
		reportService:  reportService,
		maxUploadBytes: maxUploadBytes,
	}
}

// ReportRouter registers report routes on the given router. Every route
// requires an authenticated caller.
func ReportRouter(r chi.Router, handler *ReportHandler) {
	r.Get("/", handler.ListReports)
	r.Post("/", handler.SubmitReport)
	r.Route("/{reportID}", func(r chi.Router) {
		r.Get("/", handler.GetReport)
		r.Put("/", handler.EditReport)
		r.Post("/review", handler.ReviewReport)
		r.Get("/reviews", handler.ListReviews)
		r.Post("/attachments", handler.UploadAttachment)
		r.Get("/attachments/{attachmentID}", handler.DownloadAttachment)
	})
}

// ListReports lists the caller's own reports, or with scope=all every
// report in the caller's review scope.
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := reportFilterFromQuery(r)

	var items []types.Report
	var total int
	switch scope := strings.TrimSpace(r.URL.Query().Get("scope")); scope {
	case "", scopeMine:
		items, total, err = h.reportService.ListOwn(r.Context(), principal, filter, offset, limit)
	case scopeAll:
		items, total, err = h.reportService.ListAll(r.Context(), principal, filter, offset, limit)
	default:
		writeError(w, http.StatusBadRequest, "invalid scope")
		return
	}
	if err != nil {
		writeServiceError(w, r, err, "failed to list reports")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[types.Report]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *ReportHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req services.SubmitInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reportService.Submit(r.Context(), principal, req)
	if err != nil {
		writeServiceError(w, r, err, "failed to submit report")
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	report, err := h.reportService.Get(r.Context(), principal, chi.URLParam(r, "reportID"))
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandler) EditReport(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req types.ReportFields
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reportService.Edit(r.Context(), principal, chi.URLParam(r, "reportID"), req)
	if err != nil {
		writeServiceError(w, r, err, "failed to edit report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandler) ReviewReport(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req services.ReviewInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reportService.Review(r.Context(), principal, chi.URLParam(r, "reportID"), req)
	if err != nil {
		writeServiceError(w, r, err, "failed to review report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	reviews, err := h.reportService.Reviews(r.Context(), principal, chi.URLParam(r, "reportID"))
	if err != nil {
		writeServiceError(w, r, err, "failed to list reviews")
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// UploadAttachment accepts one multipart file field named "file".
func (h *ReportHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	upload, err := h.parseAttachment(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reportService.AddAttachment(r.Context(), principal, chi.URLParam(r, "reportID"), upload)
	if err != nil {
		writeServiceError(w, r, err, "failed to upload attachment")
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (h *ReportHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	attachment, rc, err := h.reportService.OpenAttachment(r.Context(), principal, chi.URLParam(r, "reportID"), chi.URLParam(r, "attachmentID"))
	if err != nil {
		writeServiceError(w, r, err, "failed to open attachment")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", attachment.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (h *ReportHandler) parseAttachment(w http.ResponseWriter, r *http.Request) (services.AttachmentUpload, error) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+maxMultipartMemory)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return services.AttachmentUpload{}, errors.New("invalid multipart form")
	}

	files := r.MultipartForm.File[formFieldFile]
	if len(files) == 0 {
		return services.AttachmentUpload{}, errors.New("file is required")
	}
	if len(files) > 1 {
		return services.AttachmentUpload{}, errors.New("only one file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return services.AttachmentUpload{}, fmt.Errorf("failed to read file: %w", err)
	}
	limit := h.maxUploadBytes
	if limit <= 0 {
		limit = fileHeader.Size
	}
	data, err := readFileLimited(file, limit)
	_ = file.Close()
	if err != nil {
		return services.AttachmentUpload{}, err
	}

	return services.AttachmentUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func reportFilterFromQuery(r *http.Request) types.ReportFilter {
	q := r.URL.Query()
	return types.ReportFilter{
		InitiativeID: strings.TrimSpace(q.Get("initiativeId")),
		Period:       strings.TrimSpace(q.Get("period")),
		Status:       types.ReportStatus(strings.TrimSpace(q.Get("status"))),
	}
}

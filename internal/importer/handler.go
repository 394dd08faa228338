package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockd/internal/platform/httpx"
)

const multipartMemory = 8 << 20

// Handler exposes the upload and job status endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	maxBytes int64
}

// NewHandler constructs import handler. maxBytes bounds the request body.
func NewHandler(logger *slog.Logger, service *Service, maxBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New(), maxBytes: maxBytes}
}

// MountRoutes registers import routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleSubmit)
	r.Get("/{id}", h.handleStatus)
}

type uploadForm struct {
	Type string `validate:"required,oneof=products stocks"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Problem(w, http.StatusRequestEntityTooLarge, "Upload Too Large", err.Error())
			return
		}
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	form := uploadForm{Type: r.FormValue("type")}
	if err := h.validate.Struct(form); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: type must be products or stocks", httpx.ErrBadRequest))
		return
	}
	kind, err := ParseKind(form.Type)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: file is required", httpx.ErrBadRequest))
		return
	}
	defer file.Close()

	job, err := h.service.Submit(r.Context(), Upload{Kind: kind, FileName: header.Filename, Body: file})
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	case errors.Is(err, ErrUploadTooLarge):
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Upload Too Large", err.Error())
		return
	case err != nil:
		h.logger.Error("submit import failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if !job.Stage.Done() {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, job)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

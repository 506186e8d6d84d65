package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"diffatours/internal/capacity/service"
	httputil "diffatours/pkg/http"
	"diffatours/pkg/logger"
	"diffatours/pkg/model"
)

type AdmissionHandler struct {
	service service.AdmissionService
	log     *logger.Logger
}

func NewAdmissionHandler(service service.AdmissionService, log *logger.Logger) *AdmissionHandler {
	return &AdmissionHandler{
		service: service,
		log:     log,
	}
}

// Reserve admits the whole order or nothing. A rejected order is answered
// with 409 and the failing line items in the error details.
func (h *AdmissionHandler) Reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.AdmissionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Reserve", err)
		return
	}

	result, err := h.service.CheckAndReserveWithRetry(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Reserve", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Reserve", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AdmissionHandler) Release(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.ReleaseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Release", err)
		return
	}

	if err := h.service.Release(r.Context(), &req); err != nil {
		h.writeError(w, "Release", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *AdmissionHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/admissions", h.Reserve)
	router.POST("/api/v1/admissions/release", h.Release)
}

func (h *AdmissionHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"diffatours/internal/capacity/service"
	"diffatours/pkg/availability"
	"diffatours/pkg/caldate"
	"diffatours/pkg/calendar"
	apperrors "diffatours/pkg/errors"
	httputil "diffatours/pkg/http"
	"diffatours/pkg/logger"
	"diffatours/pkg/model"
)

// OperatorHeader carries the operator identity forwarded by the gateway.
const OperatorHeader = "X-Operator-ID"

type CapacityHandler struct {
	service service.CapacityService
	log     *logger.Logger
	now     func() time.Time
}

func NewCapacityHandler(service service.CapacityService, log *logger.Logger) *CapacityHandler {
	return &CapacityHandler{
		service: service,
		log:     log,
		now:     time.Now,
	}
}

func (h *CapacityHandler) GetMonth(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	excursionID := ps.ByName("excursion_id")

	month, err := httputil.QueryInt(r, "month")
	if err != nil {
		h.writeError(w, "GetMonth", err)
		return
	}
	year, err := httputil.QueryInt(r, "year")
	if err != nil {
		h.writeError(w, "GetMonth", err)
		return
	}

	query := r.URL.Query()
	weekdays := strings.TrimSpace(query.Get("weekdays"))
	today := strings.TrimSpace(query.Get("today"))

	var rule availability.WeeklyRule
	if weekdays != "" {
		rule, err = availability.ParseWeeklyRule(weekdays)
		if err != nil {
			h.writeError(w, "GetMonth", apperrors.InvalidInput("invalid weekdays parameter: "+err.Error()))
			return
		}
	}
	if today != "" && !caldate.Valid(today) {
		h.writeError(w, "GetMonth", apperrors.InvalidDate(today))
		return
	}

	days, err := h.service.GetMonth(r.Context(), excursionID, month, year)
	if err != nil {
		h.writeError(w, "GetMonth", err)
		return
	}

	view := calendar.MonthView{
		ExcursionID: excursionID,
		Year:        year,
		Month:       month,
		Days:        days,
	}
	if weekdays != "" || today != "" {
		if today == "" {
			today = caldate.Format(h.now().UTC())
		}
		view.Weekdays = rule.Names()
		view.Today = today
		view.Cells = calendar.Overlay(days, today, rule)
	}

	if err := httputil.WriteSuccess(w, view); err != nil {
		h.log.Error("failed to write success response", "handler", "GetMonth", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CapacityHandler) GetDay(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	day, err := h.service.GetDay(r.Context(), ps.ByName("excursion_id"), ps.ByName("date"))
	if err != nil {
		h.writeError(w, "GetDay", err)
		return
	}

	if err := httputil.WriteSuccess(w, day); err != nil {
		h.log.Error("failed to write success response", "handler", "GetDay", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CapacityHandler) List(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	operator, ok := h.requireOperator(w, r, "List")
	if !ok {
		return
	}

	excursionID := ps.ByName("excursion_id")
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	records, err := h.service.List(r.Context(), excursionID, from, to)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	h.log.Debug("Capacity listed",
		"operator_id", operator,
		"excursion_id", excursionID,
		"count", len(records),
	)
	if err := httputil.WriteList(w, records, len(records)); err != nil {
		h.log.Error("failed to write list response", "handler", "List", "operation", "WriteList", "error", err)
	}
}

func (h *CapacityHandler) Upsert(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	operator, ok := h.requireOperator(w, r, "Upsert")
	if !ok {
		return
	}

	var update model.CapacityUpdate
	if err := httputil.DecodeJSON(r, &update); err != nil {
		h.writeError(w, "Upsert", err)
		return
	}

	record, err := h.service.Upsert(r.Context(), ps.ByName("excursion_id"), ps.ByName("date"), &update)
	if err != nil {
		h.writeError(w, "Upsert", err)
		return
	}

	h.log.Info("Capacity changed by operator",
		"operator_id", operator,
		"excursion_id", record.ExcursionID,
		"date", record.Date,
	)
	if err := httputil.WriteSuccess(w, record); err != nil {
		h.log.Error("failed to write success response", "handler", "Upsert", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CapacityHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	operator, ok := h.requireOperator(w, r, "Delete")
	if !ok {
		return
	}

	excursionID := ps.ByName("excursion_id")
	date := ps.ByName("date")

	if err := h.service.Delete(r.Context(), excursionID, date); err != nil {
		h.writeError(w, "Delete", err)
		return
	}

	h.log.Info("Capacity removed by operator",
		"operator_id", operator,
		"excursion_id", excursionID,
		"date", date,
	)
	httputil.WriteNoContent(w)
}

func (h *CapacityHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/excursions/:excursion_id/calendar", h.GetMonth)
	router.GET("/api/v1/excursions/:excursion_id/capacity", h.List)
	router.GET("/api/v1/excursions/:excursion_id/capacity/:date", h.GetDay)
	router.PUT("/api/v1/excursions/:excursion_id/capacity/:date", h.Upsert)
	router.DELETE("/api/v1/excursions/:excursion_id/capacity/:date", h.Delete)
}

func (h *CapacityHandler) requireOperator(w http.ResponseWriter, r *http.Request, handler string) (string, bool) {
	operator := strings.TrimSpace(r.Header.Get(OperatorHeader))
	if operator == "" {
		h.log.Warn("Admin request without operator identity",
			"handler", handler,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		h.writeError(w, handler, apperrors.Unauthorized("missing "+OperatorHeader+" header"))
		return "", false
	}
	return operator, true
}

func (h *CapacityHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

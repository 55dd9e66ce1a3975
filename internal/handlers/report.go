package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/assaytrack/apiserver/internal/services"
	"github.com/assaytrack/apiserver/types"
)

// ReportHandler serves report issuance, retrieval, and certification.
type ReportHandler struct {
	reportService *services.ReportService
}

func NewReportHandler(reportService *services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// ReportRouter registers the authenticated report routes. The caller
// wraps the router with auth middleware.
func ReportRouter(r chi.Router, reportService *services.ReportService) {
	handler := NewReportHandler(reportService)

	r.With(requireStaff).Post("/", handler.Create)
	r.Get("/", handler.List)
	r.Get("/{reportID}", handler.Get)
	r.Patch("/{reportID}/certification", handler.UpdateCertification)
}

// PublicReportRouter registers the unauthenticated verification surface.
// Lookup by code sits here too so QR scans work without a session; the
// service redacts client identity for anonymous callers.
func PublicReportRouter(r chi.Router, reportService *services.ReportService) {
	handler := NewReportHandler(reportService)

	r.Get("/verify/{code}", handler.Verify)
	r.Get("/code/{code}", handler.GetByCode)
}

// requireStaff rejects client-role callers; issuance is lab staff work.
func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromContext(r.Context())
		if identity.Anonymous() {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if identity.Role == types.RoleClient {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type CreateReportRequest struct {
	SampleID   int        `json:"sample_id"`
	Grade      float64    `json:"grade"`
	Unit       string     `json:"unit"`
	Notes      string     `json:"notes"`
	Certified  bool       `json:"certified"`
	ValidUntil *time.Time `json:"valid_until"`
}

// Create issues the certification report for a sample.
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	report, err := h.reportService.Create(r.Context(), services.CreateReportInput{
		SampleID:   req.SampleID,
		Grade:      req.Grade,
		Unit:       types.Unit(strings.ToUpper(strings.TrimSpace(req.Unit))),
		Notes:      req.Notes,
		Certified:  req.Certified,
		ValidUntil: req.ValidUntil,
	}, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

// List returns reports visible to the caller, newest first.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reports, total, err := h.reportService.List(r.Context(), identityFromContext(r.Context()), offset, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ReportListResponse{
		Reports: reports,
		Total:   total,
		Page:    page,
		Limit:   limit,
	})
}

type ReportListResponse struct {
	Reports []types.ReportView `json:"reports"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
}

// Get returns a report by id.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.reportService.GetByID(r.Context(), id, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// GetByCode returns a report by its code. Anonymous callers receive a
// redacted view.
func (h *ReportHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	view, err := h.reportService.GetByCode(r.Context(), code, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Verify checks a report code and optional hash. A missing report or a
// mismatched hash yields a negative result with status 200.
func (h *ReportHandler) Verify(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	result, err := h.reportService.Verify(r.Context(), code, r.URL.Query().Get("hash"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type UpdateCertificationRequest struct {
	Certified bool `json:"certified"`
}

// UpdateCertification toggles the certified flag on an issued report.
func (h *ReportHandler) UpdateCertification(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateCertificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.reportService.UpdateCertification(r.Context(), id, req.Certified, identityFromContext(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"certified": req.Certified})
}

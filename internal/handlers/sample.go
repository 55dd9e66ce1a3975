package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/assaytrack/apiserver/internal/services"
	"github.com/assaytrack/apiserver/internal/store"
	"github.com/assaytrack/apiserver/internal/tracking"
	"github.com/assaytrack/apiserver/types"
)

// maxUploadBytes caps attached document size at 25 MiB.
const maxUploadBytes = 25 << 20

// SampleHandler serves sample intake, lifecycle, and attachments.
type SampleHandler struct {
	sampleService   *services.SampleService
	documentService *services.DocumentService
}

func NewSampleHandler(sampleService *services.SampleService, documentService *services.DocumentService) *SampleHandler {
	return &SampleHandler{sampleService: sampleService, documentService: documentService}
}

// SampleRouter registers sample routes. The caller wraps the router with
// auth middleware.
func SampleRouter(r chi.Router, sampleService *services.SampleService, documentService *services.DocumentService) {
	handler := NewSampleHandler(sampleService, documentService)

	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Get("/code/{code}", handler.GetByCode)
	r.Route("/{sampleID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Patch("/", handler.Update)
		r.Delete("/", handler.Cancel)
		r.Get("/timeline", handler.Timeline)
		r.Post("/timeline", handler.AddTimelineEvent)
		r.Get("/documents", handler.ListDocuments)
		r.Post("/documents", handler.UploadDocument)
	})
}

type CreateSampleRequest struct {
	Mineral   string     `json:"mineral"`
	SiteName  string     `json:"site_name"`
	Unit      string     `json:"unit"`
	Mass      float64    `json:"mass"`
	Notes     string     `json:"notes"`
	Priority  int        `json:"priority"`
	ClientID  int        `json:"client_id"`
	AnalystID *int       `json:"analyst_id"`
	DueDate   *time.Time `json:"due_date"`
}

// Create registers a new sample. Clients always own what they submit;
// lab staff may register on a client's behalf via client_id.
func (h *SampleHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var req CreateSampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	ownerID := identity.UserID
	if req.ClientID > 0 && req.ClientID != identity.UserID {
		if identity.Role == types.RoleClient {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		ownerID = req.ClientID
	}

	sample, err := h.sampleService.Create(r.Context(), services.CreateSampleInput{
		Mineral:   types.Mineral(strings.ToUpper(strings.TrimSpace(req.Mineral))),
		SiteName:  strings.TrimSpace(req.SiteName),
		Unit:      types.Unit(strings.ToUpper(strings.TrimSpace(req.Unit))),
		Mass:      req.Mass,
		Notes:     req.Notes,
		Priority:  req.Priority,
		AnalystID: req.AnalystID,
		DueDate:   req.DueDate,
	}, ownerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sample)
}

// List returns samples visible to the caller, filtered and paginated.
// The search parameter accepts tracking input: a full numeric code with
// an optional check digit, a digit fragment, or a site name.
func (h *SampleHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := store.SampleFilter{
		Status:  types.SampleStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
		Mineral: types.Mineral(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("mineral")))),
	}
	if raw := r.URL.Query().Get("search"); strings.TrimSpace(raw) != "" {
		key, err := tracking.NormalizeTrackingInput(raw)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		filter.Search = key.Value
	}

	samples, total, err := h.sampleService.List(r.Context(), filter, identity, offset, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SampleListResponse{
		Samples: samples,
		Total:   total,
		Page:    page,
		Limit:   limit,
	})
}

type SampleListResponse struct {
	Samples []types.Sample `json:"samples"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
}

// Get returns a single sample by id.
func (h *SampleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "sampleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sample, err := h.sampleService.Get(r.Context(), id, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sample)
}

// GetByCode returns a single sample by tracking code.
func (h *SampleHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	sample, err := h.sampleService.GetByCode(r.Context(), code, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sample)
}

type UpdateSampleRequest struct {
	Mineral   *string    `json:"mineral"`
	SiteName  *string    `json:"site_name"`
	Status    *string    `json:"status"`
	Unit      *string    `json:"unit"`
	Mass      *float64   `json:"mass"`
	Notes     *string    `json:"notes"`
	Priority  *int       `json:"priority"`
	AnalystID *int       `json:"analyst_id"`
	DueDate   *time.Time `json:"due_date"`
}

// Update applies a partial update; absent fields are left untouched.
func (h *SampleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "sampleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateSampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	patch := services.SamplePatch{
		SiteName:  req.SiteName,
		Mass:      req.Mass,
		Notes:     req.Notes,
		Priority:  req.Priority,
		AnalystID: req.AnalystID,
		DueDate:   req.DueDate,
	}
	if req.Mineral != nil {
		mineral := types.Mineral(strings.ToUpper(strings.TrimSpace(*req.Mineral)))
		patch.Mineral = &mineral
	}
	if req.Status != nil {
		status := types.SampleStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		patch.Status = &status
	}
	if req.Unit != nil {
		unit := types.Unit(strings.ToUpper(strings.TrimSpace(*req.Unit)))
		patch.Unit = &unit
	}

	sample, err := h.sampleService.Update(r.Context(), id, patch, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sample)
}

// Cancel soft-cancels a sample; the record is retained.
func (h *SampleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "sampleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sample, err := h.sampleService.Cancel(r.Context(), id, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sample)
}

// Timeline returns a sample's lifecycle events, oldest first.
func (h *SampleHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "sampleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.sampleService.Timeline(r.Context(), id, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

type AddTimelineEventRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// AddTimelineEvent records a note on the timeline; a status differing
// from the sample's current one also moves the sample.
func (h *SampleHandler) AddTimelineEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "sampleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req AddTimelineEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	status := types.SampleStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	event, err := h.sampleService.AddTimelineEvent(r.Context(), id, status, req.Notes, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListDocuments returns the documents attached to a sample.
func (h *SampleHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "sampleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	docs, err := h.documentService.ListForSample(r.Context(), id, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, docs)
}

// UploadDocument attaches a multipart file to a sample.
func (h *SampleHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "sampleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.documentService.Upload(r.Context(), id, header.Filename, contentType, header.Size, file, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

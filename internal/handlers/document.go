package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/assaytrack/apiserver/internal/services"
)

// DocumentHandler serves document download and deletion. Uploads hang off
// the sample routes.
type DocumentHandler struct {
	documentService *services.DocumentService
}

func NewDocumentHandler(documentService *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// DocumentRouter registers the authenticated document routes.
func DocumentRouter(r chi.Router, documentService *services.DocumentService) {
	handler := NewDocumentHandler(documentService)

	r.Get("/{documentID}", handler.Download)
	r.Delete("/{documentID}", handler.Delete)
}

// FileRouter registers the public file route. Keys are unguessable UUIDs.
func FileRouter(r chi.Router, documentService *services.DocumentService) {
	handler := NewDocumentHandler(documentService)

	r.Get("/*", handler.ServeByKey)
}

// Download streams a document's bytes to the caller, policy-checked.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, rc, err := h.documentService.Open(r.Context(), id, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	_, _ = io.Copy(w, rc)
}

// ServeByKey streams a stored object on the public file route.
func (h *DocumentHandler) ServeByKey(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}

	doc, rc, err := h.documentService.OpenByKey(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	_, _ = io.Copy(w, rc)
}

// Delete removes a document and its stored bytes.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.documentService.Delete(r.Context(), id, identityFromContext(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

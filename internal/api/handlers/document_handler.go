package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	middleware "github.com/ShriAmogh/artikate-assignment/internal/api/middlewares"
	"github.com/ShriAmogh/artikate-assignment/internal/services"
)

const maxUploadBytes = 52 << 20

type DocumentHandler struct {
	docs *services.DocumentService
	rag  *services.RagService
}

func NewDocumentHandler(docs *services.DocumentService, rag *services.RagService) *DocumentHandler {
	return &DocumentHandler{docs: docs, rag: rag}
}

// Upload stores the multipart file and records the document as uploaded.
// Ingestion is a separate step so several files can be uploaded first and
// indexed in one run.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Strip path components from the client-supplied name.
	filename := filepath.Base(header.Filename)

	doc, err := h.docs.UploadAndCreate(r.Context(), userID, filename, contentType, data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "upload failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	documents, err := h.docs.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

type ingestRequest struct {
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// StartIngestion kicks off a background ingestion run over the user's
// documents and returns the job to poll.
func (h *DocumentHandler) StartIngestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ingestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}

	job, err := h.rag.StartIngestion(r.Context(), userID, req.DocumentIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// JobStatus reports progress of one ingestion job.
func (h *DocumentHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	job, err := h.rag.JobStatus(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil || job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.UserID != userID {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

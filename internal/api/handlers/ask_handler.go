package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	middleware "github.com/ShriAmogh/artikate-assignment/internal/api/middlewares"
	"github.com/ShriAmogh/artikate-assignment/internal/services"
)

type AskHandler struct {
	rag *services.RagService
}

func NewAskHandler(rag *services.RagService) *AskHandler {
	return &AskHandler{rag: rag}
}

type askRequest struct {
	Question string `json:"question"`
}

// Ask answers a question against the user's indexed documents.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := h.rag.Answer(r.Context(), userID, req.Question)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "answer failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

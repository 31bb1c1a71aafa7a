package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/starford/ctxvault/internal/models"
)

const maxUploadBytes = 50 << 20 // 50 MB

// ImportSession handles POST /api/sessions/import (multipart/form-data,
// field "file"). The uploaded file must be a session JSON record; imported
// sessions default to the "import" entry point.
//
//	@Summary		Import a session record from an uploaded JSON file
//	@Tags			sessions
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Session JSON"
//	@Success		201		{object}	SessionSaveResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/import [post]
func (h *Handler) ImportSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".json" {
		writeJSON(w, http.StatusBadRequest, errorBody("session import expects a .json file"))
		return
	}

	var sess models.Session
	if err := json.NewDecoder(file).Decode(&sess); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid session JSON"))
		return
	}
	if sess.EntryPoint == "" {
		sess.EntryPoint = models.EntryPointImport
	}
	h.saveSession(w, r, &sess)
}

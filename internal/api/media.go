package api

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

// handleMedia serves decrypted media files from the media directory. The
// requested path is confined to the media root: anything that escapes it
// after cleaning is rejected.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	if rel == "" || !filepath.IsLocal(filepath.FromSlash(rel)) {
		writeError(w, http.StatusBadRequest, "invalid_path", "Media path escapes the storage root")
		return
	}

	full := filepath.Join(s.cfg.MediaDir(), filepath.FromSlash(rel))

	// Stored media is immutable: a path is written once and never rewritten.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, full)
}

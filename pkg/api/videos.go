package api

import (
	"net/http"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/chicogong/ytagents/pkg/schemas"
)

// HandleListVideos handles GET /api/videos
func (s *Server) HandleListVideos(w http.ResponseWriter, r *http.Request) {
	recs, err := s.videos.GetAllVideos(r.Context())
	if err != nil {
		s.sendErr(w, err)
		return
	}
	if recs == nil {
		recs = []*schemas.VideoRecord{}
	}
	s.sendJSON(w, http.StatusOK, recs)
}

// HandleVideoInfo handles GET /api/videos/{id}/info
func (s *Server) HandleVideoInfo(w http.ResponseWriter, r *http.Request) {
	rec, err := s.videos.GetVideoInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, rec)
}

// HandleGetVideo handles GET /api/videos/{id}. Local files are streamed with
// range support; remote objects redirect to their signed URL.
func (s *Server) HandleGetVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	loc, err := s.videos.GetVideoFile(r.Context(), id)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	if !loc.IsLocal() {
		http.Redirect(w, r, loc.URL, http.StatusTemporaryRedirect)
		return
	}

	f, err := os.Open(loc.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.sendError(w, http.StatusNotFound, "not_found", "video file missing")
			return
		}
		s.sendErr(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.sendErr(w, err)
		return
	}

	if mt, err := mimetype.DetectReader(f); err == nil {
		w.Header().Set("Content-Type", mt.String())
	}
	if _, err := f.Seek(0, 0); err != nil {
		s.sendErr(w, err)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// HandleDeleteVideo handles DELETE /api/videos/{id}
func (s *Server) HandleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.videos.DeleteVideo(r.Context(), id)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	if !deleted {
		s.sendError(w, http.StatusNotFound, "not_found", "video "+id+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agleyzer/reelserver/internal/catalog"
	"github.com/agleyzer/reelserver/internal/contact"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

// maxContactBody bounds the contact form request body.
const maxContactBody = 64 << 10

// projectView is a project as the API returns it.
type projectView struct {
	catalog.Project
	Views uint64 `json:"views"`
}

type projectDetail struct {
	projectView
	Related []projectView `json:"related"`
}

func (s *Server) view(p catalog.Project) projectView {
	return projectView{Project: p, Views: s.deps.Views.Views(p.VideoID)}
}

func (s *Server) views(projects []catalog.Project) []projectView {
	return lo.Map(projects, func(p catalog.Project, _ int) projectView {
		return s.view(p)
	})
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	s.deps.Streamer.ServeVideo(w, r, mux.Vars(r)["id"])
}

// handleProjects lists projects, optionally narrowed by repeated
// category and technology query parameters.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projects := s.deps.Catalog.Filter(q["category"], q["technology"])
	s.writeJSON(w, http.StatusOK, s.views(projects))
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok := s.deps.Catalog.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Project not found")
		return
	}

	s.writeJSON(w, http.StatusOK, projectDetail{
		projectView: s.view(p),
		Related:     s.views(s.deps.Catalog.Related(id, catalog.DefaultRelated)),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{
		"categories":   s.deps.Catalog.Categories(),
		"technologies": s.deps.Catalog.Technologies(),
	})
}

func (s *Server) handleFeatured(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"projects": s.views(s.deps.Rotation.Window()),
		"stats":    s.deps.Rotation.Stats(),
	})
}

// handleReel serves the showreel playlist
func (s *Server) handleReel(w http.ResponseWriter, r *http.Request) {
	reel, err := s.deps.Rotation.Reel(s.opts.BaseURL)
	if err != nil {
		s.logger.Error("failed to render reel", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to render playlist")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(reel))
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var form contact.Form
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContactBody)).Decode(&form); err != nil {
		s.logger.Debug("invalid contact body", "error", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := s.deps.Relay.Submit(r.Context(), form)
	var ve *contact.ValidationError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"message": "Message sent successfully"})
	case errors.As(err, &ve):
		s.writeError(w, http.StatusBadRequest, ve.Message)
	default:
		s.writeError(w, http.StatusInternalServerError, "Failed to send message. Please try again.")
	}
}

func (s *Server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Relay.SendTest(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Test email sent successfully",
		"emailUser": user,
	})
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Rotation.Stats()
	stats["catalog_projects"] = s.deps.Catalog.Len()
	stats["total_views"] = s.deps.Views.Total()
	if s.deps.Cluster != nil {
		stats["cluster"] = s.deps.Cluster.Stats()
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"stats":  stats,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotFound, "Not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	merrors "github.com/Aman-CERP/microblog/internal/errors"
	"github.com/Aman-CERP/microblog/internal/search"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	AboutMe  string `json:"about_me"`
}

type createPostRequest struct {
	UserID   int64  `json:"user_id"`
	Body     string `json:"body"`
	Language string `json:"language"`
}

type updatePostRequest struct {
	Body string `json:"body"`
}

type reindexResponse struct {
	Collections []search.ReindexStats `json:"collections"`
}

// health fails only when the store is down. A broken search backend is
// reported but does not stop writes.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, httpStatus := "ok", http.StatusOK
	if err := s.app.Ping(r.Context()); err != nil {
		s.logger.Warn("health_check_failed", "error", err)
		status, httpStatus = "unavailable", http.StatusServiceUnavailable
	}

	searchStatus := "disabled"
	if s.app.Engine != nil {
		searchStatus = "ok"
		if err := s.app.PingSearch(r.Context()); err != nil {
			s.logger.Warn("search_health_check_failed", "error", err)
			searchStatus = "unavailable"
		}
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"search": searchStatus,
	})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := s.app.CreateUser(r.Context(), req.Username, req.Email, req.AboutMe)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.app.CreatePost(r.Context(), req.UserID, req.Body, req.Language)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/posts/"+strconv.FormatInt(p.ID, 10))
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.app.Post(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updatePostRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.app.UpdatePost(r.Context(), id, req.Body)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.app.DeletePost(r.Context(), id); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchPosts handles GET /api/posts/search?q=&page=&per_page=.
func (s *Server) searchPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, merrors.ErrCodeInvalidInput, "page must be an integer")
		return
	}
	perPage, err := intParam(q.Get("per_page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, merrors.ErrCodeInvalidInput, "per_page must be an integer")
		return
	}

	result, err := s.app.SearchPosts(r.Context(), q.Get("q"), page, perPage)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// reindex handles POST /api/admin/reindex[/{collection}].
func (s *Server) reindex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Reindex(r.Context(), chi.URLParam(r, "collection"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reindexResponse{Collections: stats})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, merrors.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, merrors.ErrCodeInvalidInput, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// intParam parses an optional integer query parameter; empty means 0.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

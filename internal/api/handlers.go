package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	ferr "forumd/internal/errors"
	"forumd/internal/retry"
	"forumd/internal/store"
)

const maxListLimit = 100

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeError maps a store failure to a response.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ferr.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("http %s %s: %v", r.Method, r.URL.Path, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if s.breaker != nil {
		state := s.breaker.State()
		body["backend"] = state.String()
		if state == retry.StateOpen {
			body["status"] = "degraded"
		}
	}
	if err := s.store.Ping(r.Context()); err != nil {
		body["status"], body["error"] = "unavailable", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	rows, err := s.store.RecentThreads(r.Context(), limit)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	row, err := s.store.Thread(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) createThread(w http.ResponseWriter, r *http.Request) {
	var in store.NewThread
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" {
		writeError(w, http.StatusBadRequest, "title and author are required")
		return
	}
	t, err := s.store.CreateThread(r.Context(), in)
	if err != nil {
		if errors.Is(err, ferr.ErrNotFound) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": t.ID})
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var in store.NewComment
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.ThreadID) == "" || strings.TrimSpace(in.Author) == "" {
		writeError(w, http.StatusBadRequest, "thread_id and author are required")
		return
	}
	c, err := s.store.CreateComment(r.Context(), in)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": c.ID})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
	}
	if !decode(w, r, &in) {
		return
	}
	c, err := s.store.CreateCategory(r.Context(), in.Name, in.Description)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) ensureUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetOrCreateUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) checkUsername(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "username")
	exists, err := s.store.UsernameExists(r.Context(), name)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"available": !exists, "username": name})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
	}
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Username) == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	u, err := s.store.RegisterUser(r.Context(), in.Username)
	if errors.Is(err, store.ErrUsernameTaken) {
		writeError(w, http.StatusBadRequest, "Username already taken")
		return
	}
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

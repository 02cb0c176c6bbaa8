package brand

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/guildbrand/catalog"
	"github.com/hazyhaar/guildbrand/fetch"
	"github.com/hazyhaar/guildbrand/shield"
)

// Router returns the admin HTTP API. /health is public; everything under
// /api requires the configured admin credentials.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultAPIStack() {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(shield.BasicAuth(s.config.Admin.Users))

		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			st, err := s.Stats(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, st)
		})

		r.Get("/catalog", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, s.CatalogStats())
		})

		r.Post("/catalog/refresh", func(w http.ResponseWriter, r *http.Request) {
			if err := s.RefreshCatalog(r.Context()); err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			writeJSON(w, 200, s.CatalogStats())
		})

		r.Get("/guilds", func(w http.ResponseWriter, r *http.Request) {
			all, err := queryBool(r, "all")
			if err != nil {
				writeError(w, 400, err)
				return
			}
			guilds, err := s.ListGuilds(r.Context(), !all)
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, guilds)
		})

		r.Get("/guilds/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
			runs, err := s.ListRuns(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, runs)
		})

		r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
			runs, err := s.ListRuns(r.Context(), "", queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, runs)
		})

		r.Post("/guilds/{id}/{kind}", func(w http.ResponseWriter, r *http.Request) {
			size, err := catalog.ParseSizeClass(chi.URLParam(r, "kind"))
			if err != nil {
				writeError(w, 404, err)
				return
			}
			run, err := s.Randomize(r.Context(), chi.URLParam(r, "id"), size, TriggerAPI)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, run)
		})

		r.Get("/preview/{kind}", func(w http.ResponseWriter, r *http.Request) {
			size, err := catalog.ParseSizeClass(chi.URLParam(r, "kind"))
			if err != nil {
				writeError(w, 404, err)
				return
			}
			data, contentType, err := s.Preview(r.Context(), size)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Cache-Control", "no-store")
			w.Write(data)
		})
	})

	return r
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownGuild):
		return http.StatusNotFound
	case errors.Is(err, ErrNoImages):
		return http.StatusConflict
	case errors.Is(err, ErrNoTransport):
		return http.StatusServiceUnavailable
	case errors.Is(err, fetch.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func queryBool(r *http.Request, key string) (bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

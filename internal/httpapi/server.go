// Package httpapi exposes a read-only HTTP view over a repository: the
// metadata tree, health and Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tunetree/tunetree/internal/metrics"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/ports"
	"github.com/tunetree/tunetree/pkg/scope"
)

// Server serves the repository inspection API.
type Server struct {
	repo   ports.Repository
	logger *slog.Logger
}

// NewHandler builds the HTTP handler over repo.
func NewHandler(repo ports.Repository, logger *slog.Logger) http.Handler {
	s := &Server{repo: repo, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/tree", s.tree)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// tree returns the node addressed by ?scope=project/client/0/1, shallow by
// default, recursively with ?deep=true.
func (s *Server) tree(w http.ResponseWriter, r *http.Request) {
	loc, err := parseScope(r.URL.Query().Get("scope"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid scope: %v", err), http.StatusBadRequest)
		return
	}
	deep := r.URL.Query().Get("deep") == "true"

	n, err := s.repo.Load(r.Context(), loc, deep)
	if err != nil {
		var corrupt *ports.CorruptError
		if errors.As(err, &corrupt) {
			s.logger.Error("corrupt record hit while serving tree", "scope", loc.String(), "err", err)
			http.Error(w, "repository record is corrupt", http.StatusInternalServerError)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	view, err := viewOf(n, deep)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		s.logger.Warn("failed to encode tree response", "err", err)
	}
}

// viewOf renders a node as its record fields plus child ids, recursing
// into materialized children when deep.
func viewOf(n metadata.Node, deep bool) (map[string]any, error) {
	raw, err := metadata.Marshal(n)
	if err != nil {
		return nil, err
	}
	view := map[string]any{}
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, err
	}

	view["child_ids"] = n.Keys()
	if deep {
		children := make([]any, 0, len(n.Values()))
		for _, child := range n.Values() {
			if child == nil {
				children = append(children, nil)
				continue
			}
			cv, err := viewOf(child, true)
			if err != nil {
				return nil, err
			}
			children = append(children, cv)
		}
		view["children"] = children
	}
	return view, nil
}

// parseScope converts "project/client/0/1/2/metric" into a location,
// coercing the index positions to ints.
func parseScope(raw string) (scope.Location, error) {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return scope.Location{}, nil
	}
	segments := strings.Split(raw, "/")
	attrs := make([]scope.Attr, len(segments))
	for i, seg := range segments {
		if i >= 2 && i <= 4 {
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return scope.Location{}, fmt.Errorf("segment %d (%q) must be an index", i, seg)
			}
			attrs[i] = idx
		} else {
			attrs[i] = seg
		}
	}
	return scope.New(attrs...)
}

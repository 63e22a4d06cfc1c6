// Package httpapi serves the operations HTTP endpoints next to the gRPC
// object store: a health probe, knowledge vectors and record histories.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/server/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Store is what the endpoints read from.
type Store interface {
	LoadVector(ctx context.Context, identity string) (models.KnowledgeVector, error)
	History(ctx context.Context, kind models.Kind, id string) ([]*models.Entity, error)
}

// Pinger reports whether the database answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type handler struct {
	store     Store
	db        Pinger
	logger    logging.Logger
	jwtSecret []byte
}

// NewRouter wires the routes. Everything but /health requires a bearer
// token; /clocks/{identity} only answers for the token's own identity.
func NewRouter(store Store, db Pinger, l logging.Logger, secretKey string) http.Handler {
	h := &handler{store: store, db: db, logger: l.With("module", "http"), jwtSecret: []byte(secretKey)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/clocks/{identity}", h.clock)
		r.Get("/objects/{kind}/{id}/history", h.history)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			h.logger.Warn(r.Context(), "health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type ctxKey struct{}

func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		identity, err := auth.IdentityFromToken(token, h.jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, identity)))
	})
}

func (h *handler) clock(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if caller, _ := r.Context().Value(ctxKey{}).(string); caller != identity {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	kv, err := h.store.LoadVector(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, r, map[string]any{"identity": identity, "vector": kv})
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	kind := models.Kind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")

	versions, err := h.store.History(r.Context(), kind, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	docs := make([]models.RemoteDocument, len(versions))
	for i, v := range versions {
		docs[i] = models.EncodeDocument(v)
	}
	h.writeJSON(w, r, map[string]any{"kind": kind, "id": id, "versions": docs})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, common.ErrSchemaMissing):
		http.Error(w, "schema missing", http.StatusServiceUnavailable)
	default:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn(r.Context(), "write response", "error", err)
	}
}

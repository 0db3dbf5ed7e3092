package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"graphrelay/internal/core"
	"graphrelay/internal/types"
)

// SubscriptionManager is the lifecycle surface the handler depends on.
// Implemented by *subscription.Manager.
type SubscriptionManager interface {
	Create(ctx context.Context, resource string, changeType types.ChangeType) (*types.Subscription, error)
	List(ctx context.Context) ([]types.Subscription, error)
	Delete(ctx context.Context, id string) error
	Renew(ctx context.Context, id string) (*types.Subscription, error)
}

// CreateSubscriptionRequest is the request body for POST /v1/subscriptions.
type CreateSubscriptionRequest struct {
	Resource   string `json:"resource"`
	ChangeType string `json:"changeType,omitempty"`
}

// SubscriptionHandler manages subscription CRUD and renewal.
type SubscriptionHandler struct {
	manager SubscriptionManager
	logger  *slog.Logger
}

// NewSubscriptionHandler creates the subscription management handler.
func NewSubscriptionHandler(manager SubscriptionManager, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionHandler{manager: manager, logger: logger}
}

// RegisterRoutes mounts subscription routes on the provided chi.Router.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", h.Delete)
			r.Post("/renew", h.Renew)
		})
	})
}

// Create handles POST /v1/subscriptions. The expiration window is computed
// server-side; the request names only the resource and change type.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	sub, err := h.manager.Create(r.Context(), req.Resource, types.ChangeType(req.ChangeType))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: sub})
}

// List handles GET /v1/subscriptions.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.manager.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if subs == nil {
		subs = []types.Subscription{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: subs})
}

// Delete handles DELETE /v1/subscriptions/{id}.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Renew handles POST /v1/subscriptions/{id}/renew. The response carries the
// replacement subscription with its new identifier.
func (h *SubscriptionHandler) Renew(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := h.manager.Renew(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: sub})
}

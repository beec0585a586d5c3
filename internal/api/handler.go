package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lebron1212/aos-dev-team-sub000/internal/delegation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"github.com/lebron1212/aos-dev-team-sub000/internal/lineage"
	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
	"go.uber.org/zap"
)

// LineageReader answers parent/child queries for work items.
type LineageReader interface {
	Lineage(ctx context.Context, id string) (*lineage.Tree, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	items    *workitem.Registry
	resolver *delegation.Resolver
	gw       *gateway.Gateway
	restGW   *gateway.RESTAdapter
	lineage  LineageReader
	logger   *zap.Logger
}

// NewHandler creates a new API handler. lineage may be nil.
func NewHandler(
	items *workitem.Registry,
	resolver *delegation.Resolver,
	gw *gateway.Gateway,
	restGW *gateway.RESTAdapter,
	lineage LineageReader,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		items:    items,
		resolver: resolver,
		gw:       gw,
		restGW:   restGW,
		lineage:  lineage,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/workitems", h.listWorkItems)
		r.Get("/workitems/{id}", h.getWorkItem)
		r.Get("/workitems/{id}/lineage", h.getLineage)
		r.Post("/workitems/{id}/advance", h.advanceWorkItem)
		r.Post("/workitems/{id}/outputs", h.setOutputs)
		r.Post("/workitems/{id}/fail", h.failWorkItem)

		r.Get("/specialists", h.listSpecialists)
		r.Post("/specialists", h.registerSpecialist)
		r.Get("/specialists/status", h.specialistStatus)
		r.Post("/specialists/{name}/online", h.setSpecialistOnline)
		r.Delete("/specialists/{name}", h.removeSpecialist)

		if h.restGW != nil {
			r.Mount("/gateway/rest", h.restGW.Routes())
		}
		r.Get("/gateway/status", h.gatewayStatus)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listWorkItems(w http.ResponseWriter, r *http.Request) {
	list := h.items.Active()
	if user := r.URL.Query().Get("user"); user != "" {
		list = h.items.ForUser(user)
	}
	if list == nil {
		list = []*workitem.WorkItem{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getWorkItem(w http.ResponseWriter, r *http.Request) {
	item, ok := h.items.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "work item not found"})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) getLineage(w http.ResponseWriter, r *http.Request) {
	if h.lineage == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "lineage not configured"})
		return
	}
	tree, err := h.lineage.Lineage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Warn("lineage query failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

type advanceRequest struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// advanceWorkItem lets build and deploy automation report phase changes.
func (h *Handler) advanceWorkItem(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	to, err := workitem.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := h.items.Advance(chi.URLParam(r, "id"), to, req.Progress)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) setOutputs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outputs map[string]string `json:"outputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Outputs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "outputs are required"})
		return
	}
	item, err := h.items.SetOutputs(chi.URLParam(r, "id"), req.Outputs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) failWorkItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason is required"})
		return
	}
	item, err := h.items.Fail(chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) listSpecialists(w http.ResponseWriter, r *http.Request) {
	list := h.resolver.Registry().List()
	if list == nil {
		list = []delegation.Specialist{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) registerSpecialist(w http.ResponseWriter, r *http.Request) {
	var s delegation.Specialist
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.resolver.Registry().Register(r.Context(), s); err != nil {
		writeError(w, err)
		return
	}
	stored, _ := h.resolver.Registry().Get(s.Name)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) setSpecialistOnline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.resolver.Registry().SetOnline(r.Context(), name, req.Online); err != nil {
		writeError(w, err)
		return
	}
	s, _ := h.resolver.Registry().Get(name)
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) removeSpecialist(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.Registry().Remove(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) specialistStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": h.resolver.Status()})
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.StatusAll())
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workitem.ErrTargetNotFound), errors.Is(err, delegation.ErrNoActiveSpecialist):
		status = http.StatusNotFound
	case errors.Is(err, workitem.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, workitem.ErrValidation), errors.Is(err, delegation.ErrValidation):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Package api exposes the pipeline over HTTP: REST operations for domains,
// targets, sources, prompts and pretexts, plus a server-sent-events feed of
// pipeline notifications.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/notify"
	"github.com/sells-group/recon-pipeline/internal/queue"
	"github.com/sells-group/recon-pipeline/internal/recon"
	"github.com/sells-group/recon-pipeline/internal/scrape"
	"github.com/sells-group/recon-pipeline/internal/store"
	"github.com/sells-group/recon-pipeline/pkg/autodiscover"
)

// ReconRunner starts an email-discovery intake for a domain.
type ReconRunner interface {
	Run(ctx context.Context, domain string) (*recon.Summary, error)
}

// Federator looks up a domain's federated sibling domains.
type Federator interface {
	GetFederationInformation(ctx context.Context, domain string) (*autodiscover.FederationInfo, error)
}

// Server carries the API's collaborators.
type Server struct {
	store     store.Store
	broker    *queue.Broker
	hub       *notify.Hub
	recon     ReconRunner
	federator Federator
}

// New creates the API server.
func New(s store.Store, broker *queue.Broker, hub *notify.Hub, rec ReconRunner, federator Federator) *Server {
	return &Server{store: s, broker: broker, hub: hub, recon: rec, federator: federator}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/events", s.handleEvents)

		r.Route("/domains", func(r chi.Router) {
			r.Get("/", s.handleListDomains)
			r.Post("/", s.handleAddDomain)
			r.Get("/{domain}", s.handleGetDomain)
			r.Post("/{domain}/related", s.handleRelatedDomains)
			r.Post("/{domain}/recon", s.handleStartRecon)
			r.Get("/{domain}/targets", s.handleListTargets)
			r.Post("/{domain}/generate-profiles", s.handleGenerateProfiles)
			r.Post("/{domain}/generate-pretexts", s.handleGeneratePretexts)
			r.Get("/{domain}/pretexts", s.handleListDomainPretexts)
		})

		r.Route("/targets", func(r chi.Router) {
			r.Post("/{email}/generate-profile", s.handleGenerateProfile)
			r.Post("/{email}/generate-pretext", s.handleGeneratePretext)
			r.Get("/{email}/pretexts", s.handleListTargetPretexts)
			r.Delete("/{email}", s.handleDeleteTarget)
		})

		r.Get("/sources", s.handleListSources)
		r.Post("/scrape-sources", s.handleScrapeSources)

		r.Route("/prompts", func(r chi.Router) {
			r.Get("/", s.handleListPrompts)
			r.Post("/", s.handleAddPrompt)
		})

		r.Patch("/pretexts/{id}", s.handleReviewPretext)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents streams pipeline notifications as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-events:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, e.Payload)
			flusher.Flush()
		}
	}
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := s.store.ListDomains(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, domains)
}

// handleAddDomain registers a domain and queues DNS discovery for it.
func (s *Server) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		http.Error(w, `{"error":"domain is required"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := s.store.EnsureDomain(ctx, req.Domain); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	jobID, err := s.broker.Enqueue(ctx, queue.StageDiscovery, map[string]string{"domain": req.Domain})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"domain": req.Domain, "jobId": jobID})
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "domain")
	d, err := s.store.GetDomain(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if d == nil {
		http.Error(w, `{"error":"domain not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleRelatedDomains discovers federated sibling domains and queues DNS
// discovery for each new one.
func (s *Server) handleRelatedDomains(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "domain")
	ctx := r.Context()

	info, err := s.federator.GetFederationInformation(ctx, name)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	for _, related := range info.Domains {
		if err := s.store.EnsureDomain(ctx, related); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if _, err := s.broker.Enqueue(ctx, queue.StageDiscovery, map[string]string{"domain": related}); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applicationUri": info.ApplicationURI,
		"domains":        info.Domains,
	})
}

// handleStartRecon kicks off email discovery asynchronously; progress arrives
// on the events feed.
func (s *Server) handleStartRecon(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "domain")

	go func() {
		summary, err := s.recon.Run(context.Background(), name)
		if err != nil {
			zap.L().Error("recon failed", zap.String("domain", name), zap.Error(err))
			return
		}
		zap.L().Info("recon complete",
			zap.String("domain", name),
			zap.Int("targets", summary.Targets),
			zap.Int("sources", summary.Sources))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"domain": name, "status": "started"})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.store.ListTargets(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

// handleScrapeSources queues scrape jobs for every unmined source, optionally
// scoped to a set of target emails.
func (s *Server) handleScrapeSources(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emails []string `json:"emails"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ctx := r.Context()
	sources, err := s.store.UnminedSourcesForTargets(ctx, req.Emails)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	queued := 0
	for _, src := range sources {
		payload := scrape.JobPayload{SourceID: src.ID, SourceURL: src.URL}
		if src.SourceDomain != nil {
			payload.SourceDomain = *src.SourceDomain
		}
		if _, err := s.broker.Enqueue(ctx, queue.StageScrape, payload); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		queued++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (s *Server) handleGenerateProfile(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	jobID, err := s.broker.Enqueue(r.Context(), queue.StageProfile, map[string]string{"email": email})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"email": email, "jobId": jobID})
}

// handleGenerateProfiles queues a profile job for every enriched target in
// the domain.
func (s *Server) handleGenerateProfiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targets, err := s.store.ListTargets(ctx, chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	queued := 0
	for _, t := range targets {
		if t.Status != model.TargetStatusEnriched {
			continue
		}
		if _, err := s.broker.Enqueue(ctx, queue.StageProfile, map[string]string{"email": t.Email}); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		queued++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (s *Server) handleGeneratePretext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PromptID int64 `json:"promptId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PromptID == 0 {
		http.Error(w, `{"error":"promptId is required"}`, http.StatusBadRequest)
		return
	}

	email := chi.URLParam(r, "email")
	jobID, err := s.broker.Enqueue(r.Context(), queue.StagePretext, map[string]any{
		"email":    email,
		"promptId": req.PromptID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"email": email, "jobId": jobID})
}

// handleGeneratePretexts queues a pretext job for every complete target in
// the domain.
func (s *Server) handleGeneratePretexts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PromptID int64 `json:"promptId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PromptID == 0 {
		http.Error(w, `{"error":"promptId is required"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	targets, err := s.store.ListTargets(ctx, chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	queued := 0
	for _, t := range targets {
		if t.Status != model.TargetStatusComplete {
			continue
		}
		if _, err := s.broker.Enqueue(ctx, queue.StagePretext, map[string]any{
			"email":    t.Email,
			"promptId": req.PromptID,
		}); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		queued++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (s *Server) handleListTargetPretexts(w http.ResponseWriter, r *http.Request) {
	pretexts, err := s.store.ListPretextsForTarget(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pretexts)
}

func (s *Server) handleListDomainPretexts(w http.ResponseWriter, r *http.Request) {
	pretexts, err := s.store.ListPretextsForDomain(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pretexts)
}

// handleReviewPretext records a reviewer's approve/reject decision.
func (s *Server) handleReviewPretext(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid pretext id"}`, http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	status := model.PretextStatus(req.Status)
	if !model.ValidPretextStatus(status) || status == model.PretextStatusDraft {
		http.Error(w, `{"error":"status must be approved or rejected"}`, http.StatusBadRequest)
		return
	}

	if err := s.store.UpdatePretextStatus(r.Context(), id, status); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := s.store.DeleteTarget(r.Context(), email); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.hub.Emit(notify.EventTargetDeleted, map[string]string{"email": email})
	writeJSON(w, http.StatusOK, map[string]string{"email": email, "status": "deleted"})
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.store.ListPrompts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prompts)
}

func (s *Server) handleAddPrompt(w http.ResponseWriter, r *http.Request) {
	var req model.Prompt
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Template == "" {
		http.Error(w, `{"error":"name and template are required"}`, http.StatusBadRequest)
		return
	}

	id, err := s.store.InsertPrompt(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	req.ID = id
	writeJSON(w, http.StatusCreated, req)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

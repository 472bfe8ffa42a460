package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/memhub/internal/cache"
	"github.com/jordanhubbard/memhub/internal/database"
	"github.com/jordanhubbard/memhub/internal/memory"
	"github.com/jordanhubbard/memhub/internal/messagebus"
	"github.com/jordanhubbard/memhub/internal/telemetry"
	"github.com/jordanhubbard/memhub/pkg/models"
)

// handleMemory routes POST (create) and GET (list) on /api/memory.
func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleMemoryCreate(w, r)
	case http.MethodGet:
		s.handleMemoryList(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleMemoryCreate(w http.ResponseWriter, r *http.Request) {
	var payload memory.EntryPayload
	if err := s.parseJSON(r, &payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	entry, vErr := memory.ValidateEntryPayload(payload)
	if vErr != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Invalid payload",
			"details": vErr.Details,
		})
		return
	}

	if !s.registry.Contains(entry.ProjectID) {
		s.respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	if err := s.db.InsertEntry(entry); err != nil {
		if errors.Is(err, database.ErrDuplicateID) {
			s.metrics.DuplicatePushes.WithLabelValues(entry.ProjectID).Inc()
			s.respondError(w, http.StatusConflict, "Memory entry id already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "Failed to store memory entry")
		return
	}

	s.metrics.EntriesCreated.WithLabelValues(
		entry.ProjectID, string(entry.LessonCategory), string(entry.TaskType),
	).Inc()
	telemetry.EntriesStored.Add(r.Context(), 1)
	s.invalidateCache(r, entry.ProjectID)
	s.publishEvent(messagebus.SubjectMemoryCreated, entry)

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"entry": entry})
}

func (s *Server) handleMemoryList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	payload := memory.QueryPayload{
		ProjectID:      query.Get("projectId"),
		FeatureScope:   query.Get("featureScope"),
		TaskType:       query.Get("taskType"),
		AgentID:        query.Get("agentId"),
		LessonCategory: query.Get("lessonCategory"),
		Label:          query.Get("label"),
		SearchQuery:    query.Get("searchQuery"),
		Limit:          query.Get("limit"),
	}

	filters, vErr := memory.ValidateEntryQuery(payload)
	if vErr != nil {
		s.respondError(w, http.StatusBadRequest, vErr.Details[0])
		return
	}
	if !s.registry.Contains(filters.ProjectID) {
		s.respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	if s.serveCached(w, r, "memory.list", filters) {
		return
	}

	entries, err := s.db.QueryEntries(*filters)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to query memory entries")
		return
	}
	if entries == nil {
		entries = []*models.MemoryEntry{}
	}

	s.metrics.EntriesListed.WithLabelValues(filters.ProjectID).Inc()
	s.respondCacheable(w, r, "memory.list", filters, filters.ProjectID,
		map[string]interface{}{"entries": entries})
}

// handleMemoryRetrieve runs the ranking engine against a retrieval context.
func (s *Server) handleMemoryRetrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var payload memory.RetrievalPayload
	if err := s.parseJSON(r, &payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	rc, vErr := memory.ValidateRetrievalContext(payload)
	if vErr != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Invalid payload",
			"details": vErr.Details,
		})
		return
	}
	if !s.registry.Contains(rc.ProjectID) {
		s.respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	if s.serveCached(w, r, "memory.retrieve", rc) {
		return
	}

	start := time.Now()
	result, err := s.engine.Retrieve(r.Context(), *rc)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve memory")
		return
	}

	s.metrics.RetrievalsTotal.WithLabelValues(rc.ProjectID).Inc()
	s.metrics.RetrievalDuration.WithLabelValues(rc.ProjectID).Observe(time.Since(start).Seconds())
	s.metrics.ContextSignals.WithLabelValues(rc.ProjectID).Observe(float64(result.Meta.ContextSignals))
	if result.Meta.FallbackUsed {
		s.metrics.RetrievalFallback.WithLabelValues(rc.ProjectID).Inc()
		telemetry.FallbacksUsed.Add(r.Context(), 1)
	}
	telemetry.RetrievalsServed.Add(r.Context(), 1)
	telemetry.CandidatesScanned.Add(r.Context(), int64(result.Meta.TotalCandidates))
	telemetry.RetrievalLatency.Record(r.Context(), float64(time.Since(start).Milliseconds()))

	s.respondCacheable(w, r, "memory.retrieve", rc, rc.ProjectID, result)
}

// handleWorkflowTicketFinish records a ticket transition and its memory
// entry atomically.
func (s *Server) handleWorkflowTicketFinish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var payload memory.WorkflowCompletionPayload
	if err := s.parseJSON(r, &payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	entry, completion, vErr := memory.ValidateWorkflowCompletion(payload)
	if vErr != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Invalid workflow completion payload",
			"details": vErr.Details,
		})
		return
	}
	if !s.registry.Contains(completion.ProjectID) {
		s.respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	audit := &models.WorkflowAudit{
		ID:            "audit-" + uuid.NewString(),
		ProjectID:     completion.ProjectID,
		TicketID:      completion.TicketID,
		FromStatus:    completion.FromStatus,
		ToStatus:      completion.ToStatus,
		AgentID:       completion.AgentID,
		MemoryEntryID: entry.ID,
		Payload: models.AuditPayload{
			TicketID:   completion.TicketID,
			FromStatus: completion.FromStatus,
			ToStatus:   completion.ToStatus,
			Memory: models.AuditMemorySummary{
				ID:             entry.ID,
				FeatureScope:   entry.FeatureScope,
				TaskType:       entry.TaskType,
				LessonCategory: entry.LessonCategory,
				Labels:         entry.Labels,
				SourceRefs:     entry.SourceRefs,
			},
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := s.db.CreateWorkflowCompletion(entry, audit); err != nil {
		if errors.Is(err, database.ErrDuplicateID) {
			s.metrics.DuplicatePushes.WithLabelValues(completion.ProjectID).Inc()
			s.respondError(w, http.StatusConflict, "Memory entry id already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "Failed to record workflow completion")
		return
	}

	s.metrics.WorkflowCompletions.WithLabelValues(
		completion.ProjectID, string(completion.ToStatus),
	).Inc()
	telemetry.EntriesStored.Add(r.Context(), 1)
	s.invalidateCache(r, completion.ProjectID)
	s.publishEvent(messagebus.SubjectWorkflowCompleted, audit)

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"memoryEntry": entry,
		"audit":       audit,
	})
}

// handleWorkflowAudit lists recorded ticket transitions.
func (s *Server) handleWorkflowAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	filters, vErr := memory.ValidateAuditQuery(memory.AuditQueryPayload{
		ProjectID: query.Get("projectId"),
		TicketID:  query.Get("ticketId"),
		AgentID:   query.Get("agentId"),
		Limit:     query.Get("limit"),
	})
	if vErr != nil {
		s.respondError(w, http.StatusBadRequest, vErr.Details[0])
		return
	}
	if !s.registry.Contains(filters.ProjectID) {
		s.respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	audits, err := s.db.QueryAudits(*filters)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to query workflow audits")
		return
	}
	if audits == nil {
		audits = []*models.WorkflowAudit{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"entries": audits})
}

// Composition handlers. Each validates its own required fields through the
// composer; the project scope is checked here so unknown projects 404
// before any retrieval work happens.

func (s *Server) handleComposeTicket(w http.ResponseWriter, r *http.Request) {
	s.handleCompose(w, r, "ticket", func(req memory.ComposeRequest) (interface{}, error) {
		return s.composer.ComposeTicket(r.Context(), req)
	})
}

func (s *Server) handleComposeHandoff(w http.ResponseWriter, r *http.Request) {
	s.handleCompose(w, r, "handoff", func(req memory.ComposeRequest) (interface{}, error) {
		return s.composer.ComposeHandoff(r.Context(), req)
	})
}

func (s *Server) handleComposeReferencePrompt(w http.ResponseWriter, r *http.Request) {
	s.handleCompose(w, r, "reference-prompt", func(req memory.ComposeRequest) (interface{}, error) {
		return s.composer.ComposeReferencePrompt(r.Context(), req)
	})
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request, kind string, compose func(memory.ComposeRequest) (interface{}, error)) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req memory.ComposeRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if projectID := strings.TrimSpace(req.ProjectID); projectID != "" && !s.registry.Contains(projectID) {
		s.respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	result, err := compose(req)
	if err != nil {
		var vErr *memory.ValidationError
		if errors.As(err, &vErr) {
			s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":   "Invalid payload",
				"details": vErr.Details,
			})
			return
		}
		s.respondError(w, http.StatusInternalServerError, "Failed to compose artifact")
		return
	}

	s.metrics.Compositions.WithLabelValues(kind).Inc()
	s.respondJSON(w, http.StatusOK, result)
}

// handleInsights aggregates stored lessons into dashboard groups.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	projectID := strings.TrimSpace(query.Get("projectId"))
	if projectID == "" {
		s.respondError(w, http.StatusBadRequest, "projectId is required")
		return
	}
	if !s.registry.Contains(projectID) {
		s.respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	filters := memory.InsightFilters{
		ProjectID:    projectID,
		FeatureScope: strings.TrimSpace(query.Get("featureScope")),
		TaskType:     strings.TrimSpace(query.Get("taskType")),
	}
	if s.serveCached(w, r, "insights", filters) {
		return
	}

	rows, err := s.db.QueryEntries(models.EntryFilters{
		ProjectID: projectID,
		Limit:     database.MaxCandidateLimit,
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to query memory entries")
		return
	}

	entries := make([]models.MemoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, *row)
	}

	insights := memory.AggregateInsights(entries, filters)
	s.respondCacheable(w, r, "insights", filters, projectID, insights)
}

// handleProjects lists the registered project scopes.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	projects := s.registry.List()
	sort.Strings(projects)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

// handleLogin exchanges an agent key for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.auth == nil || !s.config.Auth.Enabled {
		s.respondError(w, http.StatusNotFound, "Auth is not enabled")
		return
	}

	var payload struct {
		AgentID string `json:"agentId"`
		Key     string `json:"key"`
	}
	if err := s.parseJSON(r, &payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	token, err := s.auth.Login(payload.AgentID, payload.Key)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "Invalid agent id or key")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Cache plumbing. Read responses are cached per request shape; any write to
// a project drops that project's cached responses (and cross-project ones).

func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, kind string, request interface{}) bool {
	if s.cache == nil {
		return false
	}
	key, err := cache.GenerateKey(kind, request)
	if err != nil {
		return false
	}
	body, ok := s.cache.Get(r.Context(), key)
	if !ok {
		s.metrics.CacheMisses.Inc()
		return false
	}
	s.metrics.CacheHits.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
	return true
}

func (s *Server) respondCacheable(w http.ResponseWriter, r *http.Request, kind string, request interface{}, projectID string, data interface{}) {
	if s.cache != nil {
		if body, err := json.Marshal(data); err == nil {
			if key, err := cache.GenerateKey(kind, request); err == nil {
				s.cache.Set(r.Context(), key, strings.ToLower(projectID), body)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, data)
}

func (s *Server) publishEvent(subject string, payload interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(subject, payload)
	s.metrics.EventsPublished.WithLabelValues(subject).Inc()
}

func (s *Server) invalidateCache(r *http.Request, projectID string) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateProject(r.Context(), strings.ToLower(projectID))
}

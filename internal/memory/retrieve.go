package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jordanhubbard/memhub/pkg/models"
)

// Scoring weights. These were tuned empirically against real agent memory
// and are preserved as-is for behavioral compatibility; do not re-derive.
const (
	baseScore           = 5
	featureExactBoost   = 44
	featurePartialBoost = 15
	taskTypeBoost       = 26
	labelMatchBoost     = 18
	searchHitBoost      = 6
	searchBoostCap      = 18
	minSearchTermLen    = 3
	lowConfidenceFloor  = 20
	recentWindowDays    = 3
	candidateLoadLimit  = 1000
)

// priorityBoosts maps priority x lesson category to a fixed boost.
// Errors and constraints weigh highest on urgent work (P0/P1); successes
// weigh highest on planned work (P2/P3).
var priorityBoosts = map[models.Priority]map[models.LessonCategory]int{
	models.PriorityP0: {
		models.CategoryError:      22,
		models.CategoryConstraint: 20,
		models.CategoryDecision:   14,
		models.CategorySuccess:    9,
	},
	models.PriorityP1: {
		models.CategoryError:      20,
		models.CategoryConstraint: 18,
		models.CategoryDecision:   13,
		models.CategorySuccess:    10,
	},
	models.PriorityP2: {
		models.CategoryError:      11,
		models.CategoryConstraint: 12,
		models.CategoryDecision:   14,
		models.CategorySuccess:    16,
	},
	models.PriorityP3: {
		models.CategoryError:      8,
		models.CategoryConstraint: 10,
		models.CategoryDecision:   13,
		models.CategorySuccess:    18,
	},
}

// CandidateStore loads scoring candidates for the engine. Satisfied by
// *database.Database.
type CandidateStore interface {
	QueryEntries(filters models.EntryFilters) ([]*models.MemoryEntry, error)
}

// Engine ranks stored memory entries against a retrieval context. It is a
// pure request/response computation: no background work, no retries, no
// caching. Retrieval is not isolated from concurrent writers; callers get
// an eventually-consistent snapshot.
type Engine struct {
	store  CandidateStore
	tracer trace.Tracer
	now    func() time.Time
}

// NewEngine creates a ranking engine over the given store.
func NewEngine(store CandidateStore) *Engine {
	return &Engine{
		store:  store,
		tracer: otel.Tracer("memhub/retrieval"),
		now:    time.Now,
	}
}

// Retrieve loads candidates for the context's project scope, scores them,
// applies the fallback policy and returns the ordered, capped result.
// An empty candidate set is a valid result, not an error.
func (e *Engine) Retrieve(ctx context.Context, rc models.RetrievalContext) (*models.RetrievalResult, error) {
	_, span := e.tracer.Start(ctx, "memory.retrieve")
	defer span.End()

	signals := countContextSignals(rc)
	span.SetAttributes(
		attribute.String("memory.project_id", rc.ProjectID),
		attribute.Int("memory.context_signals", signals),
	)

	candidates, err := e.store.QueryEntries(models.EntryFilters{
		ProjectID: rc.ProjectID,
		Limit:     candidateLoadLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	limit := rc.Limit
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}

	if len(candidates) == 0 {
		return &models.RetrievalResult{
			Entries: []models.ScoredEntry{},
			Meta: models.RetrievalMeta{
				FallbackUsed:    true,
				TotalCandidates: 0,
				ContextSignals:  signals,
			},
		}, nil
	}

	now := e.now().UTC()
	scored := make([]models.ScoredEntry, 0, len(candidates))
	for _, candidate := range candidates {
		scored = append(scored, scoreEntry(*candidate, rc, now))
	}

	sortByScore(scored)

	fallbackUsed := false
	switch {
	case signals == 0:
		// Nothing to match against: latest project memory wins outright.
		sortByRecency(scored)
		tagAll(scored, "fallback:latest-project-memory")
		fallbackUsed = true
	case scored[0].Score < lowConfidenceFloor:
		// Best scorer is unconvincing; recency beats a spurious top hit.
		sortByRecency(scored)
		tagAll(scored, "fallback:low-context-match")
		fallbackUsed = true
	}

	total := len(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	span.SetAttributes(
		attribute.Bool("memory.fallback_used", fallbackUsed),
		attribute.Int("memory.total_candidates", total),
	)

	return &models.RetrievalResult{
		Entries: scored,
		Meta: models.RetrievalMeta{
			FallbackUsed:    fallbackUsed,
			TotalCandidates: total,
			ContextSignals:  signals,
		},
	}, nil
}

// countContextSignals counts the non-empty context dimensions (0-5).
func countContextSignals(rc models.RetrievalContext) int {
	signals := 0
	if rc.FeatureScope != "" {
		signals++
	}
	if rc.TaskType != "" {
		signals++
	}
	if rc.Priority != "" {
		signals++
	}
	if rc.SearchQuery != "" {
		signals++
	}
	if len(rc.Labels) > 0 {
		signals++
	}
	return signals
}

// scoreEntry computes the additive score of one candidate. Every signal
// contributes independently; there is no normalization.
func scoreEntry(entry models.MemoryEntry, rc models.RetrievalContext, now time.Time) models.ScoredEntry {
	score := baseScore
	var reasons []string

	if rc.FeatureScope != "" {
		ctxScope := strings.ToLower(rc.FeatureScope)
		entryScope := strings.ToLower(entry.FeatureScope)
		switch {
		case ctxScope == entryScope:
			score += featureExactBoost
			reasons = append(reasons, "feature-scope:exact")
		case entryScope != "" && (strings.Contains(entryScope, ctxScope) || strings.Contains(ctxScope, entryScope)):
			score += featurePartialBoost
			reasons = append(reasons, "feature-scope:partial")
		}
	}

	if rc.TaskType != "" && rc.TaskType == entry.TaskType {
		score += taskTypeBoost
		reasons = append(reasons, "task-type:exact")
	}

	for _, label := range rc.Labels {
		if containsLabel(entry.Labels, label) {
			score += labelMatchBoost
			reasons = append(reasons, "labels:matched("+label+")")
		}
	}

	if rc.SearchQuery != "" {
		matched := matchSearchTerms(rc.SearchQuery, entry.Content)
		if len(matched) > 0 {
			boost := len(matched) * searchHitBoost
			if boost > searchBoostCap {
				boost = searchBoostCap
			}
			score += boost
			reasons = append(reasons, "search:matched("+strings.Join(matched, ",")+")")
		}
	}

	if rc.Priority != "" {
		if boost, ok := priorityBoosts[rc.Priority][entry.LessonCategory]; ok {
			score += boost
			reasons = append(reasons, fmt.Sprintf("priority:%s->%s", rc.Priority, entry.LessonCategory))
		}
	}

	score += recencyBoost(entry.CreatedAt, now)
	if now.Sub(entry.CreatedAt) <= recentWindowDays*24*time.Hour {
		reasons = append(reasons, "recency:recent")
	}

	return models.ScoredEntry{MemoryEntry: entry, Score: score, Reasons: reasons}
}

// matchSearchTerms splits the query on whitespace, keeps terms of three or
// more characters, and returns the ones found as substrings of the content.
// Substring containment only; stemming is intentionally out of scope.
func matchSearchTerms(query, content string) []string {
	loweredContent := strings.ToLower(content)
	var matched []string
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if len(term) < minSearchTermLen {
			continue
		}
		if strings.Contains(loweredContent, term) {
			matched = append(matched, term)
		}
	}
	return matched
}

// recencyBoost yields max(1, round(10 - min(9, ageInDays))): a guaranteed
// nonzero contribution that decays with age, so even a zero-signal context
// produces a stable recency ordering.
func recencyBoost(createdAt, now time.Time) int {
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	if ageDays > 9 {
		ageDays = 9
	}
	boost := int(math.Round(10 - ageDays))
	if boost < 1 {
		boost = 1
	}
	return boost
}

func sortByScore(entries []models.ScoredEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

func sortByRecency(entries []models.ScoredEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

func tagAll(entries []models.ScoredEntry, reason string) {
	for i := range entries {
		entries[i].Reasons = append(entries[i].Reasons, reason)
	}
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

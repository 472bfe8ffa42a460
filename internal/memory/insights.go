package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/jordanhubbard/memhub/pkg/models"
)

const topLessonsLimit = 8

// InsightGroup is one deduplicated lesson cluster. Entries whose content
// normalizes to the same fingerprint within a lesson category are folded
// into a single group.
type InsightGroup struct {
	Summary        string    `json:"summary"`
	Category       string    `json:"category"`
	Count          int       `json:"count"`
	LatestAt       time.Time `json:"latestAt"`
	SourceEntryIDs []string  `json:"sourceEntryIds"`
	SourceRefs     []string  `json:"sourceRefs"`
}

// MemoryInsights summarizes a project's stored lessons for dashboards.
type MemoryInsights struct {
	TotalSourceEntries int            `json:"totalSourceEntries"`
	TopLessons         []InsightGroup `json:"topLessons"`
	RecurringErrors    []InsightGroup `json:"recurringErrors"`
	FrequentDecisions  []InsightGroup `json:"frequentDecisions"`
}

// InsightFilters narrows which entries feed the aggregation. ProjectID
// "all" (or empty) means cross-project.
type InsightFilters struct {
	ProjectID    string
	FeatureScope string
	TaskType     string
}

type insightAccumulator struct {
	group       InsightGroup
	seenEntries map[string]struct{}
	seenRefs    map[string]struct{}
}

// AggregateInsights groups entries by normalized content fingerprint within
// each lesson category and returns the top clusters, recurring errors
// (seen at least twice) and frequent decisions.
func AggregateInsights(entries []models.MemoryEntry, filters InsightFilters) MemoryInsights {
	projectID := strings.ToLower(filters.ProjectID)
	crossProject := projectID == "" || projectID == models.CrossProjectID
	featureScope := strings.ToLower(filters.FeatureScope)
	taskType := strings.ToLower(filters.TaskType)

	var filtered []models.MemoryEntry
	for _, entry := range entries {
		if !crossProject && strings.ToLower(entry.ProjectID) != projectID {
			continue
		}
		if featureScope != "" && strings.ToLower(entry.FeatureScope) != featureScope {
			continue
		}
		if taskType != "" && strings.ToLower(string(entry.TaskType)) != taskType {
			continue
		}
		filtered = append(filtered, entry)
	}

	grouped := make(map[string]*insightAccumulator)
	var order []string
	for _, entry := range filtered {
		fingerprint := contentFingerprint(entry.Content)
		if fingerprint == "" {
			continue
		}
		key := strings.ToLower(string(entry.LessonCategory)) + "::" + fingerprint
		acc, ok := grouped[key]
		if !ok {
			acc = &insightAccumulator{
				group: InsightGroup{
					Summary:  entry.Content,
					Category: string(entry.LessonCategory),
					LatestAt: entry.CreatedAt,
				},
				seenEntries: make(map[string]struct{}),
				seenRefs:    make(map[string]struct{}),
			}
			grouped[key] = acc
			order = append(order, key)
		}
		acc.group.Count++
		if _, dup := acc.seenEntries[entry.ID]; !dup {
			acc.seenEntries[entry.ID] = struct{}{}
			acc.group.SourceEntryIDs = append(acc.group.SourceEntryIDs, entry.ID)
		}
		for _, ref := range entry.SourceRefs {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				continue
			}
			if _, dup := acc.seenRefs[ref]; dup {
				continue
			}
			acc.seenRefs[ref] = struct{}{}
			acc.group.SourceRefs = append(acc.group.SourceRefs, ref)
		}
		if !entry.CreatedAt.Before(acc.group.LatestAt) {
			acc.group.LatestAt = entry.CreatedAt
			acc.group.Summary = entry.Content
		}
	}

	allGroups := make([]InsightGroup, 0, len(order))
	for _, key := range order {
		allGroups = append(allGroups, grouped[key].group)
	}
	sortGroups(allGroups)

	var recurringErrors []InsightGroup
	var frequentDecisions []InsightGroup
	for _, group := range allGroups {
		category := strings.ToLower(group.Category)
		if category == string(models.CategoryError) && group.Count >= 2 {
			recurringErrors = append(recurringErrors, group)
		}
		if category == string(models.CategoryDecision) {
			frequentDecisions = append(frequentDecisions, group)
		}
	}

	top := allGroups
	if len(top) > topLessonsLimit {
		top = top[:topLessonsLimit]
	}
	return MemoryInsights{
		TotalSourceEntries: len(filtered),
		TopLessons:         top,
		RecurringErrors:    recurringErrors,
		FrequentDecisions:  frequentDecisions,
	}
}

// contentFingerprint lower-cases the content, strips everything but
// letters, digits and spaces, and collapses runs of whitespace so that
// near-identical lessons land in the same group.
func contentFingerprint(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	lastSpace := true
	for _, r := range strings.ToLower(content) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func sortGroups(groups []InsightGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		if !groups[i].LatestAt.Equal(groups[j].LatestAt) {
			return groups[i].LatestAt.After(groups[j].LatestAt)
		}
		return groups[i].Summary < groups[j].Summary
	})
}

package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/memhub/pkg/models"
)

func insightEntry(id, projectID, content string, category models.LessonCategory, createdAt time.Time) models.MemoryEntry {
	return models.MemoryEntry{
		ID:             id,
		ProjectID:      projectID,
		FeatureScope:   "billing",
		TaskType:       models.TaskDev,
		AgentID:        "agent-1",
		LessonCategory: category,
		Content:        content,
		SourceRefs:     []string{"ref-" + id},
		CreatedAt:      createdAt,
	}
}

func TestAggregateInsightsGroupsByFingerprint(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	entries := []models.MemoryEntry{
		insightEntry("e1", "vault-2", "Retry the webhook, then alert!", models.CategoryError, base),
		insightEntry("e2", "vault-2", "retry the webhook then alert", models.CategoryError, base.Add(time.Hour)),
		insightEntry("e3", "vault-2", "Retry the webhook, then alert", models.CategorySuccess, base),
	}

	insights := AggregateInsights(entries, InsightFilters{ProjectID: "vault-2"})
	require.Equal(t, 3, insights.TotalSourceEntries)
	// Punctuation and case variants collapse; category splits the groups.
	require.Len(t, insights.TopLessons, 2)

	top := insights.TopLessons[0]
	assert.Equal(t, 2, top.Count)
	assert.Equal(t, "error", top.Category)
	// Summary tracks the newest member of the group.
	assert.Equal(t, "retry the webhook then alert", top.Summary)
	assert.ElementsMatch(t, []string{"e1", "e2"}, top.SourceEntryIDs)
	assert.ElementsMatch(t, []string{"ref-e1", "ref-e2"}, top.SourceRefs)
}

func TestAggregateInsightsRecurringAndDecisions(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	entries := []models.MemoryEntry{
		insightEntry("e1", "vault-2", "flaky suite masked the regression", models.CategoryError, base),
		insightEntry("e2", "vault-2", "flaky suite masked the regression", models.CategoryError, base.Add(time.Hour)),
		insightEntry("e3", "vault-2", "a one off outage", models.CategoryError, base),
		insightEntry("e4", "vault-2", "chose sqlite for the first cut", models.CategoryDecision, base),
	}

	insights := AggregateInsights(entries, InsightFilters{ProjectID: "vault-2"})

	require.Len(t, insights.RecurringErrors, 1)
	assert.Equal(t, 2, insights.RecurringErrors[0].Count)
	assert.Equal(t, "flaky suite masked the regression", insights.RecurringErrors[0].Summary)

	require.Len(t, insights.FrequentDecisions, 1)
	assert.Equal(t, "chose sqlite for the first cut", insights.FrequentDecisions[0].Summary)
}

func TestAggregateInsightsFilters(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	other := insightEntry("e2", "other-project", "lesson from elsewhere", models.CategorySuccess, base)
	qa := insightEntry("e3", "vault-2", "qa lesson", models.CategorySuccess, base)
	qa.TaskType = models.TaskQA
	entries := []models.MemoryEntry{
		insightEntry("e1", "vault-2", "local lesson", models.CategorySuccess, base),
		other,
		qa,
	}

	scoped := AggregateInsights(entries, InsightFilters{ProjectID: "vault-2"})
	assert.Equal(t, 2, scoped.TotalSourceEntries)

	cross := AggregateInsights(entries, InsightFilters{ProjectID: models.CrossProjectID})
	assert.Equal(t, 3, cross.TotalSourceEntries)

	byTask := AggregateInsights(entries, InsightFilters{ProjectID: "vault-2", TaskType: "qa"})
	require.Equal(t, 1, byTask.TotalSourceEntries)
	assert.Equal(t, "qa lesson", byTask.TopLessons[0].Summary)
}

func TestAggregateInsightsTopLessonsCap(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	var entries []models.MemoryEntry
	for i := 0; i < 12; i++ {
		entries = append(entries, insightEntry(
			fmt.Sprintf("e%d", i), "vault-2",
			fmt.Sprintf("distinct lesson number %d", i),
			models.CategorySuccess, base.Add(time.Duration(i)*time.Minute),
		))
	}

	insights := AggregateInsights(entries, InsightFilters{ProjectID: "vault-2"})
	assert.Equal(t, 12, insights.TotalSourceEntries)
	assert.Len(t, insights.TopLessons, 8)
	// Ties on count break by recency, so the newest lesson leads.
	assert.Equal(t, "distinct lesson number 11", insights.TopLessons[0].Summary)
}

func TestContentFingerprint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Retry, then alert!", "retry then alert"},
		{"  spaced   out  ", "spaced out"},
		{"---", ""},
		{"MixedCASE123", "mixedcase123"},
	}
	for _, tc := range cases {
		if got := contentFingerprint(tc.in); got != tc.want {
			t.Fatalf("fingerprint(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jordanhubbard/memhub/pkg/models"
)

// newTestDB creates a fresh SQLite database under the test's temp dir.
// Migrations run as part of New.
func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "memhub.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleEntry(id string) *models.MemoryEntry {
	refs := []string{"TICKET-1", "label:auth"}
	return &models.MemoryEntry{
		ID:             id,
		ProjectID:      "vault-2",
		FeatureScope:   "workflow",
		TaskType:       models.TaskDev,
		AgentID:        "agent-1",
		LessonCategory: models.CategoryError,
		Content:        "rollout skipped the canary stage",
		SourceRefs:     refs,
		Labels:         models.DeriveLabels(refs),
		CreatedAt:      time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
	}
}

func sampleAudit(id, entryID string) *models.WorkflowAudit {
	return &models.WorkflowAudit{
		ID:            id,
		ProjectID:     "vault-2",
		TicketID:      "TICKET-1",
		FromStatus:    "in-progress",
		ToStatus:      models.StatusDone,
		AgentID:       "agent-1",
		MemoryEntryID: entryID,
		Payload: models.AuditPayload{
			TicketID:   "TICKET-1",
			FromStatus: "in-progress",
			ToStatus:   models.StatusDone,
			Memory: models.AuditMemorySummary{
				ID:             entryID,
				FeatureScope:   "workflow",
				TaskType:       models.TaskDev,
				LessonCategory: models.CategoryError,
				Labels:         []string{"auth"},
				SourceRefs:     []string{"TICKET-1", "label:auth"},
			},
		},
		CreatedAt: time.Date(2026, 8, 25, 9, 0, 1, 0, time.UTC),
	}
}

func TestInsertEntryAndQuery(t *testing.T) {
	db := newTestDB(t)

	entry := sampleEntry("mem-1")
	if err := db.InsertEntry(entry); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	got, err := db.QueryEntries(models.EntryFilters{ProjectID: "vault-2"})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].ID != "mem-1" || got[0].Content != entry.Content {
		t.Fatalf("round trip mismatch: %+v", got[0])
	}
	if len(got[0].Labels) != 1 || got[0].Labels[0] != "auth" {
		t.Fatalf("expected derived label auth, got %v", got[0].Labels)
	}
	if got[0].ProcessLesson != nil {
		t.Fatal("expected no process lesson")
	}
}

func TestInsertEntryDuplicateID(t *testing.T) {
	db := newTestDB(t)

	if err := db.InsertEntry(sampleEntry("mem-dup")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := db.InsertEntry(sampleEntry("mem-dup"))
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	// The duplicate attempt must not clobber or double the original.
	got, err := db.QueryEntries(models.EntryFilters{ProjectID: "vault-2"})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry after duplicate insert, got %d", len(got))
	}
}

func TestInsertEntryWithProcessLesson(t *testing.T) {
	db := newTestDB(t)

	entry := sampleEntry("mem-pl")
	entry.ProcessLesson = &models.ProcessLesson{
		DecisionMoment: "merged at midnight",
		AssumptionMade: "ci covers migrations",
		HumanReason:    "release deadline",
		MissedControl:  "migration dry run",
		NextRule:       "dry run migrations in staging first",
	}
	if err := db.InsertEntry(entry); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	got, err := db.QueryEntries(models.EntryFilters{ProjectID: "vault-2"})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 1 || got[0].ProcessLesson == nil {
		t.Fatalf("expected process lesson on round trip: %+v", got)
	}
	if got[0].ProcessLesson.NextRule != "dry run migrations in staging first" {
		t.Fatalf("process lesson mismatch: %+v", got[0].ProcessLesson)
	}
}

func TestQueryEntriesFilters(t *testing.T) {
	db := newTestDB(t)

	a := sampleEntry("mem-a")
	b := sampleEntry("mem-b")
	b.ProjectID = "other"
	b.TaskType = models.TaskQA
	b.SourceRefs = []string{"TICKET-2", "label:flaky"}
	b.Labels = models.DeriveLabels(b.SourceRefs)
	b.Content = "quarantine the flaky suite before release"
	b.CreatedAt = a.CreatedAt.Add(time.Hour)
	for _, e := range []*models.MemoryEntry{a, b} {
		if err := db.InsertEntry(e); err != nil {
			t.Fatalf("InsertEntry failed: %v", err)
		}
	}

	got, err := db.QueryEntries(models.EntryFilters{ProjectID: "vault-2"})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mem-a" {
		t.Fatalf("project filter failed: %+v", got)
	}

	// "all" spans projects, newest first.
	got, err = db.QueryEntries(models.EntryFilters{ProjectID: models.CrossProjectID})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "mem-b" {
		t.Fatalf("cross-project query failed: %+v", got)
	}

	got, err = db.QueryEntries(models.EntryFilters{ProjectID: "all", TaskType: "qa"})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mem-b" {
		t.Fatalf("task type filter failed: %+v", got)
	}

	got, err = db.QueryEntries(models.EntryFilters{ProjectID: "all", Label: "flaky"})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mem-b" {
		t.Fatalf("label filter failed: %+v", got)
	}

	got, err = db.QueryEntries(models.EntryFilters{ProjectID: "all", SearchQuery: "FLAKY SUITE"})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mem-b" {
		t.Fatalf("search filter failed: %+v", got)
	}
}

func TestQueryEntriesSearchCoversProcessLessons(t *testing.T) {
	db := newTestDB(t)

	entry := sampleEntry("mem-search")
	entry.ProcessLesson = &models.ProcessLesson{
		DecisionMoment: "skipped the checklist",
		AssumptionMade: "reviewer would catch it",
		HumanReason:    "time pressure",
		MissedControl:  "pre-merge checklist gate",
		NextRule:       "block merges without the checklist",
	}
	if err := db.InsertEntry(entry); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	got, err := db.QueryEntries(models.EntryFilters{ProjectID: "vault-2", SearchQuery: "checklist gate"})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected process-lesson text to be searchable, got %d entries", len(got))
	}
}

func TestQueryEntriesLimit(t *testing.T) {
	db := newTestDB(t)

	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := sampleEntry("mem-" + string(rune('a'+i)))
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := db.InsertEntry(e); err != nil {
			t.Fatalf("InsertEntry failed: %v", err)
		}
	}

	got, err := db.QueryEntries(models.EntryFilters{ProjectID: "vault-2", Limit: 2})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "mem-e" || got[1].ID != "mem-d" {
		t.Fatalf("expected newest first, got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestCreateWorkflowCompletionAtomic(t *testing.T) {
	db := newTestDB(t)

	entry := sampleEntry("mem-wf")
	audit := sampleAudit("audit-wf", entry.ID)
	if err := db.CreateWorkflowCompletion(entry, audit); err != nil {
		t.Fatalf("CreateWorkflowCompletion failed: %v", err)
	}

	audits, err := db.QueryAudits(models.AuditFilters{ProjectID: "vault-2"})
	if err != nil {
		t.Fatalf("QueryAudits failed: %v", err)
	}
	if len(audits) != 1 || audits[0].MemoryEntryID != "mem-wf" {
		t.Fatalf("audit round trip failed: %+v", audits)
	}
	if audits[0].Payload.Memory.ID != "mem-wf" {
		t.Fatalf("payload snapshot lost: %+v", audits[0].Payload)
	}

	// A duplicate entry id must roll back the whole unit: no audit either.
	dupEntry := sampleEntry("mem-wf")
	dupAudit := sampleAudit("audit-wf-2", dupEntry.ID)
	err = db.CreateWorkflowCompletion(dupEntry, dupAudit)
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	audits, err = db.QueryAudits(models.AuditFilters{ProjectID: "vault-2"})
	if err != nil {
		t.Fatalf("QueryAudits failed: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("expected the failed completion to leave no audit, got %d", len(audits))
	}
}

func TestQueryAuditsFilters(t *testing.T) {
	db := newTestDB(t)

	e1 := sampleEntry("mem-1")
	a1 := sampleAudit("audit-1", e1.ID)
	if err := db.CreateWorkflowCompletion(e1, a1); err != nil {
		t.Fatalf("CreateWorkflowCompletion failed: %v", err)
	}

	e2 := sampleEntry("mem-2")
	e2.AgentID = "agent-9"
	a2 := sampleAudit("audit-2", e2.ID)
	a2.TicketID = "TICKET-2"
	a2.AgentID = "agent-9"
	a2.MemoryEntryID = e2.ID
	a2.CreatedAt = a1.CreatedAt.Add(time.Minute)
	if err := db.CreateWorkflowCompletion(e2, a2); err != nil {
		t.Fatalf("CreateWorkflowCompletion failed: %v", err)
	}

	got, err := db.QueryAudits(models.AuditFilters{ProjectID: "vault-2", TicketID: "TICKET-2"})
	if err != nil {
		t.Fatalf("QueryAudits failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "audit-2" {
		t.Fatalf("ticket filter failed: %+v", got)
	}

	got, err = db.QueryAudits(models.AuditFilters{ProjectID: "vault-2", AgentID: "agent-9"})
	if err != nil {
		t.Fatalf("QueryAudits failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "audit-2" {
		t.Fatalf("agent filter failed: %+v", got)
	}

	got, err = db.QueryAudits(models.AuditFilters{ProjectID: "vault-2"})
	if err != nil {
		t.Fatalf("QueryAudits failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "audit-2" {
		t.Fatalf("expected newest audit first: %+v", got)
	}
}

func TestListProjectIDs(t *testing.T) {
	db := newTestDB(t)

	a := sampleEntry("mem-1")
	b := sampleEntry("mem-2")
	b.ProjectID = "Gateway"
	for _, e := range []*models.MemoryEntry{a, b} {
		if err := db.InsertEntry(e); err != nil {
			t.Fatalf("InsertEntry failed: %v", err)
		}
	}

	ids, err := db.ListProjectIDs()
	if err != nil {
		t.Fatalf("ListProjectIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 project ids, got %v", ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["vault-2"] || !seen["gateway"] {
		t.Fatalf("expected lower-cased ids, got %v", ids)
	}
}

func TestMigrateIsIdempotentAndReversible(t *testing.T) {
	db := newTestDB(t)

	// Re-running Migrate against an up-to-date schema is a no-op.
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	if err := db.InsertEntry(sampleEntry("mem-1")); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	if err := db.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if _, err := db.QueryEntries(models.EntryFilters{ProjectID: "vault-2"}); err == nil {
		t.Fatal("expected queries to fail after rollback")
	}

	// Migrating again restores an empty schema.
	if err := db.Migrate(); err != nil {
		t.Fatalf("re-Migrate failed: %v", err)
	}
	got, err := db.QueryEntries(models.EntryFilters{ProjectID: "vault-2"})
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty store after rollback and re-migrate, got %d", len(got))
	}
}

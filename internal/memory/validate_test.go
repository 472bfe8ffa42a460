package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/jordanhubbard/memhub/pkg/models"
)

func validEntryPayload() EntryPayload {
	return EntryPayload{
		ProjectID:      "vault-2",
		FeatureScope:   "workflow",
		TaskType:       "dev",
		AgentID:        "agent-7",
		LessonCategory: "error",
		Content:        "Migration ran before the feature flag check",
		SourceRefs:     []string{"TICKET-42"},
	}
}

func hasDetail(err *ValidationError, detail string) bool {
	for _, d := range err.Details {
		if d == detail {
			return true
		}
	}
	return false
}

func TestValidateEntryPayloadDefaults(t *testing.T) {
	entry, vErr := ValidateEntryPayload(validEntryPayload())
	if vErr != nil {
		t.Fatalf("unexpected validation error: %v", vErr)
	}
	if !strings.HasPrefix(entry.ID, "mem-") {
		t.Fatalf("expected generated mem- id, got %q", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("expected createdAt to default to now")
	}
	if entry.TaskType != models.TaskDev || entry.LessonCategory != models.CategoryError {
		t.Fatalf("unexpected normalized enums: %s / %s", entry.TaskType, entry.LessonCategory)
	}
}

func TestValidateEntryPayloadCollectsAllErrors(t *testing.T) {
	_, vErr := ValidateEntryPayload(EntryPayload{TaskType: "sorcery", LessonCategory: "triumph"})
	if vErr == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"projectId is required",
		"featureScope is required",
		"agentId is required",
		"content is required",
		"sourceRefs must contain at least one source id",
		"taskType must be one of dev|design|qa|pm|other",
		"lessonCategory must be one of success|error|decision|constraint",
	} {
		if !hasDetail(vErr, want) {
			t.Fatalf("missing detail %q in %v", want, vErr.Details)
		}
	}
}

func TestValidateEntryPayloadLabelsFoldIntoSourceRefs(t *testing.T) {
	p := validEntryPayload()
	p.SourceRefs = []string{"TICKET-42", "label:Auth"}
	p.Labels = []string{"Payments", "auth", "  "}

	entry, vErr := ValidateEntryPayload(p)
	if vErr != nil {
		t.Fatalf("unexpected validation error: %v", vErr)
	}

	wantRefs := []string{"TICKET-42", "label:Auth", "label:payments", "label:auth"}
	if len(entry.SourceRefs) != len(wantRefs) {
		t.Fatalf("expected refs %v, got %v", wantRefs, entry.SourceRefs)
	}
	for i, ref := range wantRefs {
		if entry.SourceRefs[i] != ref {
			t.Fatalf("ref %d: expected %q, got %q", i, ref, entry.SourceRefs[i])
		}
	}
	// Labels are re-derived from refs: lower-cased and de-duplicated.
	wantLabels := []string{"auth", "payments"}
	if len(entry.Labels) != len(wantLabels) {
		t.Fatalf("expected labels %v, got %v", wantLabels, entry.Labels)
	}
	for i, label := range wantLabels {
		if entry.Labels[i] != label {
			t.Fatalf("label %d: expected %q, got %q", i, label, entry.Labels[i])
		}
	}
}

func TestValidateEntryPayloadCreatedAt(t *testing.T) {
	p := validEntryPayload()
	p.CreatedAt = "2026-08-01T10:00:00Z"
	entry, vErr := ValidateEntryPayload(p)
	if vErr != nil {
		t.Fatalf("unexpected validation error: %v", vErr)
	}
	want := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if !entry.CreatedAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, entry.CreatedAt)
	}

	p.CreatedAt = "yesterday-ish"
	_, vErr = ValidateEntryPayload(p)
	if vErr == nil || !hasDetail(vErr, "createdAt must be an ISO-8601 timestamp") {
		t.Fatalf("expected createdAt error, got %v", vErr)
	}
}

func TestValidateEntryPayloadProcessLesson(t *testing.T) {
	p := validEntryPayload()
	p.ProcessLesson = &models.ProcessLesson{
		DecisionMoment: "deploy at 5pm friday",
		AssumptionMade: "rollback is instant",
		HumanReason:    "deadline pressure",
		MissedControl:  "no canary stage",
		NextRule:       "never deploy without a canary",
	}
	entry, vErr := ValidateEntryPayload(p)
	if vErr != nil {
		t.Fatalf("unexpected validation error: %v", vErr)
	}
	if entry.ProcessLesson == nil || entry.ProcessLesson.NextRule != "never deploy without a canary" {
		t.Fatalf("process lesson not carried: %+v", entry.ProcessLesson)
	}

	// All-blank counts as absent, not invalid.
	p.ProcessLesson = &models.ProcessLesson{}
	entry, vErr = ValidateEntryPayload(p)
	if vErr != nil {
		t.Fatalf("unexpected validation error: %v", vErr)
	}
	if entry.ProcessLesson != nil {
		t.Fatal("expected blank process lesson to normalize to absent")
	}

	// Partial is rejected.
	p.ProcessLesson = &models.ProcessLesson{DecisionMoment: "deploy at 5pm"}
	_, vErr = ValidateEntryPayload(p)
	if vErr == nil {
		t.Fatal("expected partial process lesson to fail")
	}
}

func TestValidateEntryQueryLimits(t *testing.T) {
	filters, vErr := ValidateEntryQuery(QueryPayload{ProjectID: "vault-2"})
	if vErr != nil {
		t.Fatalf("unexpected validation error: %v", vErr)
	}
	if filters.Limit != 100 {
		t.Fatalf("expected default limit 100, got %d", filters.Limit)
	}

	for _, bad := range []string{"0", "-5", "201", "lots"} {
		_, vErr = ValidateEntryQuery(QueryPayload{ProjectID: "vault-2", Limit: bad})
		if vErr == nil {
			t.Fatalf("expected limit %q to fail", bad)
		}
	}

	filters, vErr = ValidateEntryQuery(QueryPayload{ProjectID: "all", Label: "AUTH", Limit: "200"})
	if vErr != nil {
		t.Fatalf("unexpected validation error: %v", vErr)
	}
	if filters.Limit != 200 || filters.Label != "auth" {
		t.Fatalf("unexpected filters: %+v", filters)
	}
}

func TestValidateRetrievalContextNormalization(t *testing.T) {
	rc, vErr := ValidateRetrievalContext(RetrievalPayload{
		ProjectID: "vault-2",
		TaskType:  "DEV",
		Priority:  "p0",
		Labels:    []string{"Auth", "auth", " payments "},
	})
	if vErr != nil {
		t.Fatalf("unexpected validation error: %v", vErr)
	}
	if rc.TaskType != models.TaskDev || rc.Priority != models.PriorityP0 {
		t.Fatalf("unexpected normalization: %+v", rc)
	}
	if len(rc.Labels) != 2 || rc.Labels[0] != "auth" || rc.Labels[1] != "payments" {
		t.Fatalf("unexpected labels: %v", rc.Labels)
	}
	if rc.Limit != 10 {
		t.Fatalf("expected default retrieval limit 10, got %d", rc.Limit)
	}

	_, vErr = ValidateRetrievalContext(RetrievalPayload{ProjectID: "vault-2", Limit: 51})
	if vErr == nil || !hasDetail(vErr, "limit must be an integer between 1 and 50") {
		t.Fatalf("expected retrieval limit error, got %v", vErr)
	}

	_, vErr = ValidateRetrievalContext(RetrievalPayload{ProjectID: "vault-2", Priority: "P4"})
	if vErr == nil || !hasDetail(vErr, "priority must be one of P0|P1|P2|P3") {
		t.Fatalf("expected priority error, got %v", vErr)
	}
}

func TestValidateWorkflowCompletion(t *testing.T) {
	nested := validEntryPayload()
	nested.ProjectID = ""
	nested.AgentID = ""
	nested.SourceRefs = []string{"PR-9", "label:auth"}

	entry, completion, vErr := ValidateWorkflowCompletion(WorkflowCompletionPayload{
		ProjectID:  "vault-2",
		TicketID:   "TICKET-7",
		FromStatus: "in-progress",
		ToStatus:   "done",
		AgentID:    "agent-3",
		Memory:     &nested,
	})
	if vErr != nil {
		t.Fatalf("unexpected validation error: %v", vErr)
	}
	if completion.ToStatus != models.StatusDone {
		t.Fatalf("unexpected transition: %+v", completion)
	}
	if entry.ProjectID != "vault-2" || entry.AgentID != "agent-3" {
		t.Fatalf("outer fields not inherited: %+v", entry)
	}
	if entry.SourceRefs[0] != "TICKET-7" {
		t.Fatalf("expected ticket id prepended to refs, got %v", entry.SourceRefs)
	}
	// Label refs survive the merge so labels stay derivable.
	if len(entry.Labels) != 1 || entry.Labels[0] != "auth" {
		t.Fatalf("expected label auth, got %v", entry.Labels)
	}
}

func TestValidateWorkflowCompletionErrors(t *testing.T) {
	_, _, vErr := ValidateWorkflowCompletion(WorkflowCompletionPayload{ToStatus: "archived"})
	if vErr == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"projectId is required",
		"ticketId is required",
		"fromStatus is required",
		"agentId is required",
		"toStatus must be one of in-review|done",
		"memory is required",
	} {
		if !hasDetail(vErr, want) {
			t.Fatalf("missing detail %q in %v", want, vErr.Details)
		}
	}

	// Nested memory errors surface with a memory. prefix.
	_, _, vErr = ValidateWorkflowCompletion(WorkflowCompletionPayload{
		ProjectID:  "vault-2",
		TicketID:   "TICKET-7",
		FromStatus: "in-progress",
		ToStatus:   "done",
		AgentID:    "agent-3",
		Memory:     &EntryPayload{},
	})
	if vErr == nil || !hasDetail(vErr, "memory.content is required") {
		t.Fatalf("expected prefixed nested error, got %v", vErr)
	}
}

func TestValidateWorkflowCompletionRequiresOwnSourceRefs(t *testing.T) {
	// The ticket id alone must not satisfy the nested non-empty rule.
	entry, _, vErr := ValidateWorkflowCompletion(WorkflowCompletionPayload{
		ProjectID:  "vault-2",
		TicketID:   "TICKET-7",
		FromStatus: "in-progress",
		ToStatus:   "done",
		AgentID:    "agent-3",
		Memory: &EntryPayload{
			FeatureScope:   "checkout",
			TaskType:       "dev",
			LessonCategory: "decision",
			Content:        "Kept the legacy tax service behind a flag.",
		},
	})
	if entry != nil {
		t.Fatal("expected rejection, got an entry")
	}
	if vErr == nil || !hasDetail(vErr, "memory.sourceRefs must contain at least one source id") {
		t.Fatalf("expected nested sourceRefs error, got %v", vErr)
	}

	// Whitespace-only refs count as empty.
	_, _, vErr = ValidateWorkflowCompletion(WorkflowCompletionPayload{
		ProjectID:  "vault-2",
		TicketID:   "TICKET-7",
		FromStatus: "in-progress",
		ToStatus:   "done",
		AgentID:    "agent-3",
		Memory: &EntryPayload{
			FeatureScope:   "checkout",
			TaskType:       "dev",
			LessonCategory: "decision",
			Content:        "Kept the legacy tax service behind a flag.",
			SourceRefs:     []string{"  "},
		},
	})
	if vErr == nil || !hasDetail(vErr, "memory.sourceRefs must contain at least one source id") {
		t.Fatalf("expected nested sourceRefs error, got %v", vErr)
	}
}

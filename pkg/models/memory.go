package models

import (
	"strings"
	"time"
)

// TaskType classifies the kind of work that produced a lesson.
type TaskType string

const (
	TaskDev    TaskType = "dev"
	TaskDesign TaskType = "design"
	TaskQA     TaskType = "qa"
	TaskPM     TaskType = "pm"
	TaskOther  TaskType = "other"
)

// LessonCategory classifies what kind of lesson an entry records.
type LessonCategory string

const (
	CategorySuccess    LessonCategory = "success"
	CategoryError      LessonCategory = "error"
	CategoryDecision   LessonCategory = "decision"
	CategoryConstraint LessonCategory = "constraint"
)

// Priority is the caller-supplied ticket priority used as a retrieval hint.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// WorkflowStatus is a ticket status that can end a workflow transition.
type WorkflowStatus string

const (
	StatusInReview WorkflowStatus = "in-review"
	StatusDone     WorkflowStatus = "done"
)

// CrossProjectID is the reserved projectId sentinel meaning "all projects".
const CrossProjectID = "all"

// LabelRefPrefix marks a sourceRef that encodes a label.
const LabelRefPrefix = "label:"

// ProcessLesson is an optional structured post-mortem attached to a memory
// entry. All five fields are present together or the lesson is absent.
type ProcessLesson struct {
	DecisionMoment string `json:"decisionMoment"`
	AssumptionMade string `json:"assumptionMade"`
	HumanReason    string `json:"humanReason"`
	MissedControl  string `json:"missedControl"`
	NextRule       string `json:"nextRule"`
}

// MemoryEntry is one recorded lesson learned by a software-delivery agent.
// Entries are per-project and injected into future tickets, handoffs and
// prompts to avoid repeating mistakes. Immutable after creation.
type MemoryEntry struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"projectId"`
	FeatureScope   string         `json:"featureScope"`
	TaskType       TaskType       `json:"taskType"`
	AgentID        string         `json:"agentId"`
	LessonCategory LessonCategory `json:"lessonCategory"`
	Content        string         `json:"content"`
	SourceRefs     []string       `json:"sourceRefs"`
	Labels         []string       `json:"labels"`
	CreatedAt      time.Time      `json:"createdAt"`
	ProcessLesson  *ProcessLesson `json:"processLesson,omitempty"`
}

// DeriveLabels reconstructs the label set from label:-prefixed source refs.
// Labels are lower-cased and de-duplicated; they are never stored on their
// own, so this is the single source of truth for an entry's labels.
func DeriveLabels(sourceRefs []string) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, ref := range sourceRefs {
		if !strings.HasPrefix(ref, LabelRefPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(ref, LabelRefPrefix))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		labels = append(labels, name)
	}
	return labels
}

// NonLabelRefs returns the provenance refs of an entry with the label:
// convention entries stripped out.
func NonLabelRefs(sourceRefs []string) []string {
	var refs []string
	for _, ref := range sourceRefs {
		if !strings.HasPrefix(ref, LabelRefPrefix) {
			refs = append(refs, ref)
		}
	}
	return refs
}

// AuditMemorySummary is the snapshot of the pushed memory entry carried in
// a workflow audit payload.
type AuditMemorySummary struct {
	ID             string         `json:"id"`
	FeatureScope   string         `json:"featureScope"`
	TaskType       TaskType       `json:"taskType"`
	LessonCategory LessonCategory `json:"lessonCategory"`
	Labels         []string       `json:"labels"`
	SourceRefs     []string       `json:"sourceRefs"`
}

// AuditPayload snapshots a workflow transition together with the memory it
// produced.
type AuditPayload struct {
	TicketID   string             `json:"ticketId"`
	FromStatus string             `json:"fromStatus"`
	ToStatus   WorkflowStatus     `json:"toStatus"`
	Memory     AuditMemorySummary `json:"memory"`
}

// WorkflowAudit records one ticket status transition tied to a memory entry.
// An audit never exists without its entry; both are written in one
// transaction.
type WorkflowAudit struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"projectId"`
	TicketID      string         `json:"ticketId"`
	FromStatus    string         `json:"fromStatus"`
	ToStatus      WorkflowStatus `json:"toStatus"`
	AgentID       string         `json:"agentId"`
	MemoryEntryID string         `json:"memoryEntryId"`
	Payload       AuditPayload   `json:"payload"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// EntryFilters selects memory entries in store queries. Empty fields are
// ignored, filters are AND-combined. ProjectID "all" means cross-project.
type EntryFilters struct {
	ProjectID      string
	FeatureScope   string
	TaskType       string
	AgentID        string
	LessonCategory string
	Label          string
	SearchQuery    string
	Limit          int
}

// AuditFilters selects workflow audits in store queries.
type AuditFilters struct {
	ProjectID string
	TicketID  string
	AgentID   string
	Limit     int
}

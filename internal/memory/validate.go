package memory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/memhub/pkg/models"
)

// ValidationError collects every field-level violation found in a payload.
// Callers surface the whole list, never just the first problem.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "invalid payload: " + strings.Join(e.Details, "; ")
}

func newValidationError(details []string) *ValidationError {
	return &ValidationError{Details: details}
}

// EntryPayload is the raw creation input before normalization.
type EntryPayload struct {
	ID             string                `json:"id"`
	ProjectID      string                `json:"projectId"`
	FeatureScope   string                `json:"featureScope"`
	TaskType       string                `json:"taskType"`
	AgentID        string                `json:"agentId"`
	LessonCategory string                `json:"lessonCategory"`
	Content        string                `json:"content"`
	SourceRefs     []string              `json:"sourceRefs"`
	Labels         []string              `json:"labels"`
	CreatedAt      string                `json:"createdAt"`
	ProcessLesson  *models.ProcessLesson `json:"processLesson,omitempty"`
}

// QueryPayload is the raw list/query input. Limit arrives as a string
// because listing is driven by URL query parameters.
type QueryPayload struct {
	ProjectID      string
	FeatureScope   string
	TaskType       string
	AgentID        string
	LessonCategory string
	Label          string
	SearchQuery    string
	Limit          string
}

// AuditQueryPayload is the raw workflow-audit query input.
type AuditQueryPayload struct {
	ProjectID string
	TicketID  string
	AgentID   string
	Limit     string
}

// RetrievalPayload is the raw retrieval-context input.
type RetrievalPayload struct {
	ProjectID    string   `json:"projectId"`
	FeatureScope string   `json:"featureScope"`
	TaskType     string   `json:"taskType"`
	Priority     string   `json:"priority"`
	Labels       []string `json:"labels"`
	SearchQuery  string   `json:"searchQuery"`
	Limit        int      `json:"limit"`
}

// WorkflowCompletionPayload is the raw ticket-finish input. The nested
// memory payload inherits projectId and agentId from the outer fields.
type WorkflowCompletionPayload struct {
	ProjectID  string        `json:"projectId"`
	TicketID   string        `json:"ticketId"`
	FromStatus string        `json:"fromStatus"`
	ToStatus   string        `json:"toStatus"`
	AgentID    string        `json:"agentId"`
	Memory     *EntryPayload `json:"memory"`
}

const (
	defaultListLimit      = 100
	maxListLimit          = 200
	defaultRetrievalLimit = 10
	maxRetrievalLimit     = 50
)

func validTaskType(v string) bool {
	switch models.TaskType(v) {
	case models.TaskDev, models.TaskDesign, models.TaskQA, models.TaskPM, models.TaskOther:
		return true
	}
	return false
}

func validLessonCategory(v string) bool {
	switch models.LessonCategory(v) {
	case models.CategorySuccess, models.CategoryError, models.CategoryDecision, models.CategoryConstraint:
		return true
	}
	return false
}

func validPriority(v string) bool {
	switch models.Priority(v) {
	case models.PriorityP0, models.PriorityP1, models.PriorityP2, models.PriorityP3:
		return true
	}
	return false
}

func validWorkflowStatus(v string) bool {
	switch models.WorkflowStatus(v) {
	case models.StatusInReview, models.StatusDone:
		return true
	}
	return false
}

// trimStrings trims every element and drops the empties.
func trimStrings(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// ValidateEntryPayload normalizes a creation payload into a MemoryEntry or
// returns the full list of field errors. Label names are folded into the
// sourceRefs set via the label: convention so labels stay derivable.
func ValidateEntryPayload(p EntryPayload) (*models.MemoryEntry, *ValidationError) {
	projectID := strings.TrimSpace(p.ProjectID)
	featureScope := strings.TrimSpace(p.FeatureScope)
	taskType := strings.ToLower(strings.TrimSpace(p.TaskType))
	agentID := strings.TrimSpace(p.AgentID)
	lessonCategory := strings.ToLower(strings.TrimSpace(p.LessonCategory))
	content := strings.TrimSpace(p.Content)
	sourceRefs := trimStrings(p.SourceRefs)
	labels := trimStrings(p.Labels)

	var errs []string
	if projectID == "" {
		errs = append(errs, "projectId is required")
	}
	if featureScope == "" {
		errs = append(errs, "featureScope is required")
	}
	if taskType == "" {
		errs = append(errs, "taskType is required")
	}
	if agentID == "" {
		errs = append(errs, "agentId is required")
	}
	if lessonCategory == "" {
		errs = append(errs, "lessonCategory is required")
	}
	if content == "" {
		errs = append(errs, "content is required")
	}
	if len(sourceRefs) == 0 {
		errs = append(errs, "sourceRefs must contain at least one source id")
	}
	if taskType != "" && !validTaskType(taskType) {
		errs = append(errs, "taskType must be one of dev|design|qa|pm|other")
	}
	if lessonCategory != "" && !validLessonCategory(lessonCategory) {
		errs = append(errs, "lessonCategory must be one of success|error|decision|constraint")
	}

	createdAt := time.Time{}
	if raw := strings.TrimSpace(p.CreatedAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errs = append(errs, "createdAt must be an ISO-8601 timestamp")
		} else {
			createdAt = parsed.UTC()
		}
	}

	processLesson, plErr := normalizeProcessLesson(p.ProcessLesson)
	if plErr != "" {
		errs = append(errs, plErr)
	}

	if len(errs) > 0 {
		return nil, newValidationError(errs)
	}

	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = "mem-" + uuid.NewString()
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	for _, label := range labels {
		sourceRefs = append(sourceRefs, models.LabelRefPrefix+strings.ToLower(label))
	}
	sourceRefs = uniqueStrings(sourceRefs)

	return &models.MemoryEntry{
		ID:             id,
		ProjectID:      projectID,
		FeatureScope:   featureScope,
		TaskType:       models.TaskType(taskType),
		AgentID:        agentID,
		LessonCategory: models.LessonCategory(lessonCategory),
		Content:        content,
		SourceRefs:     sourceRefs,
		Labels:         models.DeriveLabels(sourceRefs),
		CreatedAt:      createdAt,
		ProcessLesson:  processLesson,
	}, nil
}

// normalizeProcessLesson enforces the all-or-nothing rule on the five
// post-mortem fields. A lesson with every field blank counts as absent.
func normalizeProcessLesson(pl *models.ProcessLesson) (*models.ProcessLesson, string) {
	if pl == nil {
		return nil, ""
	}

	fields := []string{
		strings.TrimSpace(pl.DecisionMoment),
		strings.TrimSpace(pl.AssumptionMade),
		strings.TrimSpace(pl.HumanReason),
		strings.TrimSpace(pl.MissedControl),
		strings.TrimSpace(pl.NextRule),
	}

	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}
	if filled == 0 {
		return nil, ""
	}
	if filled < len(fields) {
		return nil, "processLesson requires decisionMoment, assumptionMade, humanReason, missedControl and nextRule together"
	}

	return &models.ProcessLesson{
		DecisionMoment: fields[0],
		AssumptionMade: fields[1],
		HumanReason:    fields[2],
		MissedControl:  fields[3],
		NextRule:       fields[4],
	}, ""
}

// ValidateEntryQuery normalizes a list query into store filters.
func ValidateEntryQuery(q QueryPayload) (*models.EntryFilters, *ValidationError) {
	projectID := strings.TrimSpace(q.ProjectID)
	taskType := strings.ToLower(strings.TrimSpace(q.TaskType))
	lessonCategory := strings.ToLower(strings.TrimSpace(q.LessonCategory))

	var errs []string
	if projectID == "" {
		errs = append(errs, "projectId is required")
	}
	if taskType != "" && !validTaskType(taskType) {
		errs = append(errs, "taskType must be one of dev|design|qa|pm|other")
	}
	if lessonCategory != "" && !validLessonCategory(lessonCategory) {
		errs = append(errs, "lessonCategory must be one of success|error|decision|constraint")
	}

	limit, limitErr := parseLimit(q.Limit, defaultListLimit, maxListLimit)
	if limitErr != "" {
		errs = append(errs, limitErr)
	}

	if len(errs) > 0 {
		return nil, newValidationError(errs)
	}

	return &models.EntryFilters{
		ProjectID:      projectID,
		FeatureScope:   strings.TrimSpace(q.FeatureScope),
		TaskType:       taskType,
		AgentID:        strings.TrimSpace(q.AgentID),
		LessonCategory: lessonCategory,
		Label:          strings.ToLower(strings.TrimSpace(q.Label)),
		SearchQuery:    strings.TrimSpace(q.SearchQuery),
		Limit:          limit,
	}, nil
}

// ValidateAuditQuery normalizes a workflow-audit query into store filters.
func ValidateAuditQuery(q AuditQueryPayload) (*models.AuditFilters, *ValidationError) {
	projectID := strings.TrimSpace(q.ProjectID)

	var errs []string
	if projectID == "" {
		errs = append(errs, "projectId is required")
	}

	limit, limitErr := parseLimit(q.Limit, defaultListLimit, maxListLimit)
	if limitErr != "" {
		errs = append(errs, limitErr)
	}

	if len(errs) > 0 {
		return nil, newValidationError(errs)
	}

	return &models.AuditFilters{
		ProjectID: projectID,
		TicketID:  strings.TrimSpace(q.TicketID),
		AgentID:   strings.TrimSpace(q.AgentID),
		Limit:     limit,
	}, nil
}

func parseLimit(raw string, def, max int) (int, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, ""
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 || parsed > max {
		return 0, fmt.Sprintf("limit must be an integer between 1 and %d", max)
	}
	return parsed, ""
}

// ValidateRetrievalContext normalizes a retrieval payload into the context
// the ranking engine scores against.
func ValidateRetrievalContext(p RetrievalPayload) (*models.RetrievalContext, *ValidationError) {
	projectID := strings.TrimSpace(p.ProjectID)
	taskType := strings.ToLower(strings.TrimSpace(p.TaskType))
	priority := strings.ToUpper(strings.TrimSpace(p.Priority))

	var errs []string
	if projectID == "" {
		errs = append(errs, "projectId is required")
	}
	if taskType != "" && !validTaskType(taskType) {
		errs = append(errs, "taskType must be one of dev|design|qa|pm|other")
	}
	if priority != "" && !validPriority(priority) {
		errs = append(errs, "priority must be one of P0|P1|P2|P3")
	}

	limit := p.Limit
	if limit == 0 {
		limit = defaultRetrievalLimit
	}
	if limit < 1 || limit > maxRetrievalLimit {
		errs = append(errs, fmt.Sprintf("limit must be an integer between 1 and %d", maxRetrievalLimit))
	}

	if len(errs) > 0 {
		return nil, newValidationError(errs)
	}

	labels := trimStrings(p.Labels)
	for i, label := range labels {
		labels[i] = strings.ToLower(label)
	}

	return &models.RetrievalContext{
		ProjectID:    projectID,
		FeatureScope: strings.TrimSpace(p.FeatureScope),
		TaskType:     models.TaskType(taskType),
		Priority:     models.Priority(priority),
		Labels:       uniqueStrings(labels),
		SearchQuery:  strings.TrimSpace(p.SearchQuery),
		Limit:        limit,
	}, nil
}

// ValidateWorkflowCompletion normalizes a ticket-finish payload. Nested
// memory errors are surfaced with a memory. prefix so the caller sees every
// violation in one pass. The ticket id is folded into the entry's source
// refs.
func ValidateWorkflowCompletion(p WorkflowCompletionPayload) (*models.MemoryEntry, *WorkflowCompletion, *ValidationError) {
	projectID := strings.TrimSpace(p.ProjectID)
	ticketID := strings.TrimSpace(p.TicketID)
	fromStatus := strings.TrimSpace(p.FromStatus)
	toStatus := strings.ToLower(strings.TrimSpace(p.ToStatus))
	agentID := strings.TrimSpace(p.AgentID)

	var errs []string
	if projectID == "" {
		errs = append(errs, "projectId is required")
	}
	if ticketID == "" {
		errs = append(errs, "ticketId is required")
	}
	if fromStatus == "" {
		errs = append(errs, "fromStatus is required")
	}
	if toStatus == "" {
		errs = append(errs, "toStatus is required")
	}
	if agentID == "" {
		errs = append(errs, "agentId is required")
	}
	if toStatus != "" && !validWorkflowStatus(toStatus) {
		errs = append(errs, "toStatus must be one of in-review|done")
	}

	var entry *models.MemoryEntry
	if p.Memory == nil {
		errs = append(errs, "memory is required")
	} else {
		nested := *p.Memory
		nested.ProjectID = projectID
		nested.AgentID = agentID
		if ticketID != "" {
			// The nested memory must carry refs of its own; the ticket id
			// merged below does not satisfy the non-empty rule.
			if len(trimStrings(nested.SourceRefs)) == 0 {
				errs = append(errs, "memory.sourceRefs must contain at least one source id")
			}
			nested.SourceRefs = append([]string{ticketID}, nested.SourceRefs...)
		}
		validated, vErr := ValidateEntryPayload(nested)
		if vErr != nil {
			for _, detail := range vErr.Details {
				errs = append(errs, "memory."+detail)
			}
		} else {
			entry = validated
		}
	}

	if len(errs) > 0 {
		return nil, nil, newValidationError(errs)
	}

	return entry, &WorkflowCompletion{
		ProjectID:  projectID,
		TicketID:   ticketID,
		FromStatus: fromStatus,
		ToStatus:   models.WorkflowStatus(toStatus),
		AgentID:    agentID,
	}, nil
}

// WorkflowCompletion is the normalized transition half of a ticket-finish
// payload.
type WorkflowCompletion struct {
	ProjectID  string
	TicketID   string
	FromStatus string
	ToStatus   models.WorkflowStatus
	AgentID    string
}

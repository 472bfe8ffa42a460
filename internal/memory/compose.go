package memory

import (
	"context"
	"strconv"
	"strings"

	"github.com/jordanhubbard/memhub/pkg/models"
)

const (
	lessonsHeading      = "## Lessons to avoid repeating mistakes"
	processHeading      = "## Human/Process Lessons"
	emptyLessonsLine    = "- No contextual memory matched; apply safe defaults and record new lessons as you go."
	defaultComposeLimit = 5
	memorySourcesPrefix = "Memory source IDs: "
	noMemorySources     = "none"
)

// Composer renders retrieval results into templated artifact text. Each
// helper validates its own required fields, derives a retrieval context and
// reports which memories it used.
type Composer struct {
	engine *Engine
}

// NewComposer creates a Composer over the given ranking engine.
func NewComposer(engine *Engine) *Composer {
	return &Composer{engine: engine}
}

// ComposeRequest carries the shared fields of all composition payloads.
type ComposeRequest struct {
	ProjectID    string   `json:"projectId"`
	TicketID     string   `json:"ticketId"`
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	FeatureScope string   `json:"featureScope"`
	TaskType     string   `json:"taskType"`
	Priority     string   `json:"priority"`
	Labels       []string `json:"labels"`
	SearchQuery  string   `json:"searchQuery"`
	SpecMarkdown string   `json:"specMarkdown"`
	Limit        int      `json:"limit"`
}

// Ticket is a rendered ticket draft with memory injected.
type Ticket struct {
	Title           string `json:"title"`
	SpecMarkdown    string `json:"specMarkdown"`
	ReferencePrompt string `json:"referencePrompt"`
}

// TicketResult is the output of ComposeTicket.
type TicketResult struct {
	Ticket      Ticket             `json:"ticket"`
	MemoryTrace models.MemoryTrace `json:"memoryTrace"`
}

// HandoffResult is the output of ComposeHandoff.
type HandoffResult struct {
	HandoffMarkdown string             `json:"handoffMarkdown"`
	MemoryTrace     models.MemoryTrace `json:"memoryTrace"`
}

// PromptResult is the output of ComposeReferencePrompt.
type PromptResult struct {
	ReferencePrompt string             `json:"referencePrompt"`
	MemoryTrace     models.MemoryTrace `json:"memoryTrace"`
}

func (c *Composer) retrieve(ctx context.Context, req ComposeRequest) (*models.RetrievalResult, *models.RetrievalContext, error) {
	limit := req.Limit
	if limit == 0 {
		limit = defaultComposeLimit
	}

	rc, vErr := ValidateRetrievalContext(RetrievalPayload{
		ProjectID:    req.ProjectID,
		FeatureScope: req.FeatureScope,
		TaskType:     req.TaskType,
		Priority:     req.Priority,
		Labels:       req.Labels,
		SearchQuery:  req.SearchQuery,
		Limit:        limit,
	})
	if vErr != nil {
		return nil, nil, vErr
	}

	result, err := c.engine.Retrieve(ctx, *rc)
	if err != nil {
		return nil, nil, err
	}
	return result, rc, nil
}

// ComposeTicket renders a ticket spec and its reference prompt with the
// most relevant lessons spliced in.
func (c *Composer) ComposeTicket(ctx context.Context, req ComposeRequest) (*TicketResult, error) {
	var errs []string
	if strings.TrimSpace(req.ProjectID) == "" {
		errs = append(errs, "projectId is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		errs = append(errs, "title is required")
	}
	if len(errs) > 0 {
		return nil, newValidationError(errs)
	}

	result, _, err := c.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	memoryBlock := renderMemorySections(result.Entries)

	var spec strings.Builder
	if base := strings.TrimSpace(req.SpecMarkdown); base != "" {
		spec.WriteString(base)
		spec.WriteString("\n\n")
	}
	spec.WriteString(memoryBlock)

	var prompt strings.Builder
	prompt.WriteString("You are implementing: " + strings.TrimSpace(req.Title) + "\n\n")
	prompt.WriteString(memoryBlock)

	return &TicketResult{
		Ticket: Ticket{
			Title:           strings.TrimSpace(req.Title),
			SpecMarkdown:    spec.String(),
			ReferencePrompt: prompt.String(),
		},
		MemoryTrace: buildTrace(result),
	}, nil
}

// ComposeHandoff renders a handoff note for a ticket with relevant lessons
// appended.
func (c *Composer) ComposeHandoff(ctx context.Context, req ComposeRequest) (*HandoffResult, error) {
	var errs []string
	if strings.TrimSpace(req.ProjectID) == "" {
		errs = append(errs, "projectId is required")
	}
	if strings.TrimSpace(req.TicketID) == "" {
		errs = append(errs, "ticketId is required")
	}
	if strings.TrimSpace(req.Summary) == "" {
		errs = append(errs, "summary is required")
	}
	if len(errs) > 0 {
		return nil, newValidationError(errs)
	}

	result, _, err := c.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	var md strings.Builder
	md.WriteString("# Handoff - " + strings.TrimSpace(req.TicketID) + "\n\n")
	md.WriteString(strings.TrimSpace(req.Summary) + "\n\n")
	md.WriteString(renderMemorySections(result.Entries))

	return &HandoffResult{
		HandoffMarkdown: md.String(),
		MemoryTrace:     buildTrace(result),
	}, nil
}

// ComposeReferencePrompt renders a standalone reference prompt for agent
// consumption.
func (c *Composer) ComposeReferencePrompt(ctx context.Context, req ComposeRequest) (*PromptResult, error) {
	var errs []string
	if strings.TrimSpace(req.ProjectID) == "" {
		errs = append(errs, "projectId is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		errs = append(errs, "title is required")
	}
	if len(errs) > 0 {
		return nil, newValidationError(errs)
	}

	var prompt strings.Builder
	prompt.WriteString("Reference prompt: " + strings.TrimSpace(req.Title) + "\n")
	if ticketID := strings.TrimSpace(req.TicketID); ticketID != "" {
		prompt.WriteString("Ticket: " + ticketID + "\n")
	}
	prompt.WriteString("\n")

	result, _, err := c.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	prompt.WriteString(renderMemorySections(result.Entries))

	return &PromptResult{
		ReferencePrompt: prompt.String(),
		MemoryTrace:     buildTrace(result),
	}, nil
}

// renderMemorySections renders the lessons block injected into every
// composed artifact: the lessons list, the optional process-lesson section,
// and the trailing source-ID audit line.
func renderMemorySections(entries []models.ScoredEntry) string {
	var b strings.Builder

	b.WriteString(lessonsHeading + "\n")
	if len(entries) == 0 {
		b.WriteString(emptyLessonsLine + "\n")
	} else {
		for _, entry := range entries {
			b.WriteString(renderLessonLine(entry) + "\n")
		}
	}

	var withProcess []models.ScoredEntry
	for _, entry := range entries {
		if entry.ProcessLesson != nil {
			withProcess = append(withProcess, entry)
		}
	}
	if len(withProcess) > 0 {
		b.WriteString("\n" + processHeading + "\n")
		for _, entry := range withProcess {
			pl := entry.ProcessLesson
			b.WriteString("- [" + entry.ID + "]\n")
			b.WriteString("  - Decision moment: " + pl.DecisionMoment + "\n")
			b.WriteString("  - Assumption made: " + pl.AssumptionMade + "\n")
			b.WriteString("  - Human reason: " + pl.HumanReason + "\n")
			b.WriteString("  - Missed control: " + pl.MissedControl + "\n")
			b.WriteString("  - Next rule: " + pl.NextRule + "\n")
		}
	}

	b.WriteString("\n" + memorySourcesPrefix + joinIDs(entries) + "\n")
	return b.String()
}

func renderLessonLine(entry models.ScoredEntry) string {
	sources := models.NonLabelRefs(entry.SourceRefs)
	sourceText := noMemorySources
	if len(sources) > 0 {
		sourceText = strings.Join(sources, ", ")
	}
	return "- [" + entry.ID + "] " + entry.Content +
		" (score: " + strconv.Itoa(entry.Score) + "; sources: " + sourceText + ")"
}

func joinIDs(entries []models.ScoredEntry) string {
	if len(entries) == 0 {
		return noMemorySources
	}
	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	return strings.Join(ids, ", ")
}

func buildTrace(result *models.RetrievalResult) models.MemoryTrace {
	ids := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		ids = append(ids, entry.ID)
	}
	return models.MemoryTrace{
		SourceMemoryIDs: ids,
		FallbackUsed:    result.Meta.FallbackUsed,
		ContextSignals:  result.Meta.ContextSignals,
	}
}

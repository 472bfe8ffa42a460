package database

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jordanhubbard/memhub/pkg/models"
)

// InsertAudit persists a workflow push audit on its own. Most callers want
// CreateWorkflowCompletion instead, which writes the audit and its memory
// entry in one transaction.
func (d *Database) InsertAudit(audit *models.WorkflowAudit) error {
	if audit == nil {
		return fmt.Errorf("audit cannot be nil")
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(audit.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	_, err = d.db.Exec(d.rebind(insertAuditSQL),
		audit.ID, audit.ProjectID, audit.TicketID, audit.FromStatus,
		string(audit.ToStatus), audit.AgentID, audit.MemoryEntryID,
		string(payloadJSON), audit.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("workflow audit %s: %w", audit.ID, ErrDuplicateID)
		}
		return fmt.Errorf("failed to insert workflow audit: %w", err)
	}
	return nil
}

const insertAuditSQL = `
	INSERT INTO memory_push_audit (id, project_id, ticket_id, from_status, to_status, agent_id, memory_entry_id, payload_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// CreateWorkflowCompletion writes a memory entry and its workflow audit as
// one atomic unit. Either both records exist afterwards or neither does.
func (d *Database) CreateWorkflowCompletion(entry *models.MemoryEntry, audit *models.WorkflowAudit) error {
	if entry == nil || audit == nil {
		return fmt.Errorf("entry and audit cannot be nil")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	refsJSON, err := json.Marshal(entry.SourceRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal source refs: %w", err)
	}
	payloadJSON, err := json.Marshal(audit.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(d.rebind(`
		INSERT INTO memory_entries (id, project_id, feature_scope, task_type, agent_id, lesson_category, content, source_refs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.ProjectID, entry.FeatureScope, string(entry.TaskType),
		entry.AgentID, string(entry.LessonCategory), entry.Content,
		string(refsJSON), entry.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("memory entry %s: %w", entry.ID, ErrDuplicateID)
		}
		return fmt.Errorf("failed to insert memory entry: %w", err)
	}

	if entry.ProcessLesson != nil {
		pl := entry.ProcessLesson
		_, err = tx.Exec(d.rebind(`
			INSERT INTO process_lessons (entry_id, decision_moment, assumption_made, human_reason, missed_control, next_rule)
			VALUES (?, ?, ?, ?, ?, ?)`),
			entry.ID, pl.DecisionMoment, pl.AssumptionMade, pl.HumanReason, pl.MissedControl, pl.NextRule,
		)
		if err != nil {
			return fmt.Errorf("failed to insert process lesson: %w", err)
		}
	}

	_, err = tx.Exec(d.rebind(insertAuditSQL),
		audit.ID, audit.ProjectID, audit.TicketID, audit.FromStatus,
		string(audit.ToStatus), audit.AgentID, audit.MemoryEntryID,
		string(payloadJSON), audit.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("workflow audit %s: %w", audit.ID, ErrDuplicateID)
		}
		return fmt.Errorf("failed to insert workflow audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workflow completion: %w", err)
	}
	return nil
}

// QueryAudits returns workflow audits matching all supplied filters, newest
// first. Empty filter values are ignored.
func (d *Database) QueryAudits(filters models.AuditFilters) ([]*models.WorkflowAudit, error) {
	where := []string{}
	args := []interface{}{}

	if filters.ProjectID != "" && filters.ProjectID != models.CrossProjectID {
		where = append(where, "project_id = ?")
		args = append(args, filters.ProjectID)
	}
	if filters.TicketID != "" {
		where = append(where, "ticket_id = ?")
		args = append(args, filters.TicketID)
	}
	if filters.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filters.AgentID)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, project_id, ticket_id, from_status, to_status, agent_id, memory_entry_id, payload_json, created_at
		FROM memory_push_audit
		%s
		ORDER BY created_at DESC
		LIMIT ?`, whereClause)

	rows, err := d.db.Query(d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow audits: %w", err)
	}
	defer rows.Close()

	var audits []*models.WorkflowAudit
	for rows.Next() {
		a := &models.WorkflowAudit{}
		var toStatus, payloadJSON string
		err := rows.Scan(&a.ID, &a.ProjectID, &a.TicketID, &a.FromStatus,
			&toStatus, &a.AgentID, &a.MemoryEntryID, &payloadJSON, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow audit: %w", err)
		}
		a.ToStatus = models.WorkflowStatus(toStatus)
		if err := json.Unmarshal([]byte(payloadJSON), &a.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit payload for %s: %w", a.ID, err)
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

// ListProjectIDs returns the distinct, lower-cased project scopes present in
// the store. Used to seed the project registry at startup.
func (d *Database) ListProjectIDs() ([]string, error) {
	rows, err := d.db.Query(`
		SELECT DISTINCT project_id
		FROM memory_entries
		WHERE project_id IS NOT NULL AND TRIM(project_id) <> ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to list project ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, strings.ToLower(strings.TrimSpace(id)))
	}
	return ids, rows.Err()
}

package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jordanhubbard/memhub/pkg/models"
)

const (
	defaultQueryLimit = 100
	// MaxCandidateLimit caps the candidate load the ranking engine performs.
	MaxCandidateLimit = 1000
)

// InsertEntry persists a memory entry. If the entry carries a process
// lesson, it is written in the same transaction. Returns ErrDuplicateID
// when the entry id is already taken.
func (d *Database) InsertEntry(entry *models.MemoryEntry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	refsJSON, err := json.Marshal(entry.SourceRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal source refs: %w", err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(d.rebind(`
		INSERT INTO memory_entries (id, project_id, feature_scope, task_type, agent_id, lesson_category, content, source_refs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID,
		entry.ProjectID,
		entry.FeatureScope,
		string(entry.TaskType),
		entry.AgentID,
		string(entry.LessonCategory),
		entry.Content,
		string(refsJSON),
		entry.CreatedAt,
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

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit memory entry: %w", err)
	}
	return nil
}

// QueryEntries returns entries matching all supplied filters, newest first.
// Empty filter values are ignored; ProjectID "all" disables the project
// filter. The label filter is applied after labels are derived from source
// refs, never in SQL.
func (d *Database) QueryEntries(filters models.EntryFilters) ([]*models.MemoryEntry, error) {
	where := []string{}
	args := []interface{}{}

	if filters.ProjectID != "" && filters.ProjectID != models.CrossProjectID {
		where = append(where, "e.project_id = ?")
		args = append(args, filters.ProjectID)
	}
	if filters.FeatureScope != "" {
		where = append(where, "e.feature_scope = ?")
		args = append(args, filters.FeatureScope)
	}
	if filters.TaskType != "" {
		where = append(where, "e.task_type = ?")
		args = append(args, filters.TaskType)
	}
	if filters.AgentID != "" {
		where = append(where, "e.agent_id = ?")
		args = append(args, filters.AgentID)
	}
	if filters.LessonCategory != "" {
		where = append(where, "e.lesson_category = ?")
		args = append(args, filters.LessonCategory)
	}
	if filters.SearchQuery != "" {
		where = append(where, `(LOWER(e.content) LIKE ?
			OR LOWER(COALESCE(p.decision_moment, '')) LIKE ?
			OR LOWER(COALESCE(p.assumption_made, '')) LIKE ?
			OR LOWER(COALESCE(p.human_reason, '')) LIKE ?
			OR LOWER(COALESCE(p.missed_control, '')) LIKE ?
			OR LOWER(COALESCE(p.next_rule, '')) LIKE ?)`)
		pattern := "%" + strings.ToLower(filters.SearchQuery) + "%"
		for i := 0; i < 6; i++ {
			args = append(args, pattern)
		}
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > MaxCandidateLimit {
		limit = MaxCandidateLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT e.id, e.project_id, e.feature_scope, e.task_type, e.agent_id, e.lesson_category,
			e.content, e.source_refs, e.created_at,
			p.decision_moment, p.assumption_made, p.human_reason, p.missed_control, p.next_rule
		FROM memory_entries e
		LEFT JOIN process_lessons p ON p.entry_id = e.id
		%s
		ORDER BY e.created_at DESC
		LIMIT ?`, whereClause)

	rows, err := d.db.Query(d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.MemoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if filters.Label != "" && !containsLabel(entry.Labels, filters.Label) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (*models.MemoryEntry, error) {
	e := &models.MemoryEntry{}
	var taskType, category, refsJSON string
	var decisionMoment, assumptionMade, humanReason, missedControl, nextRule sql.NullString

	err := rows.Scan(
		&e.ID, &e.ProjectID, &e.FeatureScope, &taskType, &e.AgentID, &category,
		&e.Content, &refsJSON, &e.CreatedAt,
		&decisionMoment, &assumptionMade, &humanReason, &missedControl, &nextRule,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan memory entry: %w", err)
	}

	e.TaskType = models.TaskType(taskType)
	e.LessonCategory = models.LessonCategory(category)
	if err := json.Unmarshal([]byte(refsJSON), &e.SourceRefs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source refs for %s: %w", e.ID, err)
	}
	e.Labels = models.DeriveLabels(e.SourceRefs)

	if decisionMoment.Valid {
		e.ProcessLesson = &models.ProcessLesson{
			DecisionMoment: decisionMoment.String,
			AssumptionMade: assumptionMade.String,
			HumanReason:    humanReason.String,
			MissedControl:  missedControl.String,
			NextRule:       nextRule.String,
		}
	}
	return e, nil
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

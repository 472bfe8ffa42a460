package database

import (
	"fmt"
	"sort"
)

// migration is one named, ordered schema step. Steps apply in lexical
// order of their names; Rollback runs the down statements in reverse.
type migration struct {
	name string
	up   string
	down string
}

var migrations = []migration{
	{
		name: "0001_memory_entries",
		up: `
		CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			feature_scope TEXT NOT NULL,
			task_type TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			lesson_category TEXT NOT NULL,
			content TEXT NOT NULL,
			source_refs TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memory_entries_project_created ON memory_entries(project_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_memory_entries_project_feature_task ON memory_entries(project_id, feature_scope, task_type);
		CREATE INDEX IF NOT EXISTS idx_memory_entries_agent_task ON memory_entries(agent_id, task_type);
		CREATE INDEX IF NOT EXISTS idx_memory_entries_category_created ON memory_entries(lesson_category, created_at);
		`,
		down: `DROP TABLE IF EXISTS memory_entries;`,
	},
	{
		name: "0002_memory_push_audit",
		up: `
		CREATE TABLE IF NOT EXISTS memory_push_audit (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			ticket_id TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			memory_entry_id TEXT NOT NULL REFERENCES memory_entries(id),
			payload_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memory_push_audit_project ON memory_push_audit(project_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_memory_push_audit_ticket ON memory_push_audit(ticket_id);
		CREATE INDEX IF NOT EXISTS idx_memory_push_audit_agent ON memory_push_audit(agent_id);
		`,
		down: `DROP TABLE IF EXISTS memory_push_audit;`,
	},
	{
		name: "0003_process_lessons",
		up: `
		CREATE TABLE IF NOT EXISTS process_lessons (
			entry_id TEXT PRIMARY KEY REFERENCES memory_entries(id),
			decision_moment TEXT NOT NULL,
			assumption_made TEXT NOT NULL,
			human_reason TEXT NOT NULL,
			missed_control TEXT NOT NULL,
			next_rule TEXT NOT NULL
		);
		`,
		down: `DROP TABLE IF EXISTS process_lessons;`,
	},
}

// Migrate applies every migration that has not run yet, in lexical order of
// migration names. Applied names are tracked in schema_migrations.
func (d *Database) Migrate() error {
	if _, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := d.db.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan migration name: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range sortedMigrations() {
		if applied[m.name] {
			continue
		}
		if _, err := d.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
		if _, err := d.db.Exec(d.rebind(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, CURRENT_TIMESTAMP)`), m.name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.name, err)
		}
	}

	return nil
}

// Rollback undoes every applied migration in reverse lexical order.
func (d *Database) Rollback() error {
	ordered := sortedMigrations()
	for i := len(ordered) - 1; i >= 0; i-- {
		m := ordered[i]
		if _, err := d.db.Exec(m.down); err != nil {
			return fmt.Errorf("rollback %s failed: %w", m.name, err)
		}
		if _, err := d.db.Exec(d.rebind(`DELETE FROM schema_migrations WHERE name = ?`), m.name); err != nil {
			return fmt.Errorf("failed to unrecord migration %s: %w", m.name, err)
		}
	}
	return nil
}

func sortedMigrations() []migration {
	ordered := make([]migration, len(migrations))
	copy(ordered, migrations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].name < ordered[j].name })
	return ordered
}

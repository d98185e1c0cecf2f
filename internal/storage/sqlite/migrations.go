// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations. Each migration is
// idempotent: it checks for its own effect before applying, so fresh
// databases (whose schema already includes everything) pass through
// unchanged.
var migrationsList = []Migration{
	{"claim_column", migrateClaimColumn},
	{"feed_health_columns", migrateFeedHealthColumns},
	{"relationship_event_link", migrateRelationshipEventLink},
}

// RunMigrations executes all registered migrations in order.
// Uses an EXCLUSIVE transaction to prevent races when multiple processes
// open the database simultaneously.
func RunMigrations(db *sql.DB) error {
	// PRAGMA foreign_keys must be changed outside any transaction.
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("failed to disable foreign keys for migrations: %w", err)
	}
	defer func() { _, _ = db.Exec("PRAGMA foreign_keys = ON") }()

	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true
	return nil
}

// columnExists reports whether table has a column named column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?",
		table, column,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// migrateClaimColumn adds the claimed_at column used by claim-based
// dequeue. Databases created before bounded-concurrency extraction lack it.
func migrateClaimColumn(db *sql.DB) error {
	exists, err := columnExists(db, "articles", "claimed_at")
	if err != nil || exists {
		return err
	}
	_, err = db.Exec("ALTER TABLE articles ADD COLUMN claimed_at DATETIME")
	if err != nil {
		return fmt.Errorf("failed to add claimed_at: %w", err)
	}
	return nil
}

// migrateFeedHealthColumns adds the rolling health counters to feeds.
func migrateFeedHealthColumns(db *sql.DB) error {
	cols := map[string]string{
		"success_rate":         "REAL NOT NULL DEFAULT 1.0",
		"avg_fetch_seconds":    "REAL NOT NULL DEFAULT 0",
		"consecutive_failures": "INTEGER NOT NULL DEFAULT 0",
	}
	for name, def := range cols {
		exists, err := columnExists(db, "feeds", name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE feeds ADD COLUMN %s %s", name, def)); err != nil {
			return fmt.Errorf("failed to add feeds.%s: %w", name, err)
		}
	}
	return nil
}

// migrateRelationshipEventLink adds the event_id link column that the
// cross-referencer records matches in.
func migrateRelationshipEventLink(db *sql.DB) error {
	exists, err := columnExists(db, "relationships", "event_id")
	if err != nil || exists {
		return err
	}
	if _, err := db.Exec("ALTER TABLE relationships ADD COLUMN event_id INTEGER REFERENCES events(id)"); err != nil {
		return fmt.Errorf("failed to add event_id: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_relationships_event ON relationships(event_id)"); err != nil {
		return fmt.Errorf("failed to index event_id: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"strings"
)

// column types that differ between dialects.
type ddl struct {
	id        string
	text      string
	keyText   string
	timestamp string
	boolean   string
	indexIf   string
	addColIf  string
}

func ddlFor(d Dialect) ddl {
	switch d {
	case Postgres:
		return ddl{
			id:        "BIGSERIAL PRIMARY KEY",
			text:      "TEXT",
			keyText:   "VARCHAR(191)",
			timestamp: "TIMESTAMPTZ",
			boolean:   "BOOLEAN",
			indexIf:   "IF NOT EXISTS ",
			addColIf:  "IF NOT EXISTS ",
		}
	case MySQL:
		return ddl{
			id:        "BIGINT AUTO_INCREMENT PRIMARY KEY",
			text:      "TEXT",
			keyText:   "VARCHAR(191)",
			timestamp: "DATETIME(6)",
			boolean:   "BOOLEAN",
		}
	default:
		return ddl{
			id:        "INTEGER PRIMARY KEY AUTOINCREMENT",
			text:      "TEXT",
			keyText:   "TEXT",
			timestamp: "DATETIME",
			boolean:   "INTEGER",
			indexIf:   "IF NOT EXISTS ",
		}
	}
}

func migrations(d Dialect) []string {
	t := ddlFor(d)
	return []string{
		`CREATE TABLE IF NOT EXISTS access_keys (
			id ` + t.id + `,
			key_code ` + t.keyText + ` NOT NULL UNIQUE,
			owner_id ` + t.keyText + ` NOT NULL,
			owner_label ` + t.text + ` NOT NULL,
			created_at ` + t.timestamp + ` NOT NULL,
			expires_at ` + t.timestamp + ` NOT NULL,
			is_active ` + t.boolean + ` NOT NULL DEFAULT TRUE
		)`,

		`CREATE INDEX ` + t.indexIf + `idx_access_keys_owner ON access_keys(owner_id)`,
		`CREATE INDEX ` + t.indexIf + `idx_access_keys_created ON access_keys(created_at)`,

		`CREATE TABLE IF NOT EXISTS cooldowns (
			id ` + t.id + `,
			owner_id ` + t.keyText + ` NOT NULL UNIQUE,
			owner_label ` + t.text + ` NOT NULL,
			last_issued_at ` + t.timestamp + ` NOT NULL,
			cooldown_ends_at ` + t.timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS bot_logs (
			id ` + t.id + `,
			logged_at ` + t.timestamp + ` NOT NULL,
			level VARCHAR(16) NOT NULL,
			message ` + t.text + ` NOT NULL,
			actor_id ` + t.keyText + `
		)`,

		`CREATE INDEX ` + t.indexIf + `idx_bot_logs_logged ON bot_logs(logged_at)`,

		`CREATE TABLE IF NOT EXISTS users (
			id ` + t.keyText + ` PRIMARY KEY,
			email ` + t.keyText + ` NOT NULL DEFAULT '',
			display_name ` + t.keyText + ` NOT NULL DEFAULT '',
			avatar_url ` + t.keyText + ` NOT NULL DEFAULT '',
			created_at ` + t.timestamp + ` NOT NULL,
			updated_at ` + t.timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			name ` + t.keyText + ` PRIMARY KEY,
			value ` + t.text + ` NOT NULL
		)`,

		// v2: tier recorded at issuance. Rows written before this column
		// existed keep '' and fall back to the code prefix when read.
		`ALTER TABLE access_keys ADD COLUMN ` + t.addColIf + `tier VARCHAR(16) NOT NULL DEFAULT ''`,
	}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, m := range migrations(s.dialect) {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			// Re-running ADD COLUMN or CREATE INDEX on dialects without
			// IF NOT EXISTS support is a no-op.
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "duplicate column") || strings.Contains(msg, "duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

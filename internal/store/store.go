// Package store persists keys, cooldown markers, audit entries, dashboard
// users and settings. It speaks SQLite (default), PostgreSQL and MySQL
// through sqlx; every query is written with '?' placeholders and rebound
// for the active dialect.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/prismkeys/prism/internal/keycode"
	"github.com/prismkeys/prism/internal/model"
)

// Dialect selects the SQL flavour and database/sql driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return "", fmt.Errorf("unsupported store driver %q", name)
}

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return string(d)
}

// Store is the shared persistence layer. All methods are safe for
// concurrent use; correctness relies on per-row atomicity of the database.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewStore opens a SQLite store under dataDir. Pass empty string for
// in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "prism.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open(context.Background(), SQLite, dsn)
}

// Open connects to dsn using dialect d and applies migrations.
func Open(ctx context.Context, d Dialect, dsn string) (*Store, error) {
	if d == MySQL {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		dsn = cfg.FormatDSN()
	}

	db, err := sqlx.ConnectContext(ctx, d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", d, err)
	}

	if d == SQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	}

	s := &Store{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s store: %w", d, err)
	}
	return s, nil
}

// Dialect reports which database the store is connected to.
func (s *Store) Dialect() Dialect { return s.dialect }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

// insert runs an INSERT and returns the generated id. pgx does not support
// LastInsertId, so PostgreSQL uses RETURNING instead.
func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect == Postgres {
		var id int64
		if err := s.db.QueryRowxContext(ctx, s.q(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// upsert builds an insert-or-update statement keyed on conflictCol that
// overwrites updateCols.
func (s *Store) upsert(table, conflictCol string, cols, updateCols []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"

	sets := make([]string, len(updateCols))
	if s.dialect == MySQL {
		for i, c := range updateCols {
			sets[i] = c + " = VALUES(" + c + ")"
		}
		return q + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	for i, c := range updateCols {
		sets[i] = c + " = excluded." + c
	}
	return q + " ON CONFLICT (" + conflictCol + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

const keyColumns = "id, key_code, tier, owner_id, owner_label, created_at, expires_at, is_active"

// withTier fills in the tier of rows written before it was persisted.
func withTier(k *model.Key) {
	if k.Tier != "" {
		return
	}
	if t, ok := keycode.TierFromCode(k.Code); ok {
		k.Tier = t
	}
}

func withTiers(keys []model.Key) []model.Key {
	for i := range keys {
		withTier(&keys[i])
	}
	return keys
}

// CreateKey inserts a new key. The ID field is populated after a successful
// insert. A code collision returns an error wrapping ErrDuplicate.
func (s *Store) CreateKey(ctx context.Context, k *model.Key) error {
	k.CreatedAt = k.CreatedAt.UTC()
	k.ExpiresAt = k.ExpiresAt.UTC()

	id, err := s.insert(ctx,
		`INSERT INTO access_keys (key_code, tier, owner_id, owner_label, created_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.Code, k.Tier, k.OwnerID, k.OwnerLabel, k.CreatedAt, k.ExpiresAt, k.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert key: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert key: %w", err)
	}
	k.ID = id
	return nil
}

// GetKey returns the key with the given code.
func (s *Store) GetKey(ctx context.Context, code string) (*model.Key, error) {
	var k model.Key
	err := s.db.GetContext(ctx, &k, s.q("SELECT "+keyColumns+" FROM access_keys WHERE key_code = ?"), code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get key: %w", err)
	}
	withTier(&k)
	return &k, nil
}

// ListActiveKeys returns keys still flagged active, newest first. Some may
// already be past their expiry and awaiting the sweeper.
func (s *Store) ListActiveKeys(ctx context.Context) ([]model.Key, error) {
	var keys []model.Key
	err := s.db.SelectContext(ctx, &keys,
		s.q("SELECT "+keyColumns+" FROM access_keys WHERE is_active = ? ORDER BY created_at DESC, id DESC"), true)
	if err != nil {
		return nil, fmt.Errorf("list active keys: %w", err)
	}
	return withTiers(keys), nil
}

// ListAllKeys returns every key, newest first.
func (s *Store) ListAllKeys(ctx context.Context) ([]model.Key, error) {
	var keys []model.Key
	err := s.db.SelectContext(ctx, &keys,
		"SELECT "+keyColumns+" FROM access_keys ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return withTiers(keys), nil
}

// ListRecentKeys returns at most limit keys, newest first.
func (s *Store) ListRecentKeys(ctx context.Context, limit int) ([]model.Key, error) {
	var keys []model.Key
	err := s.db.SelectContext(ctx, &keys,
		s.q("SELECT "+keyColumns+" FROM access_keys ORDER BY created_at DESC, id DESC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent keys: %w", err)
	}
	return withTiers(keys), nil
}

// ListKeysByOwner returns every key issued to ownerID, newest first.
func (s *Store) ListKeysByOwner(ctx context.Context, ownerID string) ([]model.Key, error) {
	var keys []model.Key
	err := s.db.SelectContext(ctx, &keys,
		s.q("SELECT "+keyColumns+" FROM access_keys WHERE owner_id = ? ORDER BY created_at DESC, id DESC"), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list keys by owner: %w", err)
	}
	return withTiers(keys), nil
}

// ExpireKey marks a key inactive. Expiring an inactive or unknown key is not
// an error, so concurrent sweepers may call it redundantly.
func (s *Store) ExpireKey(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx,
		s.q("UPDATE access_keys SET is_active = ? WHERE key_code = ?"), false, code); err != nil {
		return fmt.Errorf("expire key: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Cooldowns
// ---------------------------------------------------------------------------

const cooldownColumns = "id, owner_id, owner_label, last_issued_at, cooldown_ends_at"

// GetCooldown returns the cooldown marker for ownerID.
func (s *Store) GetCooldown(ctx context.Context, ownerID string) (*model.Cooldown, error) {
	var c model.Cooldown
	err := s.db.GetContext(ctx, &c, s.q("SELECT "+cooldownColumns+" FROM cooldowns WHERE owner_id = ?"), ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	return &c, nil
}

// UpsertCooldown creates or replaces the marker for c.OwnerID.
func (s *Store) UpsertCooldown(ctx context.Context, c *model.Cooldown) error {
	q := s.upsert("cooldowns", "owner_id",
		[]string{"owner_id", "owner_label", "last_issued_at", "cooldown_ends_at"},
		[]string{"owner_label", "last_issued_at", "cooldown_ends_at"})
	_, err := s.db.ExecContext(ctx, s.q(q),
		c.OwnerID, c.OwnerLabel, c.LastIssuedAt.UTC(), c.CooldownEndsAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert cooldown: %w", err)
	}
	return nil
}

// ListCooldowns returns every marker, latest ending first.
func (s *Store) ListCooldowns(ctx context.Context) ([]model.Cooldown, error) {
	var out []model.Cooldown
	err := s.db.SelectContext(ctx, &out,
		"SELECT "+cooldownColumns+" FROM cooldowns ORDER BY cooldown_ends_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list cooldowns: %w", err)
	}
	return out, nil
}

// RemoveCooldown deletes the marker for ownerID.
func (s *Store) RemoveCooldown(ctx context.Context, ownerID string) error {
	result, err := s.db.ExecContext(ctx, s.q("DELETE FROM cooldowns WHERE owner_id = ?"), ownerID)
	if err != nil {
		return fmt.Errorf("remove cooldown: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove cooldown rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

// AppendLog inserts an entry. ID is populated, and Timestamp defaults to now
// when zero. Entries are never updated or deleted.
func (s *Store) AppendLog(ctx context.Context, e *model.LogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()

	id, err := s.insert(ctx,
		"INSERT INTO bot_logs (logged_at, level, message, actor_id) VALUES (?, ?, ?, ?)",
		e.Timestamp, e.Level, e.Message, e.ActorID)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	e.ID = id
	return nil
}

// ListRecentLogs returns at most limit entries, newest first.
func (s *Store) ListRecentLogs(ctx context.Context, limit int) ([]model.LogEntry, error) {
	var out []model.LogEntry
	err := s.db.SelectContext(ctx, &out,
		s.q("SELECT id, logged_at, level, message, actor_id FROM bot_logs ORDER BY logged_at DESC, id DESC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// GetUser returns the dashboard user with the given external id.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u,
		s.q("SELECT id, email, display_name, avatar_url, created_at, updated_at FROM users WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// UpsertUser creates the user or refreshes its profile fields. CreatedAt is
// kept from the first insert; the stored record is returned.
func (s *Store) UpsertUser(ctx context.Context, u *model.User) (*model.User, error) {
	now := time.Now().UTC()
	q := s.upsert("users", "id",
		[]string{"id", "email", "display_name", "avatar_url", "created_at", "updated_at"},
		[]string{"email", "display_name", "avatar_url", "updated_at"})
	if _, err := s.db.ExecContext(ctx, s.q(q), u.ID, u.Email, u.DisplayName, u.AvatarURL, now, now); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUser(ctx, u.ID)
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value stored under name.
func (s *Store) GetSetting(ctx context.Context, name string) (string, error) {
	var v string
	if err := s.db.GetContext(ctx, &v, s.q("SELECT value FROM settings WHERE name = ?"), name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return v, nil
}

// SetSetting stores value under name, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, name, value string) error {
	q := s.upsert("settings", "name", []string{"name", "value"}, []string{"value"})
	if _, err := s.db.ExecContext(ctx, s.q(q), name, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"zoomsync/internal/catalog"
	appLog "zoomsync/internal/log"
	"zoomsync/internal/model"
	"zoomsync/internal/pipeline"
	"zoomsync/internal/recurrence"
)

// Store persists records, run history and the category catalog in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore opens (creating if needed) the database at path and migrates it.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: path is empty")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	stmts := []string{`
CREATE TABLE IF NOT EXISTS meetings (
  id TEXT PRIMARY KEY,
  meeting_id INTEGER NOT NULL,
  topic TEXT,
  description TEXT,
  link TEXT,
  recurrence_type TEXT NOT NULL,
  recurrence TEXT NOT NULL,
  rrule TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  instructor TEXT NOT NULL DEFAULT '',
  tracked_fields TEXT NOT NULL DEFAULT '{}',
  updated_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS sync_runs (
  run_id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  fetched INTEGER NOT NULL,
  mapped INTEGER NOT NULL,
  skipped INTEGER NOT NULL,
  rejected INTEGER NOT NULL,
  emitted INTEGER NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  summary TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS categories (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  position INTEGER NOT NULL
);`,
		`PRAGMA user_version = 1;`,
	}
	for _, q := range stmts {
		if _, err := tx.Exec(q); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const upsertMeeting = `
INSERT INTO meetings (id, meeting_id, topic, description, link, recurrence_type, recurrence, rrule, category, instructor, tracked_fields, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  meeting_id = excluded.meeting_id,
  topic = excluded.topic,
  description = excluded.description,
  link = excluded.link,
  recurrence_type = excluded.recurrence_type,
  recurrence = excluded.recurrence,
  rrule = excluded.rrule,
  category = excluded.category,
  instructor = excluded.instructor,
  tracked_fields = excluded.tracked_fields,
  updated_at = excluded.updated_at;`

// Emit upserts every record by id, deletes meetings missing from records and
// refreshes the category catalog, all in one transaction.
func (s *Store) Emit(ctx context.Context, records []pipeline.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertMeeting)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.now().UTC().Format(time.RFC3339)
	for _, r := range records {
		rec, err := json.Marshal(r.Recurrence)
		if err != nil {
			return fmt.Errorf("store: encode recurrence %s: %w", r.ID, err)
		}
		tracked, err := json.Marshal(r.Tracked)
		if err != nil {
			return fmt.Errorf("store: encode tracked fields %s: %w", r.ID, err)
		}
		rule := ""
		if r.Kind() != recurrence.KindCustom {
			// Recurring records without a window have no rule.
			rule, _ = recurrence.RuleString(r.Recurrence)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.MeetingID, r.Topic, r.Description, r.Link,
			r.Type, string(rec), rule, r.Category(), r.Instructor(), string(tracked), now,
		); err != nil {
			return fmt.Errorf("store: upsert %s: %w", r.ID, err)
		}
	}

	pruned, err := pruneMeetings(ctx, tx, records)
	if err != nil {
		return fmt.Errorf("store: prune: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories;`); err != nil {
		return err
	}
	for i, c := range catalog.Categories(records) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, name, position) VALUES (?, ?, ?);`,
			c.ID, c.Name, i,
		); err != nil {
			return fmt.Errorf("store: category %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	appLog.Info("store updated", "meetings", len(records), "pruned", pruned)
	return nil
}

// pruneMeetings deletes rows for meetings absent from this run.
func pruneMeetings(ctx context.Context, tx *sql.Tx, records []pipeline.Record) (int64, error) {
	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS run_ids (id TEXT PRIMARY KEY);`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_ids;`); err != nil {
		return 0, err
	}
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO run_ids (id) VALUES (?);`, r.ID); err != nil {
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM meetings WHERE id NOT IN (SELECT id FROM run_ids);`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordRun appends a sync_runs row for a finished (or failed) run.
func (s *Store) RecordRun(ctx context.Context, sum pipeline.Summary) error {
	blob, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO sync_runs (run_id, started_at, finished_at, fetched, mapped, skipped, rejected, emitted, error, summary)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		sum.RunID,
		sum.StartedAt.UTC().Format(time.RFC3339Nano),
		sum.FinishedAt.UTC().Format(time.RFC3339Nano),
		sum.Fetched, sum.Mapped, sum.Skipped, sum.Rejected, sum.Emitted,
		sum.Error, string(blob),
	)
	if err != nil {
		return fmt.Errorf("store: record run: %w", err)
	}
	return nil
}

// StoredMeeting is a meetings row.
type StoredMeeting struct {
	ID             string              `json:"id"`
	MeetingID      int64               `json:"meeting_id"`
	Topic          *string             `json:"topic"`
	Description    *string             `json:"description"`
	Link           *string             `json:"link"`
	RecurrenceType string              `json:"recurrence_type"`
	Recurrence     json.RawMessage     `json:"recurrence"`
	RRule          string              `json:"rrule,omitempty"`
	Category       string              `json:"category,omitempty"`
	Instructor     string              `json:"instructor,omitempty"`
	Tracked        model.TrackedFields `json:"tracked_fields"`
	UpdatedAt      string              `json:"updated_at"`
}

// Meetings lists stored meetings ordered by id.
func (s *Store) Meetings(ctx context.Context) ([]StoredMeeting, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, meeting_id, topic, description, link, recurrence_type, recurrence, rrule, category, instructor, tracked_fields, updated_at
FROM meetings ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMeeting
	for rows.Next() {
		var (
			m       StoredMeeting
			topic   sql.NullString
			desc    sql.NullString
			link    sql.NullString
			rec     string
			tracked string
		)
		if err := rows.Scan(&m.ID, &m.MeetingID, &topic, &desc, &link, &m.RecurrenceType, &rec,
			&m.RRule, &m.Category, &m.Instructor, &tracked, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Topic = nullable(topic)
		m.Description = nullable(desc)
		m.Link = nullable(link)
		m.Recurrence = json.RawMessage(rec)
		if err := json.Unmarshal([]byte(tracked), &m.Tracked); err != nil {
			return nil, fmt.Errorf("store: tracked fields %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Categories lists the stored catalog in position order.
func (s *Store) Categories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY position;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Runs returns the most recent run summaries, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]pipeline.Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT summary FROM sync_runs ORDER BY started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pipeline.Summary
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var sum pipeline.Summary
		if err := json.Unmarshal([]byte(blob), &sum); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

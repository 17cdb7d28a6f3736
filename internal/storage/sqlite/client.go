package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/qaforge/backend/internal/storage/models"
	"github.com/qaforge/backend/pkg/logger"
)

var ErrNotFound = errors.New("not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_collections_name ON collections(name);

	CREATE TABLE IF NOT EXISTS source_snapshots (
		id TEXT PRIMARY KEY,
		collection_id TEXT,
		url TEXT NOT NULL,
		user_agent TEXT,
		content TEXT,
		url_hash TEXT NOT NULL,
		retrieved_at INTEGER NOT NULL,
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_url_hash ON source_snapshots(url_hash);
	CREATE INDEX IF NOT EXISTS idx_snapshots_collection ON source_snapshots(collection_id);

	CREATE TABLE IF NOT EXISTS cleaned_texts (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL,
		content TEXT,
		language TEXT,
		model TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (snapshot_id) REFERENCES source_snapshots(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_cleaned_snapshot ON cleaned_texts(snapshot_id);

	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		snapshot_id TEXT,
		source_url TEXT NOT NULL,
		input TEXT NOT NULL,
		expected_output TEXT NOT NULL,
		metadata TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		model TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection_id);
	CREATE INDEX IF NOT EXISTS idx_records_source_url ON records(source_url);
	CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// GetOrCreateCollection resolves a collection by name, creating it on first
// reference. Name uniqueness is an application-level check, so callers
// treat "already exists" as reuse, never as an error.
func (c *Client) GetOrCreateCollection(ctx context.Context, name, description string) (*models.Collection, error) {
	col, err := c.GetCollectionByName(ctx, name)
	if err == nil {
		return col, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	col = &models.Collection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO collections (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		col.ID, col.Name, col.Description, col.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	logger.Info("Collection created", zap.String("collection_id", col.ID), zap.String("name", name))
	return col, nil
}

func (c *Client) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	return c.scanCollection(c.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM collections WHERE id = ?`, id))
}

func (c *Client) GetCollectionByName(ctx context.Context, name string) (*models.Collection, error) {
	return c.scanCollection(c.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM collections WHERE name = ? ORDER BY created_at LIMIT 1`, name))
}

func (c *Client) scanCollection(row *sql.Row) (*models.Collection, error) {
	var col models.Collection
	var createdAt int64

	err := row.Scan(&col.ID, &col.Name, &col.Description, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	col.CreatedAt = time.Unix(0, createdAt)
	return &col, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]models.Collection, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM collections ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var cols []models.Collection
	for rows.Next() {
		var col models.Collection
		var createdAt int64
		if err := rows.Scan(&col.ID, &col.Name, &col.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		col.CreatedAt = time.Unix(0, createdAt)
		cols = append(cols, col)
	}

	return cols, rows.Err()
}

// DeleteCollection removes a collection; snapshots, cleaned texts and
// records go with it through the FK cascade.
func (c *Client) DeleteCollection(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	logger.Info("Collection deleted", zap.String("collection_id", id))
	return nil
}

func (c *Client) CountRecords(ctx context.Context, collectionID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection_id = ?`, collectionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func (c *Client) InsertSnapshot(ctx context.Context, snap *models.SourceSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO source_snapshots (id, collection_id, url, user_agent, content, url_hash, retrieved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, nullable(snap.CollectionID), snap.URL, snap.UserAgent, snap.Content, snap.URLHash, snap.RetrievedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	logger.Debug("Snapshot inserted", zap.String("snapshot_id", snap.ID), zap.String("url", snap.URL))
	return nil
}

func (c *Client) InsertCleanedText(ctx context.Context, ct *models.CleanedText) error {
	if ct.ID == "" {
		ct.ID = uuid.NewString()
	}
	if ct.CreatedAt.IsZero() {
		ct.CreatedAt = time.Now().UTC()
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cleaned_texts (id, snapshot_id, content, language, model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ct.ID, ct.SnapshotID, ct.Content, ct.Language, ct.Model, ct.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cleaned text: %w", err)
	}

	return nil
}

// InsertRecord is an insert-or-skip on the content-hash primary key.
// Concurrent pipelines racing to store the same record leave exactly one
// row behind; the loser reports inserted=false.
func (c *Client) InsertRecord(ctx context.Context, rec *models.Record) (bool, error) {
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return false, fmt.Errorf("failed to encode record input: %w", err)
	}
	output, err := json.Marshal(rec.ExpectedOutput)
	if err != nil {
		return false, fmt.Errorf("failed to encode record output: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to encode record metadata: %w", err)
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO records (id, collection_id, snapshot_id, source_url, input, expected_output, metadata, status, model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CollectionID, nullable(rec.SnapshotID), rec.Input.SourceURL,
		string(input), string(output), string(metadata),
		rec.Status, rec.Model, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert record: %w", err)
	}

	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (c *Client) RecordExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	return true, nil
}

func (c *Client) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	rows, err := c.db.QueryContext(ctx, recordSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// GetRecordsBySourceURL returns every stored record produced from url,
// regardless of collection. These are the near-duplicate candidates.
func (c *Client) GetRecordsBySourceURL(ctx context.Context, url string) ([]models.Record, error) {
	rows, err := c.db.QueryContext(ctx, recordSelect+` WHERE source_url = ?`, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get records by source url: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (c *Client) GetRecordsByCollection(ctx context.Context, collectionID string) ([]models.Record, error) {
	rows, err := c.db.QueryContext(ctx, recordSelect+` WHERE collection_id = ? ORDER BY created_at`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get records by collection: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteRecords removes the given ids in a single transaction: either the
// whole batch commits or none of it does.
func (c *Client) DeleteRecords(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM records WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete record %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deletions: %w", err)
	}

	logger.Info("Records deleted", zap.Int("count", len(ids)))
	return nil
}

const recordSelect = `SELECT id, collection_id, COALESCE(snapshot_id, ''), input, expected_output, metadata, status, COALESCE(model, ''), created_at, updated_at FROM records`

func scanRecords(rows *sql.Rows) ([]models.Record, error) {
	var recs []models.Record
	for rows.Next() {
		var rec models.Record
		var input, output, metadata string
		var createdAt, updatedAt int64

		err := rows.Scan(&rec.ID, &rec.CollectionID, &rec.SnapshotID,
			&input, &output, &metadata, &rec.Status, &rec.Model, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal([]byte(input), &rec.Input); err != nil {
			return nil, fmt.Errorf("failed to decode record input: %w", err)
		}
		if err := json.Unmarshal([]byte(output), &rec.ExpectedOutput); err != nil {
			return nil, fmt.Errorf("failed to decode record output: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode record metadata: %w", err)
		}

		rec.CreatedAt = time.Unix(0, createdAt)
		rec.UpdatedAt = time.Unix(0, updatedAt)
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

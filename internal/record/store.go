package record

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store is the content record store: one row per memory and one row per
// content item, addressable by id. The process running the state machine is
// assumed to be the sole writer of state-bearing columns; there are no
// transactions spanning external edits.
type Store struct {
	db *sql.DB
}

// Open creates a Store with a SQLite backend at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		source TEXT NOT NULL,
		text TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'unclassified',
		has_context TEXT NOT NULL DEFAULT 'unknown',
		used BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS content_items (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		post_type TEXT NOT NULL,
		body_text TEXT,
		slide_texts TEXT,
		source_memory_ids TEXT,
		state TEXT NOT NULL,
		design_intent TEXT,
		required_assets TEXT,
		asset_links TEXT,
		visual_links TEXT,
		scheduled_time DATETIME,
		posted_time DATETIME,
		posting_status TEXT,
		error_log TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
	CREATE INDEX IF NOT EXISTS idx_items_state ON content_items(state);
	`

	_, err := s.db.Exec(schema)
	return err
}

// AppendMemory inserts a new memory row.
func (s *Store) AppendMemory(m *Memory) error {
	_, err := s.db.Exec(`
		INSERT INTO memories (id, timestamp, source, text, category, has_context, used)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Timestamp, m.Source, m.Text, m.Category, m.HasContext, m.Used)
	return err
}

// GetMemory fetches a memory by id.
func (s *Store) GetMemory(id string) (*Memory, error) {
	row := s.db.QueryRow(`
		SELECT id, timestamp, source, text, category, has_context, used
		FROM memories WHERE id = ?
	`, id)

	var m Memory
	if err := row.Scan(&m.ID, &m.Timestamp, &m.Source, &m.Text, &m.Category, &m.HasContext, &m.Used); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMemoriesByCategory returns memories in insertion order.
func (s *Store) ListMemoriesByCategory(category Category, limit int) ([]Memory, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, source, text, category, has_context, used
		FROM memories WHERE category = ?
		ORDER BY timestamp ASC
		LIMIT ?
	`, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMemories(rows)
}

// ListUnusedMemories returns classified, unused memories in insertion order.
func (s *Store) ListUnusedMemories(limit int) ([]Memory, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, source, text, category, has_context, used
		FROM memories
		WHERE used = 0 AND category != 'unclassified'
		ORDER BY timestamp ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMemories(rows)
}

// UpdateMemoryClassification sets category and has_context for a memory.
func (s *Store) UpdateMemoryClassification(id string, category Category, hasContext HasContext) error {
	res, err := s.db.Exec(`
		UPDATE memories SET category = ?, has_context = ? WHERE id = ?
	`, category, hasContext, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// MarkMemoryUsed flips the used flag. It only moves no -> yes.
func (s *Store) MarkMemoryUsed(id string) error {
	res, err := s.db.Exec(`UPDATE memories SET used = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.Source, &m.Text, &m.Category, &m.HasContext, &m.Used); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// AppendContentItem inserts a new content item row.
func (s *Store) AppendContentItem(c *ContentItem) error {
	slidesJSON, _ := json.Marshal(c.SlideTexts)
	sourcesJSON, _ := json.Marshal(c.SourceMemoryIDs)
	assetsJSON, _ := json.Marshal(c.AssetLinks)
	visualsJSON, _ := json.Marshal(c.VisualLinks)

	_, err := s.db.Exec(`
		INSERT INTO content_items (id, created_at, post_type, body_text, slide_texts,
			source_memory_ids, state, design_intent, required_assets,
			asset_links, visual_links, scheduled_time, posted_time, posting_status, error_log)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.CreatedAt, c.PostType, c.BodyText, string(slidesJSON),
		string(sourcesJSON), c.State, c.DesignIntent, c.RequiredAssets,
		string(assetsJSON), string(visualsJSON), c.ScheduledTime, c.PostedTime,
		c.PostingStatus, c.ErrorLog)
	return err
}

// SaveContentItem overwrites every mutable column of an existing item.
func (s *Store) SaveContentItem(c *ContentItem) error {
	slidesJSON, _ := json.Marshal(c.SlideTexts)
	sourcesJSON, _ := json.Marshal(c.SourceMemoryIDs)
	assetsJSON, _ := json.Marshal(c.AssetLinks)
	visualsJSON, _ := json.Marshal(c.VisualLinks)

	res, err := s.db.Exec(`
		UPDATE content_items SET post_type = ?, body_text = ?, slide_texts = ?,
			source_memory_ids = ?, state = ?, design_intent = ?, required_assets = ?,
			asset_links = ?, visual_links = ?, scheduled_time = ?, posted_time = ?,
			posting_status = ?, error_log = ?
		WHERE id = ?
	`, c.PostType, c.BodyText, string(slidesJSON), string(sourcesJSON), c.State,
		c.DesignIntent, c.RequiredAssets, string(assetsJSON), string(visualsJSON),
		c.ScheduledTime, c.PostedTime, c.PostingStatus, c.ErrorLog, c.ID)
	if err != nil {
		return err
	}
	return requireRow(res, c.ID)
}

// GetContentItem fetches a content item by id.
func (s *Store) GetContentItem(id string) (*ContentItem, error) {
	row := s.db.QueryRow(contentSelect+` WHERE id = ?`, id)
	return scanContentItem(row)
}

// OldestInState returns the oldest content item in the given state, or
// sql.ErrNoRows if none exists.
func (s *Store) OldestInState(state PostState) (*ContentItem, error) {
	row := s.db.QueryRow(contentSelect+` WHERE state = ? ORDER BY created_at ASC LIMIT 1`, state)
	return scanContentItem(row)
}

// ListItemsInState returns content items in a state, oldest first.
func (s *Store) ListItemsInState(state PostState, limit int) ([]ContentItem, error) {
	rows, err := s.db.Query(contentSelect+` WHERE state = ? ORDER BY created_at ASC LIMIT ?`, state, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ContentItem
	for rows.Next() {
		c, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

const contentSelect = `
	SELECT id, created_at, post_type, body_text, slide_texts, source_memory_ids,
		state, design_intent, required_assets, asset_links, visual_links,
		scheduled_time, posted_time, posting_status, error_log
	FROM content_items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentItem(row rowScanner) (*ContentItem, error) {
	var c ContentItem
	var slidesJSON, sourcesJSON, assetsJSON, visualsJSON string
	var scheduled, posted sql.NullTime

	err := row.Scan(&c.ID, &c.CreatedAt, &c.PostType, &c.BodyText, &slidesJSON,
		&sourcesJSON, &c.State, &c.DesignIntent, &c.RequiredAssets,
		&assetsJSON, &visualsJSON, &scheduled, &posted, &c.PostingStatus, &c.ErrorLog)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(slidesJSON), &c.SlideTexts); err != nil {
		return nil, fmt.Errorf("decode slide_texts for %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &c.SourceMemoryIDs); err != nil {
		return nil, fmt.Errorf("decode source_memory_ids for %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(assetsJSON), &c.AssetLinks); err != nil {
		return nil, fmt.Errorf("decode asset_links for %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(visualsJSON), &c.VisualLinks); err != nil {
		return nil, fmt.Errorf("decode visual_links for %s: %w", c.ID, err)
	}
	c.ScheduledTime = scheduled.Time
	c.PostedTime = posted.Time

	return &c, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no row with id %s", id)
	}
	return nil
}

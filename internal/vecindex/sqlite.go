package vecindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// SQLite is an Index persisted to a SQLite file. KNN queries go through the
// sqlite-vec vec0 virtual table when the extension loads; otherwise search
// degrades to a linear cosine scan over the stored vectors, so the index
// stays functional on builds without the extension.
type SQLite struct {
	mu        sync.Mutex
	db        *sql.DB
	embedder  Embedder
	logger    *slog.Logger
	available bool
}

// NewSQLite opens or creates the vector database at path.
func NewSQLite(path string, embedder Embedder, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("vecindex: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, embedder: embedder, logger: logger}
	if err := s.ensureBaseSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ensureVecSchema(); err != nil {
		logger.Warn("sqlite-vec unavailable, falling back to linear scan", slog.String("error", err.Error()))
		s.available = false
	} else {
		s.available = true
	}
	return s, nil
}

func (s *SQLite) ensureBaseSchema() error {
	// note_vectors is the source of truth; the vec0 table is a rebuildable
	// acceleration structure over it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS note_vectors (
		node_id    TEXT PRIMARY KEY,
		embedding  TEXT NOT NULL,
		metadata   TEXT,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("vecindex: create note_vectors: %w", err)
	}
	return nil
}

func (s *SQLite) ensureVecSchema() error {
	var vecVersion string
	if err := s.db.QueryRow(`SELECT vec_version()`).Scan(&vecVersion); err != nil {
		return fmt.Errorf("vec_version(): %w", err)
	}

	// vec0 requires integer rowids; node ids are text, so map through an
	// autoincrement table.
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS note_vec_ids (
		vec_id  INTEGER PRIMARY KEY AUTOINCREMENT,
		node_id TEXT UNIQUE NOT NULL
	)`); err != nil {
		return fmt.Errorf("create note_vec_ids: %w", err)
	}

	createSQL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS note_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		s.embedder.Dimensions(),
	)
	if _, err := s.db.Exec(createSQL); err != nil {
		return fmt.Errorf("create vec0 table: %w", err)
	}
	return nil
}

func (s *SQLite) Upsert(ctx context.Context, id, text string, meta map[string]string) error {
	vec, err := s.embedder.Embed(text)
	if err != nil {
		return fmt.Errorf("vecindex: embed %s: %w", id, err)
	}
	embJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("vecindex: encode embedding: %w", err)
	}
	var metaJSON []byte
	if len(meta) > 0 {
		metaJSON, _ = json.Marshal(meta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO note_vectors (node_id, embedding, metadata, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET embedding=excluded.embedding, metadata=excluded.metadata, updated_at=excluded.updated_at`,
		id, string(embJSON), nullable(metaJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("vecindex: upsert %s: %w", id, err)
	}

	if !s.available {
		return nil
	}
	return s.vecInsertLocked(ctx, id, vec)
}

func (s *SQLite) vecInsertLocked(ctx context.Context, id string, vec []float32) error {
	var vecID int64
	err := s.db.QueryRowContext(ctx, `SELECT vec_id FROM note_vec_ids WHERE node_id = ?`, id).Scan(&vecID)
	if err == sql.ErrNoRows {
		res, err := s.db.ExecContext(ctx, `INSERT INTO note_vec_ids (node_id) VALUES (?)`, id)
		if err != nil {
			return fmt.Errorf("vecindex: map id %s: %w", id, err)
		}
		vecID, _ = res.LastInsertId()
	} else if err != nil {
		return fmt.Errorf("vecindex: lookup vec id: %w", err)
	}

	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("vecindex: serialize embedding: %w", err)
	}

	// vec0 has no ON CONFLICT support.
	s.db.ExecContext(ctx, `DELETE FROM note_embeddings WHERE rowid = ?`, vecID)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO note_embeddings (rowid, embedding) VALUES (?, ?)`, vecID, blob); err != nil {
		return fmt.Errorf("vecindex: insert vec0 row: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM note_vectors WHERE node_id = ?`, id); err != nil {
		return fmt.Errorf("vecindex: delete %s: %w", id, err)
	}
	if !s.available {
		return nil
	}

	var vecID int64
	if err := s.db.QueryRowContext(ctx, `SELECT vec_id FROM note_vec_ids WHERE node_id = ?`, id).Scan(&vecID); err != nil {
		return nil
	}
	s.db.ExecContext(ctx, `DELETE FROM note_embeddings WHERE rowid = ?`, vecID)
	s.db.ExecContext(ctx, `DELETE FROM note_vec_ids WHERE vec_id = ?`, vecID)
	return nil
}

func (s *SQLite) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT node_id FROM note_vectors ORDER BY node_id`)
	if err != nil {
		return nil, fmt.Errorf("vecindex: list ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	vec, err := s.embedder.Embed(query)
	if err != nil {
		return nil, fmt.Errorf("vecindex: embed query: %w", err)
	}

	if s.available {
		results, err := s.knnSearch(ctx, vec, limit)
		if err == nil {
			return results, nil
		}
		s.logger.Warn("vec0 query failed, falling back to linear scan", slog.String("error", err.Error()))
	}
	return s.linearSearch(ctx, vec, limit)
}

func (s *SQLite) knnSearch(ctx context.Context, vec []float32, limit int) ([]Result, error) {
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, distance
		FROM note_embeddings
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?`, blob, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type hit struct {
		rowID    int64
		distance float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.rowID, &h.distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(hits))
	args := make([]any, len(hits))
	for i, h := range hits {
		placeholders[i] = "?"
		args[i] = h.rowID
	}
	mapRows, err := s.db.QueryContext(ctx,
		`SELECT vec_id, node_id FROM note_vec_ids WHERE vec_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer mapRows.Close()

	idByRow := make(map[int64]string, len(hits))
	for mapRows.Next() {
		var vecID int64
		var nodeID string
		if err := mapRows.Scan(&vecID, &nodeID); err != nil {
			return nil, err
		}
		idByRow[vecID] = nodeID
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		nodeID, ok := idByRow[h.rowID]
		if !ok {
			continue
		}
		meta, _ := s.loadMeta(ctx, nodeID)
		// Cosine distance is 1 - similarity.
		results = append(results, Result{ID: nodeID, Score: 1 - h.distance, Metadata: meta})
	}
	return results, nil
}

func (s *SQLite) linearSearch(ctx context.Context, vec []float32, limit int) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT node_id, embedding, metadata FROM note_vectors`)
	if err != nil {
		return nil, fmt.Errorf("vecindex: scan vectors: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var id, embJSON string
		var metaJSON sql.NullString
		if err := rows.Scan(&id, &embJSON, &metaJSON); err != nil {
			return nil, err
		}
		var stored []float32
		if err := json.Unmarshal([]byte(embJSON), &stored); err != nil {
			continue
		}
		r := Result{ID: id, Score: cosineSimilarity(vec, stored)}
		if metaJSON.Valid {
			json.Unmarshal([]byte(metaJSON.String), &r.Metadata)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *SQLite) loadMeta(ctx context.Context, id string) (map[string]string, error) {
	var metaJSON sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT metadata FROM note_vectors WHERE node_id = ?`, id).Scan(&metaJSON); err != nil {
		return nil, err
	}
	if !metaJSON.Valid {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM note_vectors`); err != nil {
		return fmt.Errorf("vecindex: clear: %w", err)
	}
	if s.available {
		s.db.ExecContext(ctx, `DELETE FROM note_embeddings`)
		s.db.ExecContext(ctx, `DELETE FROM note_vec_ids`)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

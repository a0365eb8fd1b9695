package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"memengine/internal/domain"
	"memengine/internal/embedding"
	"memengine/internal/logging"
)

func errNoEmbeddingEngine() error {
	return domain.NewError(domain.ErrKindUnavailable, "no embedding engine configured", nil)
}

// VectorEntry is one row returned from a vector search, carrying whatever
// similarity score the search path computed.
type VectorEntry struct {
	ID         int64
	OwnerKind  string
	OwnerID    int64
	Content    string
	Similarity float64
	CreatedAt  time.Time
}

// vecTableFor returns the per-head sqlite-vec virtual table name. Head names
// are interpolated into DDL as given and are not checked against
// config.StorageConfig.VectorDimensions or any other list; the callers in
// this module pass fixed literal names ("semantic", "code").
func vecTableFor(head string) string {
	return "vec_" + head
}

func (s *Store) ensureVecTable(head string, dim int) {
	if !s.vectorExt || dim <= 0 {
		return
	}
	stmt := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d], owner_kind TEXT, owner_id INTEGER)",
		vecTableFor(head), dim,
	)
	if _, err := s.db.Exec(stmt); err != nil {
		logging.Get(logging.CategoryStorage).Warn("failed to create vec table for head %s: %v", head, err)
	}
}

// StoreVector embeds content and upserts it into the given head, both in
// the JSON fallback table and, when available, the head's sqlite-vec
// table. ownerKind/ownerID identify the relational row the vector augments
// (e.g. "memory_entry", 42), so orphan sweeping can reconcile the two.
func (s *Store) StoreVector(ctx context.Context, head, ownerKind string, ownerID int64, content string, isQuery bool) error {
	timer := logging.StartTimer(logging.CategoryStorage, "StoreVector")
	defer timer.Stop()

	s.mu.RLock()
	engine := s.embeddingEngine
	s.mu.RUnlock()

	if engine == nil {
		return errNoEmbeddingEngine()
	}

	taskType := embedding.GetOptimalTaskType(content, nil, isQuery)
	var vec []float32
	var err error
	if ta, ok := engine.(interface {
		EmbedWithTask(context.Context, string, string) ([]float32, error)
	}); ok && taskType != "" {
		vec, err = ta.EmbedWithTask(ctx, content, taskType)
	} else {
		vec, err = engine.Embed(ctx, content)
	}
	if err != nil {
		return fmt.Errorf("embed content for head %s: %w", head, err)
	}

	vecJSON, _ := json.Marshal(vec)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO vectors (head, owner_kind, owner_id, content, embedding)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(head, owner_kind, owner_id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding`,
		head, ownerKind, ownerID, content, string(vecJSON),
	)
	if err != nil {
		return fmt.Errorf("store vector row: %w", err)
	}

	if s.vectorExt {
		s.ensureVecTable(head, len(vec))
		blob := encodeFloat32s(vec)
		_, _ = s.db.Exec(
			fmt.Sprintf(`INSERT OR REPLACE INTO %s (rowid, embedding, owner_kind, owner_id)
			 VALUES ((SELECT rowid FROM vectors WHERE head = ? AND owner_kind = ? AND owner_id = ?), ?, ?, ?)`, vecTableFor(head)),
			head, ownerKind, ownerID, blob, ownerKind, ownerID,
		)
	}

	return nil
}

// SearchVector embeds query and returns the top-k most similar entries in
// head, using the sqlite-vec ANN path when available and falling back to a
// brute-force cosine scan otherwise.
func (s *Store) SearchVector(ctx context.Context, head, query string, k int) ([]VectorEntry, error) {
	timer := logging.StartTimer(logging.CategoryStorage, "SearchVector")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	s.mu.RLock()
	engine := s.embeddingEngine
	vecEnabled := s.vectorExt
	s.mu.RUnlock()

	if engine == nil {
		return nil, errNoEmbeddingEngine()
	}

	taskType := embedding.GetOptimalTaskType(query, nil, true)
	var qvec []float32
	var err error
	if ta, ok := engine.(interface {
		EmbedWithTask(context.Context, string, string) ([]float32, error)
	}); ok && taskType != "" {
		qvec, err = ta.EmbedWithTask(ctx, query, taskType)
	} else {
		qvec, err = engine.Embed(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("embed query for head %s: %w", head, err)
	}

	if vecEnabled {
		if res, err := s.searchVecTable(head, qvec, k); err == nil {
			return res, nil
		}
		logging.Get(logging.CategoryStorage).Warn("sqlite-vec search failed for head %s, falling back to brute force", head)
	}
	return s.searchBruteForce(head, qvec, k)
}

func (s *Store) searchVecTable(head string, qvec []float32, k int) ([]VectorEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob := encodeFloat32s(qvec)
	q := fmt.Sprintf(
		`SELECT owner_kind, owner_id, vec_distance_cosine(embedding, ?) AS dist FROM %s ORDER BY dist ASC LIMIT ?`,
		vecTableFor(head),
	)
	rows, err := s.db.Query(q, blob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VectorEntry
	for rows.Next() {
		var ownerKind string
		var ownerID int64
		var dist float64
		if err := rows.Scan(&ownerKind, &ownerID, &dist); err != nil {
			continue
		}
		content, _ := s.contentFor(head, ownerKind, ownerID)
		out = append(out, VectorEntry{OwnerKind: ownerKind, OwnerID: ownerID, Content: content, Similarity: 1 - dist, CreatedAt: time.Now()})
	}
	return out, nil
}

func (s *Store) contentFor(head, ownerKind string, ownerID int64) (string, error) {
	var content string
	err := s.db.QueryRow(`SELECT content FROM vectors WHERE head = ? AND owner_kind = ? AND owner_id = ?`, head, ownerKind, ownerID).Scan(&content)
	return content, err
}

func (s *Store) searchBruteForce(head string, qvec []float32, k int) ([]VectorEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, owner_kind, owner_id, content, embedding, created_at FROM vectors WHERE head = ? AND embedding IS NOT NULL`, head)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type cand struct {
		entry VectorEntry
		sim   float64
	}
	var cands []cand
	for rows.Next() {
		var e VectorEntry
		var embJSON string
		if err := rows.Scan(&e.ID, &e.OwnerKind, &e.OwnerID, &e.Content, &embJSON, &e.CreatedAt); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue
		}
		sim, err := embedding.CosineSimilarity(qvec, vec)
		if err != nil {
			continue
		}
		cands = append(cands, cand{entry: e, sim: sim})
	}

	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			if cands[j].sim > cands[i].sim {
				cands[i], cands[j] = cands[j], cands[i]
			}
		}
	}
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]VectorEntry, len(cands))
	for i, c := range cands {
		c.entry.Similarity = c.sim
		out[i] = c.entry
	}
	return out, nil
}

// DeleteVectorsForOwner removes every head's vector row for a given owner,
// used when a relational row (e.g. a reparsed file's old code elements) is
// invalidated ahead of re-embedding.
func (s *Store) DeleteVectorsForOwner(ownerKind string, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM vectors WHERE owner_kind = ? AND owner_id = ?`, ownerKind, ownerID)
	return err
}

func encodeFloat32s(vec []float32) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

// liveOwnerIDs returns the set of ids from the relational table that backs
// ownerKind, used by the orphan sweeper to find vector rows whose owner no
// longer exists.
func (s *Store) liveOwnerIDs(ownerKind string) (map[int64]struct{}, error) {
	table, idCol, ok := ownerTableFor(ownerKind)
	if !ok {
		return nil, fmt.Errorf("unknown owner kind: %s", ownerKind)
	}
	rows, err := s.db.Query(fmt.Sprintf("SELECT %s FROM %s", idCol, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

func ownerTableFor(ownerKind string) (table, idCol string, ok bool) {
	switch ownerKind {
	case "memory_entry":
		return "memory_entries", "id", true
	case "code_element":
		return "code_elements", "id", true
	default:
		return "", "", false
	}
}


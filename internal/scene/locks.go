package scene

import "sort"

// LockTable tracks advisory selection locks: object id → holding
// connection id. At most one holder per object. Like Store, it relies on
// the owning room's mutex for synchronization.
//
// Locks are signaling only. The server arbitrates select itself but does
// not gate mutation events on lock ownership; object fields remain
// last-writer-wins.
type LockTable struct {
	holders map[int64]string
}

// NewLockTable returns an empty table.
func NewLockTable() *LockTable {
	return &LockTable{holders: map[int64]string{}}
}

// TryAcquire grants the lock if the object is unlocked or already held by
// connID. A grant by the current holder is idempotent. On refusal the
// existing holder is kept; there is no stealing, queueing, or expiry.
func (t *LockTable) TryAcquire(objID int64, connID string) bool {
	if h, ok := t.holders[objID]; ok && h != connID {
		return false
	}
	t.holders[objID] = connID
	return true
}

// Release drops the lock only if connID holds it. Releasing an unlocked
// object or someone else's lock is a no-op returning false.
func (t *LockTable) Release(objID int64, connID string) bool {
	if t.holders[objID] != connID {
		return false
	}
	delete(t.holders, objID)
	return true
}

// ReleaseAll drops every lock held by connID and returns the released
// object ids in ascending order, so the caller can broadcast one
// deselection per object. Used on disconnect and room switch.
func (t *LockTable) ReleaseAll(connID string) []int64 {
	var ids []int64
	for objID, h := range t.holders {
		if h == connID {
			ids = append(ids, objID)
		}
	}
	for _, id := range ids {
		delete(t.holders, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReleaseFor unconditionally clears the lock on objID, whoever holds it.
// Used when the object is deleted.
func (t *LockTable) ReleaseFor(objID int64) {
	delete(t.holders, objID)
}

// Holder reports the current holder of objID, if any.
func (t *LockTable) Holder(objID int64) (string, bool) {
	h, ok := t.holders[objID]
	return h, ok
}

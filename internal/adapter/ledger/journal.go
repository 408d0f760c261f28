package ledger

import (
	"sync"

	"github.com/firose-git/autovolt/internal/core/domain"
	"github.com/firose-git/autovolt/internal/core/port"
)

// MemoryJournal is an append-only in-process event log.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []domain.EventLogEntry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Append(entry domain.EventLogEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

// Entries returns the newest entries first. deviceId filters when non-empty;
// limit <= 0 means no limit.
func (j *MemoryJournal) Entries(deviceId string, limit int) []domain.EventLogEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []domain.EventLogEntry
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if deviceId != "" && e.DeviceId != deviceId {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// ensure interface compliance
var _ port.EventJournal = (*MemoryJournal)(nil)

package port

import (
	"context"

	"github.com/firose-git/autovolt/internal/core/domain"
)

// LedgerStore is the persisted daily energy ledger. IncrementDaily is the
// only mutation path: pure additive, never a destructive update.
type LedgerStore interface {
	IncrementDaily(ctx context.Context, deviceId, date string, category domain.SwitchCategory, delta domain.UsageDelta) error

	// QueryRange returns one DeviceUsage per requested device id, in the
	// given order, covering dates from..to inclusive. Devices without any
	// rows in the range are still returned with zero totals.
	QueryRange(ctx context.Context, deviceIds []string, from, to string) ([]domain.DeviceUsage, error)
}

// EventJournal is the append-only audit log of every transition, settlement,
// skip and rejection. Entries are never mutated after creation; settlement
// entries double as the durable source for ledger write retries.
type EventJournal interface {
	Append(entry domain.EventLogEntry) error
	Entries(deviceId string, limit int) []domain.EventLogEntry
}

// SettlementArchive is an optional long-term sink for settlement deltas
// (time-series database). Writes may fail while the backend is unavailable;
// callers retry from the journal.
type SettlementArchive interface {
	Archive(ctx context.Context, s domain.Settlement) error
}

package ledger

import (
	"context"
	"sync"

	"github.com/firose-git/autovolt/internal/core/domain"
	"github.com/firose-git/autovolt/internal/core/port"
)

// MemoryLedgerStore keeps the daily ledger in process memory. It is the
// authoritative aggregation layer; long-term persistence goes through the
// settlement archive.
type MemoryLedgerStore struct {
	mu sync.RWMutex
	// deviceId -> date -> record
	records map[string]map[string]*domain.LedgerRecord
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		records: make(map[string]map[string]*domain.LedgerRecord),
	}
}

func (s *MemoryLedgerStore) IncrementDaily(_ context.Context, deviceId, date string, category domain.SwitchCategory, delta domain.UsageDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDate, ok := s.records[deviceId]
	if !ok {
		byDate = make(map[string]*domain.LedgerRecord)
		s.records[deviceId] = byDate
	}
	rec, ok := byDate[date]
	if !ok {
		rec = &domain.LedgerRecord{
			DeviceId:   deviceId,
			Date:       date,
			Categories: make(map[domain.SwitchCategory]domain.CategoryUsage),
		}
		byDate[date] = rec
	}

	usage := rec.Categories[category]
	applyDelta(&usage, delta)
	rec.Categories[category] = usage
	applyDelta(&rec.Total, delta)
	return nil
}

func (s *MemoryLedgerStore) QueryRange(_ context.Context, deviceIds []string, from, to string) ([]domain.DeviceUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DeviceUsage, 0, len(deviceIds))
	for _, id := range deviceIds {
		usage := domain.DeviceUsage{DeviceId: id, Records: []domain.LedgerRecord{}}
		for date, rec := range s.records[id] {
			if date < from || date > to {
				continue
			}
			usage.Records = append(usage.Records, cloneRecord(rec))
			applyDelta(&usage.Total, domain.UsageDelta{
				EnergyKwh:    rec.Total.EnergyKwh,
				RuntimeHours: rec.Total.RuntimeHours,
				Cost:         rec.Total.Cost,
				Activations:  rec.Total.ActivationCount,
			})
		}
		// devices with no rows still appear, with zero totals
		result = append(result, usage)
	}
	return result, nil
}

func applyDelta(u *domain.CategoryUsage, d domain.UsageDelta) {
	u.EnergyKwh += d.EnergyKwh
	u.RuntimeHours += d.RuntimeHours
	u.Cost += d.Cost
	u.ActivationCount += d.Activations
}

func cloneRecord(rec *domain.LedgerRecord) domain.LedgerRecord {
	out := domain.LedgerRecord{
		DeviceId:   rec.DeviceId,
		Date:       rec.Date,
		Categories: make(map[domain.SwitchCategory]domain.CategoryUsage, len(rec.Categories)),
		Total:      rec.Total,
	}
	for k, v := range rec.Categories {
		out.Categories[k] = v
	}
	return out
}

// ensure interface compliance
var _ port.LedgerStore = (*MemoryLedgerStore)(nil)

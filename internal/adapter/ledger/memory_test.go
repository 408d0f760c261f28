package ledger

import (
	"context"
	"testing"

	"github.com/firose-git/autovolt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementDailyIsAdditive(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()

	require.NoError(t, store.IncrementDaily(ctx, "room101", "2026-03-02", domain.CATEGORY_LIGHT,
		domain.UsageDelta{EnergyKwh: 0.02, RuntimeHours: 1, Cost: 0.16, Activations: 1}))
	require.NoError(t, store.IncrementDaily(ctx, "room101", "2026-03-02", domain.CATEGORY_LIGHT,
		domain.UsageDelta{EnergyKwh: 0.01, RuntimeHours: 0.5, Cost: 0.08, Activations: 1}))
	require.NoError(t, store.IncrementDaily(ctx, "room101", "2026-03-02", domain.CATEGORY_FAN,
		domain.UsageDelta{EnergyKwh: 0.075, RuntimeHours: 1, Cost: 0.6, Activations: 1}))

	out, err := store.QueryRange(ctx, []string{"room101"}, "2026-03-02", "2026-03-02")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Records, 1)

	rec := out[0].Records[0]
	light := rec.Categories[domain.CATEGORY_LIGHT]
	assert.InDelta(t, 0.03, light.EnergyKwh, 1e-9)
	assert.Equal(t, uint32(2), light.ActivationCount)

	assert.InDelta(t, 0.105, rec.Total.EnergyKwh, 1e-9)
	assert.Equal(t, uint32(3), rec.Total.ActivationCount)
}

func TestQueryRangeIncludesDevicesWithoutRows(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()

	require.NoError(t, store.IncrementDaily(ctx, "room101", "2026-03-02", domain.CATEGORY_LIGHT,
		domain.UsageDelta{EnergyKwh: 0.02, Activations: 1}))

	out, err := store.QueryRange(ctx, []string{"room101", "room102"}, "2026-03-01", "2026-03-03")
	require.NoError(t, err)
	require.Len(t, out, 2)

	byId := map[string]domain.DeviceUsage{}
	for _, u := range out {
		byId[u.DeviceId] = u
	}
	assert.Len(t, byId["room101"].Records, 1)
	assert.Empty(t, byId["room102"].Records, "unknown device still present with zero totals")
	assert.Equal(t, domain.CategoryUsage{}, byId["room102"].Total)
}

func TestQueryRangeBoundsAreInclusive(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()

	for _, date := range []string{"2026-03-01", "2026-03-02", "2026-03-03", "2026-03-04"} {
		require.NoError(t, store.IncrementDaily(ctx, "room101", date, domain.CATEGORY_LIGHT,
			domain.UsageDelta{EnergyKwh: 0.01, Activations: 1}))
	}

	out, err := store.QueryRange(ctx, []string{"room101"}, "2026-03-02", "2026-03-03")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Len(t, out[0].Records, 2)
	assert.InDelta(t, 0.02, out[0].Total.EnergyKwh, 1e-9)
}

func TestQueryResultsAreCopies(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()

	require.NoError(t, store.IncrementDaily(ctx, "room101", "2026-03-02", domain.CATEGORY_LIGHT,
		domain.UsageDelta{EnergyKwh: 0.02, Activations: 1}))

	out, _ := store.QueryRange(ctx, []string{"room101"}, "2026-03-02", "2026-03-02")
	out[0].Records[0].Categories[domain.CATEGORY_LIGHT] = domain.CategoryUsage{EnergyKwh: 99}

	fresh, _ := store.QueryRange(ctx, []string{"room101"}, "2026-03-02", "2026-03-02")
	assert.InDelta(t, 0.02, fresh[0].Records[0].Categories[domain.CATEGORY_LIGHT].EnergyKwh, 1e-9)
}

func TestJournalNewestFirstAndFiltered(t *testing.T) {
	j := NewMemoryJournal()
	require.NoError(t, j.Append(domain.EventLogEntry{Id: "1", DeviceId: "room101"}))
	require.NoError(t, j.Append(domain.EventLogEntry{Id: "2", DeviceId: "room102"}))
	require.NoError(t, j.Append(domain.EventLogEntry{Id: "3", DeviceId: "room101"}))

	all := j.Entries("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].Id)

	filtered := j.Entries("room101", 1)
	require.Len(t, filtered, 1)
	assert.Equal(t, "3", filtered[0].Id)
}

package ledger

import (
	"context"
	"time"

	"github.com/firose-git/autovolt/internal/config"
	"github.com/firose-git/autovolt/internal/core/domain"
	"github.com/firose-git/autovolt/internal/core/port"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// InfluxSettlementArchive mirrors settlement deltas into InfluxDB for
// long-term analysis. Writes go through a circuit breaker; failed writes are
// retried by the accounting engine from the event journal.
type InfluxSettlementArchive struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

func NewInfluxSettlementArchive(cfg config.InfluxConfig, logger *zap.Logger) *InfluxSettlementArchive {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "influx-archive",
		Interval: 60 * time.Second,
		Timeout:  15 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})
	return &InfluxSettlementArchive{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		breaker:  breaker,
		logger:   logger.With(zap.String("adapter", "influx")),
	}
}

func (a *InfluxSettlementArchive) Archive(ctx context.Context, s domain.Settlement) error {
	_, err := a.breaker.Execute(func() (any, error) {
		point := influxdb2.NewPoint("energy_settlement",
			map[string]string{
				"device_id": s.DeviceId,
				"switch_id": s.SwitchId,
				"category":  string(s.Category),
				"date":      domain.LedgerDate(s.StoppedAt),
			},
			map[string]interface{}{
				"energy_kwh":    s.EnergyKwh,
				"runtime_hours": s.RuntimeHours,
				"cost":          s.Cost,
				"estimated":     s.Estimated,
			},
			s.StoppedAt)
		return nil, a.writeAPI.WritePoint(ctx, point)
	})
	if err != nil {
		a.logger.Warn("archive write failed", zap.Error(err))
	}
	return err
}

func (a *InfluxSettlementArchive) Close() {
	a.client.Close()
}

// ensure interface compliance
var _ port.SettlementArchive = (*InfluxSettlementArchive)(nil)

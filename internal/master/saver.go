package master

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"yqhp/kambo-hive/pkg/logger"
	"yqhp/kambo-hive/pkg/types"
)

// SnapshotSource produces consistent copies of the result aggregate.
type SnapshotSource interface {
	Snapshot() *types.Snapshot
}

// PeriodicSaver snapshots results to every sink on a fixed interval and once
// more when it stops.
type PeriodicSaver struct {
	source   SnapshotSource
	sinks    []SnapshotSink
	interval time.Duration
	clock    clockwork.Clock
	log      *zap.Logger
}

// NewPeriodicSaver creates a saver. Sinks are written in order.
func NewPeriodicSaver(source SnapshotSource, interval time.Duration, clock clockwork.Clock, sinks ...SnapshotSink) *PeriodicSaver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PeriodicSaver{
		source:   source,
		sinks:    sinks,
		interval: interval,
		clock:    clock,
		log:      logger.Named("master.saver"),
	}
}

// Run saves on every tick until ctx is cancelled, then flushes a final snapshot.
func (p *PeriodicSaver) Run(ctx context.Context) error {
	if len(p.sinks) == 0 {
		return nil
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// the final flush must not inherit the cancelled context
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			p.SaveNow(flushCtx)
			cancel()
			return nil
		case <-ticker.Chan():
			p.SaveNow(ctx)
		}
	}
}

// SaveNow writes one snapshot to every sink. Sink failures are logged and do not stop the others.
func (p *PeriodicSaver) SaveNow(ctx context.Context) int {
	snap := p.source.Snapshot()

	saved := 0
	for _, sink := range p.sinks {
		if err := sink.Save(ctx, snap); err != nil {
			p.log.Error("snapshot write failed", zap.String("sink", sink.Name()), zap.Error(err))
			continue
		}
		saved++
		p.log.Info("snapshot saved",
			zap.String("sink", sink.Name()),
			zap.Int("results", snap.TotalResultsCollected))
	}
	return saved
}

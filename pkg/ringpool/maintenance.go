package ringpool

import (
	"log/slog"
	"sync"
	"time"
)

// sweeper is the part of the pool the maintenance loop drives.
type sweeper interface {
	IsClosed() bool
	Size() int
	Idle() int
	CheckAbandoned()
	CheckIdle()
	TestAllIdle()
	RefreshRing()
}

// poolMaintenance runs the sweeps every TimeBetweenEvictionRuns until stopped
// or until its pool is closed and empty.
type poolMaintenance struct {
	pool     sweeper
	config   *PoolConfig
	logger   *slog.Logger
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce *sync.Once
}

func newPoolMaintenance(pool sweeper, config *PoolConfig, logger *slog.Logger) *poolMaintenance {

	if config.TimeBetweenEvictionRuns <= 0 {
		logger.Warn("pool maintenance interval is not set, defaulting to 30 seconds")
	} else if config.TimeBetweenEvictionRuns < int(minMaintenanceInterval/time.Millisecond) {
		logger.Warn("pool maintenance interval is lower than 1 second, using 1 second")
	}

	return &poolMaintenance{
		pool:     pool,
		config:   config,
		logger:   logger,
		interval: config.maintenanceInterval(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		stopOnce: &sync.Once{},
	}
}

func (pm *poolMaintenance) start() {
	go pm.run()
}

// stop waits for an in-flight cycle to finish.
func (pm *poolMaintenance) stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})

	<-pm.doneChan
}

func (pm *poolMaintenance) run() {
	defer close(pm.doneChan)

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stopChan:
			return
		case <-ticker.C:
		}

		if pm.pool.IsClosed() {
			if pm.pool.Size() <= 0 {
				return
			}

			continue
		}

		pm.cycle()
	}
}

func (pm *poolMaintenance) cycle() {
	defer func() {
		if r := recover(); r != nil {
			pm.logger.Error("pool maintenance cycle failed", "panic", r)
		}
	}()

	if pm.config.RemoveAbandoned {
		pm.pool.CheckAbandoned()
	}

	if pm.config.MinIdle < pm.pool.Idle() {
		pm.pool.CheckIdle()
	}

	if pm.config.TestWhileIdle {
		pm.pool.TestAllIdle()
	}

	if pm.config.AutomaticHostDiscovery {
		pm.pool.RefreshRing()
	}
}

package ringpool

import "time"

// Sweeps run beside borrow/return traffic; every connection is re-checked under its own lock.

func (cp *ConnectionPool) recoverSweep(sweep string) {
	if r := recover(); r != nil {
		cp.logger.Warn("sweep failed, it will be retried", "sweep", sweep, "panic", r)
	}
}

// CheckAbandoned reclaims busy connections held past RemoveAbandonedTimeout and marks
// the ones past SuspectTimeout as suspect.
func (cp *ConnectionPool) CheckAbandoned() {
	defer cp.recoverSweep("checkAbandoned")

	cp.logger.Debug("checking for abandoned connections")

	if cp.busy.Len() == 0 {
		return
	}

	for _, pc := range cp.busy.Snapshot() {
		cp.checkAbandoned(pc)
	}
}

func (cp *ConnectionPool) checkAbandoned(pc *PooledConnection) {
	pc.Lock()
	defer pc.Unlock()

	// returned or reclaimed since the snapshot
	if !cp.busy.Contains(pc) || cp.idle.Contains(pc) || pc.IsReleased() {
		return
	}

	held := cp.now().Sub(pc.Timestamp())
	abandonTimeout := cp.Config.abandonTimeout()
	suspectTimeout := cp.Config.suspectTimeout()

	if abandonTimeout > 0 && cp.shouldAbandon() && held > abandonTimeout {
		if cp.busy.Remove(pc) {
			cp.abandonLocked(pc)
		}
	} else if suspectTimeout > 0 && held > suspectTimeout {
		cp.suspectLocked(pc)
	}
}

// CheckIdle releases connections idle longer than MinEvictableIdleTime, never taking idle below MinIdle.
func (cp *ConnectionPool) CheckIdle() {
	defer cp.recoverSweep("checkIdle")

	releaseTime := cp.Config.minEvictableIdleTime()
	minIdle := cp.Config.MinIdle
	if releaseTime <= 0 || cp.idle.Len() <= minIdle {
		return
	}

	now := cp.now()
	for _, pc := range cp.idle.Snapshot() {
		if cp.idle.Len() <= minIdle {
			return
		}

		cp.evictIdle(pc, now, releaseTime, minIdle)
	}
}

func (cp *ConnectionPool) evictIdle(pc *PooledConnection, now time.Time, releaseTime time.Duration, minIdle int) {
	pc.Lock()
	defer pc.Unlock()

	if cp.busy.Contains(pc) {
		return
	}

	if now.Sub(pc.Timestamp()) <= releaseTime || cp.idle.Len() <= minIdle {
		return
	}

	if cp.idle.Remove(pc) {
		cp.logger.Debug("releasing idle connection", "connection", pc.String())
		cp.releaseLocked(pc)
	}
}

// TestAllIdle validates every idle connection and releases the ones that fail.
func (cp *ConnectionPool) TestAllIdle() {
	defer cp.recoverSweep("testAllIdle")

	for _, pc := range cp.idle.Snapshot() {
		cp.testIdle(pc)
	}
}

func (cp *ConnectionPool) testIdle(pc *PooledConnection) {
	pc.Lock()
	defer pc.Unlock()

	if cp.busy.Contains(pc) || !cp.idle.Contains(pc) {
		return
	}

	if !pc.Validate(ValidateOnIdle) && cp.idle.Remove(pc) {
		cp.logger.Debug("idle connection failed validation", "connection", pc.String())
		cp.releaseLocked(pc)
	}
}

// RefreshRing refreshes the host ring through the first idle connection that answers.
// Connections failing at the transport level are released and the next one is tried;
// any other failure ends the sweep until the next cycle.
func (cp *ConnectionPool) RefreshRing() {
	defer cp.recoverSweep("refreshRing")

	for _, pc := range cp.idle.Snapshot() {
		refreshed, err := cp.refreshFrom(pc)
		if refreshed {
			cp.logger.Debug("refreshRing success", "ring", cp.ring.String())
			return
		}

		if err != nil && !IsTransportError(err) {
			cp.logger.Warn("refreshRing failed, it will be retried", "error", err)
			return
		}
	}
}

func (cp *ConnectionPool) refreshFrom(pc *PooledConnection) (bool, error) {
	pc.Lock()
	defer pc.Unlock()

	if cp.busy.Contains(pc) || !cp.idle.Contains(pc) {
		return false, nil
	}

	client := pc.Client()
	if client == nil {
		return false, nil
	}

	err := cp.ring.Refresh(client)
	if err == nil {
		return true, nil
	}

	if IsTransportError(err) {
		cp.logger.Warn("removing connection to non-responding host", "connection", pc.String(), "error", err)
		if cp.idle.Remove(pc) {
			cp.releaseLocked(pc)
		}
	}

	return false, err
}

package ringpool

import "sync"

// noopLocker is handed to connections when nothing but their single borrower can touch them.
type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// newConnLocker picks the per-connection lock once, at connection creation.
// A real mutex is only needed when a sweeper runs or UseLock asks for one.
// The lock is not reentrant: code already holding it calls the *Locked variants.
func newConnLocker(config *PoolConfig) sync.Locker {
	if config.UseLock || config.PoolSweeperEnabled() {
		return &sync.Mutex{}
	}

	return noopLocker{}
}

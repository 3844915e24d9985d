package ringpool

import (
	cmap "github.com/orcaman/concurrent-map"
)

// busySet holds checked-out connections.
type busySet struct {
	members cmap.ConcurrentMap
}

func newBusySet() *busySet {
	return &busySet{members: cmap.New()}
}

func (bs *busySet) Offer(pc *PooledConnection) bool {
	return bs.members.SetIfAbsent(connectionKey(pc), pc)
}

// Remove reports whether pc was busy; only one caller wins for a given checkout.
func (bs *busySet) Remove(pc *PooledConnection) bool {
	_, ok := bs.members.Pop(connectionKey(pc))
	return ok
}

func (bs *busySet) Contains(pc *PooledConnection) bool {
	return bs.members.Has(connectionKey(pc))
}

func (bs *busySet) Len() int {
	return bs.members.Count()
}

func (bs *busySet) Snapshot() []*PooledConnection {
	return snapshotOf(bs.members)
}

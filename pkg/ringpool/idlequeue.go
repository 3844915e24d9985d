package ringpool

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	cmap "github.com/orcaman/concurrent-map"
)

func connectionKey(pc *PooledConnection) string {
	return strconv.FormatUint(pc.ID, 10)
}

// idleQueue hands idle connections to borrowers. The Workiva queue gives FIFO
// hand-off to blocked pollers; the members map is the source of truth for what
// is idle, so a connection removed by a sweep leaves a stale queue entry that
// the next poll skips.
type idleQueue struct {
	queue     *queue.Queue
	members   cmap.ConcurrentMap
	capacity  int // 0 means unbounded
	offerLock *sync.Mutex
}

func newIdleQueue(hint, capacity int) *idleQueue {
	return &idleQueue{
		queue:     queue.New(int64(hint)),
		members:   cmap.New(),
		capacity:  capacity,
		offerLock: &sync.Mutex{},
	}
}

// Offer adds pc unless the queue is full, disposed or already holds it.
func (iq *idleQueue) Offer(pc *PooledConnection) bool {
	iq.offerLock.Lock()
	defer iq.offerLock.Unlock()

	if iq.capacity > 0 && iq.members.Count() >= iq.capacity {
		return false
	}

	key := connectionKey(pc)
	if !iq.members.SetIfAbsent(key, pc) {
		return false
	}

	if err := iq.queue.Put(pc); err != nil {
		iq.members.Remove(key)
		return false
	}

	return true
}

// TryPoll takes the oldest idle connection without blocking.
func (iq *idleQueue) TryPoll() (*PooledConnection, bool) {

	for {
		taken := false
		items, err := iq.queue.TakeUntil(func(item interface{}) bool {
			if taken {
				return false
			}

			taken = true
			return true
		})
		if err != nil || len(items) == 0 {
			return nil, false
		}

		if pc, ok := iq.claim(items[0]); ok {
			return pc, true
		}
	}
}

// Poll waits up to timeout for an idle connection. Returns queue.ErrTimeout or queue.ErrDisposed.
func (iq *idleQueue) Poll(timeout time.Duration) (*PooledConnection, error) {

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, queue.ErrTimeout
		}

		items, err := iq.queue.Poll(1, remaining)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if pc, ok := iq.claim(item); ok {
				return pc, nil
			}
		}
	}
}

func (iq *idleQueue) claim(item interface{}) (*PooledConnection, bool) {

	pc, ok := item.(*PooledConnection)
	if !ok {
		return nil, false
	}

	if _, ok = iq.members.Pop(connectionKey(pc)); !ok {
		return nil, false
	}

	return pc, true
}

// Remove takes pc out of the idle set, reporting whether it was there.
func (iq *idleQueue) Remove(pc *PooledConnection) bool {
	_, ok := iq.members.Pop(connectionKey(pc))
	return ok
}

func (iq *idleQueue) Contains(pc *PooledConnection) bool {
	return iq.members.Has(connectionKey(pc))
}

func (iq *idleQueue) Len() int {
	return iq.members.Count()
}

// Snapshot lists idle connections ordered by ID, for sweeps to walk.
func (iq *idleQueue) Snapshot() []*PooledConnection {
	return snapshotOf(iq.members)
}

// Dispose wakes every blocked poller with queue.ErrDisposed.
func (iq *idleQueue) Dispose() {
	iq.queue.Dispose()
}

func (iq *idleQueue) Disposed() bool {
	return iq.queue.Disposed()
}

func snapshotOf(members cmap.ConcurrentMap) []*PooledConnection {

	items := members.Items()
	connections := make([]*PooledConnection, 0, len(items))
	for _, item := range items {
		if pc, ok := item.(*PooledConnection); ok {
			connections = append(connections, pc)
		}
	}

	sort.Slice(connections, func(i, j int) bool {
		return connections[i].ID < connections[j].ID
	})

	return connections
}

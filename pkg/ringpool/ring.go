package ringpool

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
)

// HostRing is the pool's view of cluster membership. Readers always see one
// complete snapshot; Refresh builds the next one and swaps it in.
type HostRing struct {
	policy      HostCyclePolicy
	snapshot    atomic.Pointer[ringSnapshot]
	refreshLock *sync.Mutex
	cursor      atomic.Uint64
}

type ringSnapshot struct {
	byAddress map[string]*Host
	ordered   []*Host
}

// NewHostRing seeds the ring with the configured addresses.
func NewHostRing(addresses []string, policy HostCyclePolicy) *HostRing {

	ring := &HostRing{
		policy:      policy,
		refreshLock: &sync.Mutex{},
	}
	ring.cursor.Store(rand.Uint64())
	ring.snapshot.Store(buildSnapshot(nil, addresses))

	return ring
}

// buildSnapshot reuses Host records from previous so health survives a refresh.
func buildSnapshot(previous *ringSnapshot, addresses []string) *ringSnapshot {

	next := &ringSnapshot{
		byAddress: make(map[string]*Host, len(addresses)),
		ordered:   make([]*Host, 0, len(addresses)),
	}

	for _, address := range addresses {
		if _, ok := next.byAddress[address]; ok {
			continue
		}

		var host *Host
		if previous != nil {
			host = previous.byAddress[address]
		}
		if host == nil {
			host = newHost(address)
		}

		next.byAddress[address] = host
		next.ordered = append(next.ordered, host)
	}

	return next
}

// Policy returns the ordering policy.
func (r *HostRing) Policy() HostCyclePolicy {
	return r.policy
}

// Hosts returns every known host once, ordered by the policy.
func (r *HostRing) Hosts() []*Host {

	ordered := r.snapshot.Load().ordered
	count := len(ordered)
	hosts := make([]*Host, count)
	if count == 0 {
		return hosts
	}

	switch r.policy {
	case RoundRobin:
		offset := int(r.cursor.Add(1) % uint64(count))
		copy(hosts, ordered[offset:])
		copy(hosts[count-offset:], ordered[:offset])
	default:
		copy(hosts, ordered)
		rand.Shuffle(count, func(i, j int) {
			hosts[i], hosts[j] = hosts[j], hosts[i]
		})
	}

	return hosts
}

// Host looks up a known host by address.
func (r *HostRing) Host(address string) (*Host, bool) {
	host, ok := r.snapshot.Load().byAddress[address]
	return host, ok
}

// Addresses returns the known addresses in discovery order.
func (r *HostRing) Addresses() []string {

	ordered := r.snapshot.Load().ordered
	addresses := make([]string, len(ordered))
	for i, host := range ordered {
		addresses[i] = host.address
	}

	return addresses
}

// Len returns the number of known hosts.
func (r *HostRing) Len() int {
	return len(r.snapshot.Load().ordered)
}

// Refresh asks client for the endpoints of the first user keyspace and reconciles the ring with them.
// On any error the ring is left as it was.
func (r *HostRing) Refresh(client Client) error {
	r.refreshLock.Lock()
	defer r.refreshLock.Unlock()

	keyspaces, err := client.DescribeKeyspaces()
	if err != nil {
		return err
	}

	keyspace := ""
	for _, name := range keyspaces {
		if !isSystemKeyspace(name) {
			keyspace = name
			break
		}
	}

	if keyspace == "" {
		return ErrNoUserKeyspace
	}

	endpoints, err := client.DescribeRingEndpoints(keyspace)
	if err != nil {
		return err
	}

	if len(endpoints) == 0 {
		return errors.New("ring refresh returned no endpoints for keyspace " + keyspace)
	}

	r.snapshot.Store(buildSnapshot(r.snapshot.Load(), endpoints))

	return nil
}

func isSystemKeyspace(name string) bool {
	lowered := strings.ToLower(name)
	return lowered == "system" || strings.HasPrefix(lowered, "system_")
}

func (r *HostRing) String() string {
	return fmt.Sprintf("HostRing [policy=%s, activeHosts=%v]", r.policy, r.snapshot.Load().ordered)
}

// Package lock implements shimmer's multi-granularity pessimistic lock
// manager: database/page/record resources, six lock modes with a
// compatibility matrix, in-place upgrade, a wait-for graph with
// DFS-based deadlock detection and deterministic victim selection.
//
// The lockers-map-plus-mutex shape and the snapshot-then-iterate release
// pattern follow leftmike-maho's engine/fatlock; the Manager/Stats
// introspection naming follows Govetachun-Go-DB's internal/concurrency
// LockManager. The compatibility matrix and wait-for-graph algorithm are
// authored to the exact rules shimmer requires, since no single retrieval
// example implements full multi-granularity locking with cycle detection.
package lock

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"shimmer/errs"
)

// Mode is one of the six lock states.
type Mode int

const (
	None Mode = iota
	IS
	IX
	S
	SIX
	X
)

func (m Mode) String() string {
	switch m {
	case None:
		return "None"
	case IS:
		return "IS"
	case IX:
		return "IX"
	case S:
		return "S"
	case SIX:
		return "SIX"
	case X:
		return "X"
	default:
		return "?"
	}
}

// compat[held][requested] reports whether requested is grantable
// alongside held, held by a different transaction.
var compat = [6][6]bool{
	/*        None  IS    IX    S     SIX   X  */
	/*None*/ {true, true, true, true, true, true},
	/*IS  */ {true, true, true, true, true, false},
	/*IX  */ {true, true, true, false, false, false},
	/*S   */ {true, true, false, true, false, false},
	/*SIX */ {true, true, false, false, false, false},
	/*X   */ {true, false, false, false, false, false},
}

func compatible(held, requested Mode) bool {
	return compat[held][requested]
}

// upgradeTargets lists the modes a held mode may upgrade to in place.
var upgradeTargets = map[Mode]map[Mode]bool{
	IS: {S: true, X: true, IX: true, SIX: true},
	IX: {X: true, SIX: true},
	S:  {X: true, SIX: true},
}

// ResourceKind names the scope of a locked resource.
type ResourceKind int

const (
	Database ResourceKind = iota
	Page
	Record
)

// ResourceID is a 64-bit composite: a resource-type tag in the high 32
// bits, an object id in the low 32 bits. Record resources mix the owning
// page id into the high half alongside the type tag, per spec.
type ResourceID uint64

func DatabaseResource(dbID uint32) ResourceID {
	return ResourceID(uint64(Database)<<32 | uint64(dbID))
}

func PageResource(pageID uint32) ResourceID {
	return ResourceID(uint64(Page)<<32 | uint64(pageID))
}

// RecordResource mixes the owning page id into the high bits alongside
// the Record tag, and the record key's xxhash into the low bits, so two
// different keys on the same page hash to distinct resources.
func RecordResource(pageID uint32, key []byte) ResourceID {
	keyHash := uint32(xxhash.Sum64(key))
	high := uint64(Record)<<24 | uint64(pageID)&0x00ffffff
	return ResourceID(high<<32 | uint64(keyHash))
}

type request struct {
	txnID   uint64
	mode    Mode
	granted bool
}

type resourceState struct {
	id       ResourceID
	requests []*request // granted requests and waiters, in arrival order
}

// Manager is the single global lock table plus wait-for graph.
type Manager struct {
	mu        sync.Mutex
	resources map[ResourceID]*resourceState
	txnLocks  map[uint64]map[ResourceID]bool
	waitFor   map[uint64]map[uint64]bool // requester -> set of holders it waits on
	cond      *sync.Cond

	// Abort is invoked (outside the manager's mutex) to abort a victim
	// transaction chosen during deadlock detection. It must release the
	// victim's locks via ReleaseAll.
	Abort func(txnID uint64)
}

// NewManager constructs an empty lock manager.
func NewManager() *Manager {
	m := &Manager{
		resources: make(map[ResourceID]*resourceState),
		txnLocks:  make(map[uint64]map[ResourceID]bool),
		waitFor:   make(map[uint64]map[uint64]bool),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

const (
	DefaultPageTimeout     = 5 * time.Second
	DefaultRecordTimeout   = 5 * time.Second
	DefaultDatabaseTimeout = 10 * time.Second
)

// LockPage acquires mode on a page resource with the default 5s timeout.
func (m *Manager) LockPage(txnID uint64, pageID uint32, mode Mode) error {
	return m.Acquire(txnID, PageResource(pageID), mode, DefaultPageTimeout)
}

// LockRecord acquires mode on a record resource with the default 5s
// timeout.
func (m *Manager) LockRecord(txnID uint64, pageID uint32, key []byte, mode Mode) error {
	return m.Acquire(txnID, RecordResource(pageID, key), mode, DefaultRecordTimeout)
}

// LockDatabase acquires mode on the database resource with the default
// 10s timeout.
func (m *Manager) LockDatabase(txnID uint64, dbID uint32, mode Mode) error {
	return m.Acquire(txnID, DatabaseResource(dbID), mode, DefaultDatabaseTimeout)
}

// Acquire attempts to grant (txnID, resource, mode), blocking up to
// timeout if the resource is currently held incompatibly.
func (m *Manager) Acquire(txnID uint64, resource ResourceID, mode Mode, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.resources[resource]
	if rs == nil {
		rs = &resourceState{id: resource}
		m.resources[resource] = rs
	}

	// 1. In-place upgrade.
	for _, r := range rs.requests {
		if r.txnID == txnID && r.granted {
			if r.mode == mode {
				return nil
			}
			if upgradeTargets[r.mode][mode] {
				r.mode = mode
				return nil
			}
		}
	}

	// 2/3. Conflict check against other granted holders.
	if m.tryGrant(rs, txnID, mode) {
		return nil
	}

	// 4. Conflict exists: run deadlock detection before waiting.
	m.addWaitEdges(rs, txnID, mode)
	if cycleTxn, ok := m.detectCycle(txnID); ok {
		m.removeWaitEdgesFrom(txnID)
		if cycleTxn == txnID {
			return errs.Wrap(errs.ErrDeadlockDetected, "acquire")
		}
		// Another transaction is the victim: abort it, then retry grant.
		abortFn := m.Abort
		if abortFn != nil {
			m.mu.Unlock()
			abortFn(cycleTxn)
			m.mu.Lock()
		}
		if m.tryGrant(rs, txnID, mode) {
			return nil
		}
	}

	// No cycle (or victim abort didn't free the resource): enqueue as a
	// waiter and block until granted or timeout.
	waiter := &request{txnID: txnID, mode: mode, granted: false}
	rs.requests = append(rs.requests, waiter)

	deadline := time.Now().Add(timeout)
	for !waiter.granted {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			m.removeRequest(rs, waiter)
			m.removeWaitEdgesFrom(txnID)
			return errs.Wrap(errs.ErrLockTimeout, "acquire")
		}
		timer := time.AfterFunc(remaining, func() { m.cond.Broadcast() })
		m.cond.Wait()
		timer.Stop()
	}
	m.removeWaitEdgesFrom(txnID)
	return nil
}

// tryGrant grants (txnID, mode) on rs if compatible with every other
// granted holder, recording the grant in txnLocks on success.
func (m *Manager) tryGrant(rs *resourceState, txnID uint64, mode Mode) bool {
	for _, r := range rs.requests {
		if r.granted && r.txnID != txnID && !compatible(r.mode, mode) {
			return false
		}
	}
	rs.requests = append(rs.requests, &request{txnID: txnID, mode: mode, granted: true})
	locks := m.txnLocks[txnID]
	if locks == nil {
		locks = make(map[ResourceID]bool)
		m.txnLocks[txnID] = locks
	}
	locks[rs.id] = true
	return true
}

// addWaitEdges adds requester -> holder edges only for holders whose
// granted mode genuinely conflicts with the requested mode. A holder
// compatible with the request (e.g. two simultaneous IS/S grants) is
// not a reason to wait at all and must not appear in the wait-for
// graph, or an unrelated edge elsewhere can manufacture a cycle that
// doesn't correspond to any real mutual exclusion.
func (m *Manager) addWaitEdges(rs *resourceState, txnID uint64, mode Mode) {
	for _, r := range rs.requests {
		if r.granted && r.txnID != txnID && !compatible(r.mode, mode) {
			edges := m.waitFor[txnID]
			if edges == nil {
				edges = make(map[uint64]bool)
				m.waitFor[txnID] = edges
			}
			edges[r.txnID] = true
		}
	}
}

func (m *Manager) removeWaitEdgesFrom(txnID uint64) {
	delete(m.waitFor, txnID)
}

// detectCycle runs a DFS from start looking for a cycle in the wait-for
// graph. If found, it returns the highest-id participant in the cycle
// (the deterministic victim) and true.
func (m *Manager) detectCycle(start uint64) (victim uint64, found bool) {
	visited := make(map[uint64]bool)
	stack := make(map[uint64]bool)
	var path []uint64

	var dfs func(n uint64) []uint64
	dfs = func(n uint64) []uint64 {
		visited[n] = true
		stack[n] = true
		path = append(path, n)
		for next := range m.waitFor[n] {
			if stack[next] {
				// Found the cycle: slice path from next's position.
				for i, p := range path {
					if p == next {
						return append([]uint64{}, path[i:]...)
					}
				}
			}
			if !visited[next] {
				if cyc := dfs(next); cyc != nil {
					return cyc
				}
			}
		}
		stack[n] = false
		path = path[:len(path)-1]
		return nil
	}

	cyc := dfs(start)
	if cyc == nil {
		return 0, false
	}
	var max uint64
	for _, id := range cyc {
		if id > max {
			max = id
		}
	}
	return max, true
}

func (m *Manager) removeRequest(rs *resourceState, target *request) {
	for i, r := range rs.requests {
		if r == target {
			rs.requests = append(rs.requests[:i], rs.requests[i+1:]...)
			return
		}
	}
}

// Release drops txnID's grant on resource and promotes any compatible
// waiters.
func (m *Manager) Release(txnID uint64, resource ResourceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(txnID, resource)
	m.cond.Broadcast()
}

func (m *Manager) releaseLocked(txnID uint64, resource ResourceID) {
	rs := m.resources[resource]
	if rs == nil {
		return
	}
	for i, r := range rs.requests {
		if r.granted && r.txnID == txnID {
			rs.requests = append(rs.requests[:i], rs.requests[i+1:]...)
			break
		}
	}
	if locks := m.txnLocks[txnID]; locks != nil {
		delete(locks, resource)
	}
	m.promoteWaiters(rs)
}

// promoteWaiters repeatedly grants the earliest waiter compatible with
// all currently granted requests, until a full pass grants nothing.
func (m *Manager) promoteWaiters(rs *resourceState) {
	for {
		promotedAny := false
		for _, r := range rs.requests {
			if r.granted {
				continue
			}
			if m.compatibleWithGranted(rs, r) {
				r.granted = true
				locks := m.txnLocks[r.txnID]
				if locks == nil {
					locks = make(map[ResourceID]bool)
					m.txnLocks[r.txnID] = locks
				}
				locks[rs.id] = true
				promotedAny = true
			}
		}
		if !promotedAny {
			return
		}
	}
}

func (m *Manager) compatibleWithGranted(rs *resourceState, waiter *request) bool {
	for _, r := range rs.requests {
		if r.granted && r.txnID != waiter.txnID && !compatible(r.mode, waiter.mode) {
			return false
		}
	}
	return true
}

// ReleaseAll releases every resource held by txnID, snapshotting the set
// first so release doesn't mutate the map it's iterating.
func (m *Manager) ReleaseAll(txnID uint64) {
	m.mu.Lock()
	locks := m.txnLocks[txnID]
	held := make([]ResourceID, 0, len(locks))
	for r := range locks {
		held = append(held, r)
	}
	for _, r := range held {
		m.releaseLocked(txnID, r)
	}
	delete(m.txnLocks, txnID)
	delete(m.waitFor, txnID)
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Stats summarizes current lock-table occupancy for the observer.
type Stats struct {
	ResourceCount int
	WaitingCount  int
	ActiveTxns    int
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{ResourceCount: len(m.resources), ActiveTxns: len(m.txnLocks)}
	for _, rs := range m.resources {
		for _, r := range rs.requests {
			if !r.granted {
				st.WaitingCount++
			}
		}
	}
	return st
}

// Package txn implements the transaction lifecycle: the three-state
// machine (Active -> Committed | Aborted) and the append-only undo log,
// which Abort hands back to the caller for replay in reverse order.
//
// Grounded on DaemonDB's storage_engine/transaction_manager (TxnState,
// TxnManager, atomic id allocation) and exec_transactions.go's
// AbortTransaction, which undoes updates then inserts in reverse order;
// shimmer generalizes the teacher's two untagged slices (InsertedRows,
// UpdatedRows) into one ordered, tagged UndoLog so replay happens in true
// program order rather than two separate passes.
package txn

import (
	"sync"
	"sync/atomic"

	"shimmer/errs"
)

// Mode restricts which operations a transaction may perform.
type Mode int

const (
	ReadOnly Mode = iota
	WriteOnly
	ReadWrite
)

// State is a transaction's position in its lifecycle.
type State int

const (
	Active State = iota
	Committed
	Aborted
)

// Op tags one undo-log entry.
type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

// UndoEntry records enough to invert one mutation: the operation, the
// target key, and — for Update/Delete — the pre-image value.
type UndoEntry struct {
	Op       Op
	DBID     uint32
	Key      []byte
	PreImage []byte // nil for Insert
}

// Transaction is the engine's unit of atomicity.
type Transaction struct {
	ID    uint64
	Mode  Mode
	state int32 // State, accessed atomically

	mu         sync.Mutex
	undoLog    []UndoEntry
	dirtyPages map[uint32]map[int64]bool // dbID -> set of dirty page ids
}

func newTransaction(id uint64, mode Mode) *Transaction {
	return &Transaction{
		ID:         id,
		Mode:       mode,
		state:      int32(Active),
		dirtyPages: make(map[uint32]map[int64]bool),
	}
}

// State returns the transaction's current lifecycle state.
func (t *Transaction) State() State {
	return State(atomic.LoadInt32(&t.state))
}

// RecordInsert appends an Insert undo entry.
func (t *Transaction) RecordInsert(dbID uint32, key []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLog = append(t.undoLog, UndoEntry{Op: OpInsert, DBID: dbID, Key: cloneBytes(key)})
}

// RecordUpdate appends an Update undo entry carrying the pre-image.
func (t *Transaction) RecordUpdate(dbID uint32, key, preImage []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLog = append(t.undoLog, UndoEntry{Op: OpUpdate, DBID: dbID, Key: cloneBytes(key), PreImage: cloneBytes(preImage)})
}

// RecordDelete appends a Delete undo entry carrying the pre-image.
func (t *Transaction) RecordDelete(dbID uint32, key, preImage []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLog = append(t.undoLog, UndoEntry{Op: OpDelete, DBID: dbID, Key: cloneBytes(key), PreImage: cloneBytes(preImage)})
}

// MarkDirty records that pageID in database dbID was mutated by t.
func (t *Transaction) MarkDirty(dbID uint32, pageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.dirtyPages[dbID]
	if set == nil {
		set = make(map[int64]bool)
		t.dirtyPages[dbID] = set
	}
	set[pageID] = true
}

// DirtyPages returns the dirty page ids recorded for dbID.
func (t *Transaction) DirtyPages(dbID uint32) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.dirtyPages[dbID]
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// UndoLog returns a copy of the transaction's undo log, in program order.
func (t *Transaction) UndoLog() []UndoEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]UndoEntry, len(t.undoLog))
	copy(out, t.undoLog)
	return out
}

// Commit discards the undo log and marks the transaction Committed. It
// fails with TransactionNotActive if the transaction is not Active.
func (t *Transaction) Commit() error {
	if !atomic.CompareAndSwapInt32(&t.state, int32(Active), int32(Committed)) {
		return errs.Wrap(errs.ErrTransactionNotActive, "commit")
	}
	t.mu.Lock()
	t.undoLog = nil
	t.mu.Unlock()
	return nil
}

// Abort marks the transaction Aborted and returns its undo log for the
// caller (the Database) to replay in reverse. Fails with
// TransactionNotActive if the transaction is not Active.
func (t *Transaction) Abort() ([]UndoEntry, error) {
	if !atomic.CompareAndSwapInt32(&t.state, int32(Active), int32(Aborted)) {
		return nil, errs.Wrap(errs.ErrTransactionNotActive, "abort")
	}
	t.mu.Lock()
	log := t.undoLog
	t.undoLog = nil
	t.mu.Unlock()
	return log, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

// Manager owns the registry of active transactions, mirroring
// DaemonDB's TxnManager: a map guarded by a mutex plus an atomic id
// counter.
type Manager struct {
	mu      sync.RWMutex
	nextID  uint64
	active  map[uint64]*Transaction
}

func NewManager() *Manager {
	return &Manager{active: make(map[uint64]*Transaction)}
}

// Begin allocates and registers a new Active transaction.
func (m *Manager) Begin(mode Mode) *Transaction {
	id := atomic.AddUint64(&m.nextID, 1)
	t := newTransaction(id, mode)
	m.mu.Lock()
	m.active[id] = t
	m.mu.Unlock()
	return t
}

// Get returns the active transaction for id, or nil if unknown.
func (m *Manager) Get(id uint64) *Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[id]
}

// Remove deregisters a transaction once it has committed or aborted.
func (m *Manager) Remove(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}

// ActiveCount reports how many transactions are currently registered.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

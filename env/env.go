// Package env implements the Environment: a registry of databases and
// active transactions that assigns identifiers, brokers commit/abort,
// and triggers snapshot persistence for databases that have opted in.
//
// Grounded on DaemonDB's storage_engine/catalog (name->id registry
// pattern) and storage_engine/transaction_manager.TxnManager
// (atomic-counter-plus-map registry), composed into one type owning both
// registries.
package env

import (
	"sync"
	"sync/atomic"

	"shimmer/database"
	"shimmer/errs"
	"shimmer/lock"
	"shimmer/observer"
	"shimmer/txn"
)

// Stats summarizes the Environment's current registries.
type Stats struct {
	OpenDatabases      int
	ActiveTransactions int
}

// Environment owns the database registry, the transaction registry, and
// the shared lock manager and observer every database is wired to.
type Environment struct {
	mu        sync.RWMutex
	databases map[uint32]*database.Database
	names     map[string]uint32
	nextDBID  uint32

	txnMgr  *txn.Manager
	lockMgr *lock.Manager
	obs     observer.Observer
}

// New constructs an empty Environment. obs may be nil.
func New(obs observer.Observer) *Environment {
	e := &Environment{
		databases: make(map[uint32]*database.Database),
		names:     make(map[string]uint32),
		txnMgr:    txn.NewManager(),
		lockMgr:   lock.NewManager(),
		obs:       obs,
	}
	e.lockMgr.Abort = func(txnID uint64) {
		if t := e.txnMgr.Get(txnID); t != nil {
			e.abortLocked(t)
		}
	}
	return e
}

// Open creates and registers a fresh database under name.
func (e *Environment) Open(name string) *database.Database {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := atomic.AddUint32(&e.nextDBID, 1)
	db := database.Open(id, name, e.lockMgr, e.obs)
	e.databases[id] = db
	e.names[name] = id
	return db
}

// Get looks up an open database by id.
func (e *Environment) Get(id uint32) (*database.Database, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	db, ok := e.databases[id]
	if !ok {
		return nil, errs.Wrap(errs.ErrInvalidDatabase, "get")
	}
	return db, nil
}

// GetByName looks up an open database by name.
func (e *Environment) GetByName(name string) (*database.Database, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.names[name]
	if !ok {
		return nil, errs.Wrap(errs.ErrInvalidDatabase, "get_by_name")
	}
	return e.databases[id], nil
}

// BeginTxn allocates and registers a new transaction of the given mode.
func (e *Environment) BeginTxn(mode txn.Mode) *txn.Transaction {
	return e.txnMgr.Begin(mode)
}

// CommitTxn commits transaction id: discards its undo log, snapshots any
// opted-in database with dirty pages, releases its locks, and removes it
// from the registry.
func (e *Environment) CommitTxn(id uint64) error {
	t := e.txnMgr.Get(id)
	if t == nil {
		return errs.Wrap(errs.ErrInvalidTransaction, "commit_txn")
	}

	e.mu.RLock()
	dbs := make([]*database.Database, 0, len(e.databases))
	for _, db := range e.databases {
		dbs = append(dbs, db)
	}
	e.mu.RUnlock()

	// Snapshot before discarding the undo log: a failed snapshot write
	// then leaves the transaction's undo log intact and reports
	// DiskWriteError without marking the transaction Committed.
	for _, db := range dbs {
		if db.DiskStorageEnabled() && len(t.DirtyPages(db.ID)) > 0 {
			if err := db.WriteSnapshot(); err != nil {
				return err
			}
		}
	}

	if err := t.Commit(); err != nil {
		return err
	}
	e.lockMgr.ReleaseAll(id)
	e.txnMgr.Remove(id)
	return nil
}

// AbortTxn aborts transaction id, replaying its undo log in reverse
// against dbID, releasing locks, and removing it from the registry.
func (e *Environment) AbortTxn(id uint64, dbID uint32) error {
	t := e.txnMgr.Get(id)
	if t == nil {
		return errs.Wrap(errs.ErrInvalidTransaction, "abort_txn")
	}
	db, err := e.Get(dbID)
	if err != nil {
		return err
	}
	return e.abortAgainst(t, db)
}

func (e *Environment) abortAgainst(t *txn.Transaction, db *database.Database) error {
	log, err := t.Abort()
	if err != nil {
		return err
	}
	for i := len(log) - 1; i >= 0; i-- {
		if applyErr := db.ApplyUndo(t, log[i]); applyErr != nil {
			return applyErr
		}
	}
	e.lockMgr.ReleaseAll(t.ID)
	e.txnMgr.Remove(t.ID)
	return nil
}

// abortLocked aborts t as the deadlock-detection victim: each UndoEntry
// already carries the id of the database it was recorded against, so
// the replay looks up the right database per entry rather than relying
// on a single caller-supplied database id the way AbortTxn does.
func (e *Environment) abortLocked(t *txn.Transaction) {
	log, err := t.Abort()
	if err == nil {
		for i := len(log) - 1; i >= 0; i-- {
			entry := log[i]
			if db, dbErr := e.Get(entry.DBID); dbErr == nil {
				db.ApplyUndo(t, entry)
			}
		}
	}
	e.lockMgr.ReleaseAll(t.ID)
	e.txnMgr.Remove(t.ID)
}

// Stats reports registry occupancy.
func (e *Environment) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{OpenDatabases: len(e.databases), ActiveTransactions: e.txnMgr.ActiveCount()}
}

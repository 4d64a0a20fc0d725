package env

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"shimmer/page"
	"shimmer/txn"
)

func TestOpenAndBasicCommitRoundTrip(t *testing.T) {
	e := New(nil)
	db := e.Open("accounts")

	wtx := e.BeginTxn(txn.ReadWrite)
	if err := db.Put(wtx, []byte("k"), []byte("42")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := e.CommitTxn(wtx.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rtx := e.BeginTxn(txn.ReadOnly)
	val, ok, err := db.Get(rtx, []byte("k"))
	if err != nil || !ok || string(val) != "42" {
		t.Fatalf("get after commit: ok=%v err=%v val=%q", ok, err, val)
	}
	e.CommitTxn(rtx.ID)

	if got := e.Stats(); got.OpenDatabases != 1 || got.ActiveTransactions != 0 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestImmutableRejectionViaEnvironment(t *testing.T) {
	e := New(nil)
	db := e.Open("accounts")

	wtx := e.BeginTxn(txn.ReadWrite)
	if err := db.Put(wtx, []byte("k"), []byte("v1")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := db.Put(wtx, []byte("k"), []byte("v2")); err == nil {
		t.Fatalf("expected immutable rejection on second put")
	}
	e.CommitTxn(wtx.ID)
}

func TestAbortUndoViaEnvironment(t *testing.T) {
	e := New(nil)
	db := e.Open("accounts")

	seed := e.BeginTxn(txn.ReadWrite)
	db.Put(seed, []byte("x"), []byte("100"))
	if err := e.CommitTxn(seed.ID); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	wtx := e.BeginTxn(txn.ReadWrite)
	db.Put(wtx, []byte("y"), []byte("999"))
	if err := e.AbortTxn(wtx.ID, db.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}

	check := e.BeginTxn(txn.ReadOnly)
	if val, ok, _ := db.Get(check, []byte("x")); !ok || string(val) != "100" {
		t.Fatalf("x should remain 100, got %q ok=%v", val, ok)
	}
	if _, ok, _ := db.Get(check, []byte("y")); ok {
		t.Fatalf("y should be absent after abort")
	}
	e.CommitTxn(check.ID)
}

func TestSplitOnOverflowViaEnvironment(t *testing.T) {
	e := New(nil)
	db := e.Open("bulk")

	wtx := e.BeginTxn(txn.ReadWrite)
	n := page.MaxKeysPerPage + 1
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("%06d", i))
		if err := db.Put(wtx, k, k); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if err := e.CommitTxn(wtx.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rtx := e.BeginTxn(txn.ReadOnly)
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("%06d", i))
		if _, ok, err := db.Get(rtx, k); err != nil || !ok {
			t.Fatalf("key %d missing after split: ok=%v err=%v", i, ok, err)
		}
	}
	e.CommitTxn(rtx.ID)
}

func TestSharedLocksCompatibleViaEnvironment(t *testing.T) {
	e := New(nil)
	db := e.Open("shared")

	seed := e.BeginTxn(txn.ReadWrite)
	db.Put(seed, []byte("k"), []byte("v"))
	e.CommitTxn(seed.ID)

	r1 := e.BeginTxn(txn.ReadOnly)
	r2 := e.BeginTxn(txn.ReadOnly)
	if _, ok, err := db.Get(r1, []byte("k")); !ok || err != nil {
		t.Fatalf("r1 get: ok=%v err=%v", ok, err)
	}
	if _, ok, err := db.Get(r2, []byte("k")); !ok || err != nil {
		t.Fatalf("r2 get: ok=%v err=%v", ok, err)
	}
	e.CommitTxn(r1.ID)
	e.CommitTxn(r2.ID)
}

func TestDeadlockDetectionLeavesExactlyOneSurvivor(t *testing.T) {
	e := New(nil)
	db := e.Open("cross")
	// The two transactions below overwrite seeded keys, which an
	// immutable database would reject with KeyExists.
	db.SetImmutable(false)

	// Force a split so the two keys below live on genuinely distinct
	// leaf pages: ascending insertion past capacity splits the leaf in
	// half, so the first and last keys of the run end up in different
	// leaves. Without this, both keys would share page 1's single X
	// lock and the two transactions would never form a real two-resource
	// wait-for cycle.
	seed := e.BeginTxn(txn.ReadWrite)
	n := page.MaxKeysPerPage + 1
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("%06d", i))
		if err := db.Put(seed, k, k); err != nil {
			t.Fatalf("seed put %d: %v", i, err)
		}
	}
	e.CommitTxn(seed.ID)

	lowKey := []byte(fmt.Sprintf("%06d", 0))
	highKey := []byte(fmt.Sprintf("%06d", n-1))

	t1 := e.BeginTxn(txn.ReadWrite)
	t2 := e.BeginTxn(txn.ReadWrite)

	errs1 := make(chan error, 1)
	errs2 := make(chan error, 1)

	// If a goroutine's own request is picked as the deadlock victim, the
	// lock manager returns ErrDeadlockDetected directly without ever
	// releasing that transaction's already-granted locks or invoking
	// the Abort callback -- that cleanup is the caller's job, exactly
	// as lock_test.go's TestDeadlockDetectionPicksOneVictim models it.
	// Without this, the other side's blocked second Put could stall
	// until its own lock timeout instead of unblocking promptly.
	go func() {
		if err := db.Put(t1, lowKey, []byte("t1-low")); err != nil {
			e.AbortTxn(t1.ID, db.ID)
			errs1 <- err
			return
		}
		time.Sleep(50 * time.Millisecond)
		if err := db.Put(t1, highKey, []byte("t1-high")); err != nil {
			e.AbortTxn(t1.ID, db.ID)
			errs1 <- err
			return
		}
		errs1 <- nil
	}()
	go func() {
		if err := db.Put(t2, highKey, []byte("t2-high")); err != nil {
			e.AbortTxn(t2.ID, db.ID)
			errs2 <- err
			return
		}
		time.Sleep(50 * time.Millisecond)
		if err := db.Put(t2, lowKey, []byte("t2-low")); err != nil {
			e.AbortTxn(t2.ID, db.ID)
			errs2 <- err
			return
		}
		errs2 <- nil
	}()

	e1 := <-errs1
	e2 := <-errs2

	succeeded, failed := 0, 0
	for _, err := range []error{e1, e2} {
		if err == nil {
			succeeded++
		} else {
			failed++
		}
	}
	// Both goroutines grab their first lock before either attempts the
	// second, so the wait-for cycle always forms: exactly one side must
	// be picked as victim and the other must progress once the victim's
	// locks are released.
	if succeeded != 1 || failed != 1 {
		t.Fatalf("expected exactly one survivor and one victim, got succeeded=%d failed=%d (e1=%v e2=%v)", succeeded, failed, e1, e2)
	}

	if e1 == nil {
		e.CommitTxn(t1.ID)
	}
	if e2 == nil {
		e.CommitTxn(t2.ID)
	}

	// After the survivor commits, both keys must hold the survivor's
	// values: the victim's first Put was undone or overwritten and left
	// nothing of its own visible.
	check := e.BeginTxn(txn.ReadOnly)
	lowVal, _, _ := db.Get(check, lowKey)
	highVal, _, _ := db.Get(check, highKey)
	e.CommitTxn(check.ID)
	if e1 == nil {
		if string(lowVal) != "t1-low" || string(highVal) != "t1-high" {
			t.Fatalf("expected t1's writes to stand, got low=%q high=%q", lowVal, highVal)
		}
	} else {
		if string(lowVal) != "t2-low" || string(highVal) != "t2-high" {
			t.Fatalf("expected t2's writes to stand, got low=%q high=%q", lowVal, highVal)
		}
	}
}

func TestSnapshotAndReloadViaEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shimmer.snapshot")

	e := New(nil)
	db := e.Open("persisted")
	if err := db.EnableDiskStorage(path, true); err != nil {
		t.Fatalf("enable disk storage: %v", err)
	}

	wtx := e.BeginTxn(txn.ReadWrite)
	db.Put(wtx, []byte("k1"), []byte("v1"))
	db.Put(wtx, []byte("k2"), []byte("hello"))
	if err := e.CommitTxn(wtx.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	e2 := New(nil)
	db2 := e2.Open("persisted")
	if err := db2.EnableDiskStorage(path, true); err != nil {
		t.Fatalf("reload enable disk storage: %v", err)
	}
	rtx := e2.BeginTxn(txn.ReadOnly)
	for _, kv := range [][2]string{{"k1", "v1"}, {"k2", "hello"}} {
		val, ok, err := db2.Get(rtx, []byte(kv[0]))
		if err != nil || !ok || string(val) != kv[1] {
			t.Fatalf("reload key %q: ok=%v err=%v val=%q", kv[0], ok, err, val)
		}
	}
	e2.CommitTxn(rtx.ID)
}

func TestUnknownTransactionRejected(t *testing.T) {
	e := New(nil)
	if err := e.CommitTxn(99999); err == nil {
		t.Fatalf("expected error committing unknown transaction id")
	}
	if err := e.AbortTxn(99999, 1); err == nil {
		t.Fatalf("expected error aborting unknown transaction id")
	}
}

func TestGetByNameAndUnknownDatabase(t *testing.T) {
	e := New(nil)
	db := e.Open("named")
	got, err := e.GetByName("named")
	if err != nil || got != db {
		t.Fatalf("GetByName mismatch: got=%v err=%v", got, err)
	}
	if _, err := e.GetByName("missing"); err == nil {
		t.Fatalf("expected error for unknown database name")
	}
	if _, err := e.Get(9999); err == nil {
		t.Fatalf("expected error for unknown database id")
	}
}

package page

import (
	"bytes"
	"testing"
)

func TestInsertAndSearch(t *testing.T) {
	p := New(1, true)
	for _, k := range []string{"b", "d", "a", "c"} {
		if _, ok := p.Insert([]byte(k), []byte("v-"+k)); !ok {
			t.Fatalf("insert %q failed", k)
		}
	}
	want := []string{"a", "b", "c", "d"}
	for i, k := range want {
		if string(p.Keys[i]) != k {
			t.Fatalf("position %d: got %q want %q", i, p.Keys[i], k)
		}
	}
	idx, ok := p.Search([]byte("c"))
	if !ok || idx != 2 {
		t.Fatalf("search c: idx=%d ok=%v", idx, ok)
	}
}

func TestInsertReplacesInPlace(t *testing.T) {
	p := New(1, true)
	p.Insert([]byte("k"), []byte("v1"))
	replaced, ok := p.Insert([]byte("k"), []byte("v2"))
	if !replaced || !ok {
		t.Fatalf("expected in-place replace")
	}
	if len(p.Keys) != 1 {
		t.Fatalf("expected single key, got %d", len(p.Keys))
	}
	if !bytes.Equal(p.Values[0], []byte("v2")) {
		t.Fatalf("value not replaced: %q", p.Values[0])
	}
}

func TestRemove(t *testing.T) {
	p := New(1, true)
	p.Insert([]byte("a"), []byte("1"))
	p.Insert([]byte("b"), []byte("2"))
	old, found := p.Remove([]byte("a"))
	if !found || string(old) != "1" {
		t.Fatalf("remove a: found=%v old=%q", found, old)
	}
	if len(p.Keys) != 1 || string(p.Keys[0]) != "b" {
		t.Fatalf("unexpected state after remove: %v", p.Keys)
	}
	if _, found := p.Remove([]byte("zzz")); found {
		t.Fatalf("removing absent key should not report found")
	}
}

func TestSplitLeaf(t *testing.T) {
	p := New(1, true)
	for i := 0; i < 10; i++ {
		k := []byte{byte('a' + i)}
		p.Insert(k, k)
	}
	right := New(2, true)
	sep := p.Split(right)
	if len(p.Keys)+len(right.Keys) != 10 {
		t.Fatalf("split lost keys: left=%d right=%d", len(p.Keys), len(right.Keys))
	}
	if !bytes.Equal(sep, right.Keys[0]) {
		t.Fatalf("leaf split separator must equal right's first key")
	}
	if right.Prev != p.ID || p.Next != right.ID {
		t.Fatalf("sibling links not wired: p.Next=%d right.Prev=%d", p.Next, right.Prev)
	}
}

func TestSplitInternalPromotesMedianWithoutDuplication(t *testing.T) {
	p := New(1, false)
	p.Children = append(p.Children, 100)
	for i := 0; i < 6; i++ {
		k := []byte{byte('a' + i)}
		p.Keys = append(p.Keys, k)
		p.Children = append(p.Children, int64(200+i))
	}
	right := New(2, false)
	sep := p.Split(right)
	for _, k := range p.Keys {
		if bytes.Equal(k, sep) {
			t.Fatalf("internal split must not duplicate separator into left half")
		}
	}
	for _, k := range right.Keys {
		if bytes.Equal(k, sep) {
			t.Fatalf("internal split must not duplicate separator into right half")
		}
	}
	if len(p.Children) != len(p.Keys)+1 || len(right.Children) != len(right.Keys)+1 {
		t.Fatalf("children count must be keys+1 on both halves")
	}
}

func TestMergeLeaves(t *testing.T) {
	left := New(1, true)
	left.Insert([]byte("a"), []byte("1"))
	right := New(2, true)
	right.Insert([]byte("b"), []byte("2"))
	right.Next = 99
	left.Next = right.ID

	left.Merge(right, nil)
	if len(left.Keys) != 2 {
		t.Fatalf("merge lost keys: %v", left.Keys)
	}
	if left.Next != 99 {
		t.Fatalf("merge did not inherit sibling.Next: got %d", left.Next)
	}
}

func TestRedistributeFromLeft(t *testing.T) {
	left := New(1, true)
	left.Insert([]byte("a"), []byte("1"))
	left.Insert([]byte("b"), []byte("2"))
	left.Insert([]byte("c"), []byte("3"))
	right := New(2, true)
	right.Insert([]byte("z"), []byte("26"))

	newSep := right.RedistributeFromLeft(left, nil)
	if len(left.Keys) != 2 || len(right.Keys) != 2 {
		t.Fatalf("redistribution count wrong: left=%d right=%d", len(left.Keys), len(right.Keys))
	}
	if string(right.Keys[0]) != "c" {
		t.Fatalf("expected borrowed key c at right[0], got %q", right.Keys[0])
	}
	if !bytes.Equal(newSep, right.Keys[0]) {
		t.Fatalf("leaf redistribution separator must equal new first key of receiver")
	}
}

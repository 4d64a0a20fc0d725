// Package page implements the B+-tree node: the unit of keyed storage in
// the shimmer engine. A Page owns its key and value byte buffers and
// supports the single-node operations the database orchestrator composes
// into whole-tree insertion and deletion.
//
// The node shape (parallel key/value/child slices, a leaf sibling link)
// is carried over from DaemonDB's bplustree.Node; capacity is raised from
// that package's MaxKeys=32 to the 1024 recommended here.
package page

import "bytes"

// MaxKeysPerPage bounds how many keys a single page may hold.
const MaxKeysPerPage = 1024

// MinKeysPerPage is the underflow threshold for non-root pages.
const MinKeysPerPage = MaxKeysPerPage / 2

// Page is one node of the B+-tree.
type Page struct {
	ID       int64
	ParentID int64
	IsLeaf   bool
	IsRoot   bool
	Prev     int64 // leaf-only
	Next     int64 // leaf-only
	Keys     [][]byte
	Values   [][]byte   // meaningful only for leaves
	Children []int64    // meaningful only for internal nodes
	Dirty    bool
}

// New creates an empty leaf or internal page with the given id.
func New(id int64, isLeaf bool) *Page {
	return &Page{
		ID:     id,
		IsLeaf: isLeaf,
		Keys:   make([][]byte, 0),
		Values: make([][]byte, 0),
	}
}

// KeyCount returns the number of keys currently stored.
func (p *Page) KeyCount() int { return len(p.Keys) }

// Full reports whether the page has reached capacity.
func (p *Page) Full() bool { return len(p.Keys) >= MaxKeysPerPage }

// Underflowing reports whether a non-root page has fallen below the
// minimum occupancy.
func (p *Page) Underflowing() bool {
	if p.IsRoot {
		return false
	}
	return len(p.Keys) < MinKeysPerPage
}

// CanLendKey reports whether this page can lose one key via
// redistribution without itself underflowing.
func (p *Page) CanLendKey() bool {
	return len(p.Keys) > MinKeysPerPage
}

// Search performs a binary search for key, returning its index and true
// on an exact match, or the position it would occupy and false.
func (p *Page) Search(key []byte) (int, bool) {
	lo, hi := 0, len(p.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		c := bytes.Compare(p.Keys[mid], key)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// FindInsertPosition returns the smallest index i such that keys[i] > key,
// or KeyCount() if no such index exists.
func (p *Page) FindInsertPosition(key []byte) int {
	lo, hi := 0, len(p.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(p.Keys[mid], key) > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func cloneBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

// Insert installs key/val. If key already exists its value is replaced
// in place. Returns ok=false with no mutation if the page is full and key
// is not already present (caller must split first).
func (p *Page) Insert(key, val []byte) (replaced bool, ok bool) {
	idx, exact := p.Search(key)
	if exact {
		p.Values[idx] = cloneBytes(val)
		p.Dirty = true
		return true, true
	}
	if p.Full() {
		return false, false
	}
	p.Keys = append(p.Keys, nil)
	copy(p.Keys[idx+1:], p.Keys[idx:])
	p.Keys[idx] = cloneBytes(key)

	p.Values = append(p.Values, nil)
	copy(p.Values[idx+1:], p.Values[idx:])
	p.Values[idx] = cloneBytes(val)

	p.Dirty = true
	return false, true
}

// InsertChildAt splices a separator key and right child into an internal
// node at position idx — used exclusively by split/merge fix-ups, never
// by plain leaf Insert.
func (p *Page) InsertChildAt(idx int, key []byte, rightChild int64) {
	p.Keys = append(p.Keys, nil)
	copy(p.Keys[idx+1:], p.Keys[idx:])
	p.Keys[idx] = cloneBytes(key)

	p.Children = append(p.Children, 0)
	copy(p.Children[idx+2:], p.Children[idx+1:])
	p.Children[idx+1] = rightChild

	p.Dirty = true
}

// Remove deletes key if present, releasing its owned buffers and
// returning the removed value (nil if absent). For internal nodes the
// child at i+1 is also spliced out.
func (p *Page) Remove(key []byte) (old []byte, found bool) {
	idx, exact := p.Search(key)
	if !exact {
		return nil, false
	}
	p.Keys = append(p.Keys[:idx], p.Keys[idx+1:]...)
	if idx < len(p.Values) {
		old = p.Values[idx]
		p.Values = append(p.Values[:idx], p.Values[idx+1:]...)
	}
	if !p.IsLeaf && idx+1 < len(p.Children) {
		p.Children = append(p.Children[:idx+1], p.Children[idx+2:]...)
	}
	p.Dirty = true
	return old, true
}

// Split moves the upper half of p's contents into newPage (whose ID is
// supplied by the caller) and returns the separator key the caller must
// promote into the parent.
func (p *Page) Split(newPage *Page) (separator []byte) {
	newPage.IsLeaf = p.IsLeaf
	mid := len(p.Keys) / 2

	if p.IsLeaf {
		newPage.Keys = append(newPage.Keys, p.Keys[mid:]...)
		newPage.Values = append(newPage.Values, p.Values[mid:]...)
		p.Keys = p.Keys[:mid]
		p.Values = p.Values[:mid]

		newPage.Next = p.Next
		newPage.Prev = p.ID
		p.Next = newPage.ID

		separator = cloneBytes(newPage.Keys[0])
	} else {
		separator = cloneBytes(p.Keys[mid])

		newPage.Keys = append(newPage.Keys, p.Keys[mid+1:]...)
		newPage.Children = append(newPage.Children, p.Children[mid+1:]...)
		p.Keys = p.Keys[:mid]
		p.Children = p.Children[:mid+1]
	}

	p.Dirty = true
	newPage.Dirty = true
	return separator
}

// Merge appends sibling's contents onto p. For internal nodes separator
// is reinserted between the two halves. For leaves, p.Next inherits
// sibling.Next (the caller must patch sibling.Next's Prev pointer).
func (p *Page) Merge(sibling *Page, separator []byte) {
	if p.IsLeaf {
		p.Keys = append(p.Keys, sibling.Keys...)
		p.Values = append(p.Values, sibling.Values...)
		p.Next = sibling.Next
	} else {
		p.Keys = append(p.Keys, cloneBytes(separator))
		p.Keys = append(p.Keys, sibling.Keys...)
		p.Children = append(p.Children, sibling.Children...)
	}
	p.Dirty = true
}

// RedistributeFromLeft moves one entry from leftSibling into p, returning
// the new separator the caller must install in the parent. For leaves,
// leftSibling's last key/value moves to the front of p. For internal
// nodes, p receives the old separator and leftSibling's last child, and
// leftSibling's last key becomes the new separator.
func (p *Page) RedistributeFromLeft(leftSibling *Page, separator []byte) (newSeparator []byte) {
	n := len(leftSibling.Keys)
	if p.IsLeaf {
		borrowedKey := cloneBytes(leftSibling.Keys[n-1])
		borrowedVal := cloneBytes(leftSibling.Values[n-1])
		leftSibling.Keys = leftSibling.Keys[:n-1]
		leftSibling.Values = leftSibling.Values[:n-1]

		p.Keys = append([][]byte{borrowedKey}, p.Keys...)
		p.Values = append([][]byte{borrowedVal}, p.Values...)
		newSeparator = cloneBytes(p.Keys[0])
	} else {
		borrowedKey := cloneBytes(leftSibling.Keys[n-1])
		borrowedChild := leftSibling.Children[len(leftSibling.Children)-1]
		leftSibling.Keys = leftSibling.Keys[:n-1]
		leftSibling.Children = leftSibling.Children[:len(leftSibling.Children)-1]

		p.Keys = append([][]byte{cloneBytes(separator)}, p.Keys...)
		p.Children = append([]int64{borrowedChild}, p.Children...)
		newSeparator = borrowedKey
	}
	p.Dirty = true
	leftSibling.Dirty = true
	return newSeparator
}

// RedistributeFromRight is the mirror of RedistributeFromLeft, borrowing
// the first key of rightSibling.
func (p *Page) RedistributeFromRight(rightSibling *Page, separator []byte) (newSeparator []byte) {
	if p.IsLeaf {
		borrowedKey := cloneBytes(rightSibling.Keys[0])
		borrowedVal := cloneBytes(rightSibling.Values[0])
		rightSibling.Keys = rightSibling.Keys[1:]
		rightSibling.Values = rightSibling.Values[1:]

		p.Keys = append(p.Keys, borrowedKey)
		p.Values = append(p.Values, borrowedVal)
		newSeparator = cloneBytes(rightSibling.Keys[0])
	} else {
		borrowedKey := cloneBytes(rightSibling.Keys[0])
		borrowedChild := rightSibling.Children[0]
		rightSibling.Keys = rightSibling.Keys[1:]
		rightSibling.Children = rightSibling.Children[1:]

		p.Keys = append(p.Keys, cloneBytes(separator))
		p.Children = append(p.Children, borrowedChild)
		newSeparator = borrowedKey
	}
	p.Dirty = true
	rightSibling.Dirty = true
	return newSeparator
}

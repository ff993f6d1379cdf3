// Package servers holds the read-only server list container and the
// filter/sort machinery that derives presentation views from it. Views
// are index permutations over a shared backing sequence; record data is
// never copied when filtering or sorting.
package servers

import (
	"fmt"
	"sort"

	"server-browser/internal/domain"
)

// Servers is an ordered, random-access sequence of server records. Both
// the backing storage and every derived view implement it, so filtered
// and sorted views compose over any source.
type Servers interface {
	Len() int
	// At returns the record at position i. It panics when i is out of
	// range. Returned records must be treated as read-only.
	At(i int) *domain.Server
}

// sliceServers owns the backing records of a list.
type sliceServers []domain.Server

func (s sliceServers) Len() int { return len(s) }

func (s sliceServers) At(i int) *domain.Server { return &s[i] }

// view is a subset or permutation of indices into a shared source. It
// resolves every access through the source, so no record is ever
// duplicated no matter how deeply views nest.
type view struct {
	source  Servers
	indices []int
}

func (v *view) Len() int { return len(v.indices) }

func (v *view) At(i int) *domain.Server { return v.source.At(v.indices[i]) }

// ServerList is a cheap-to-copy, read-only handle over a shared record
// sequence. Once published a list never changes, so handles may be
// shared across goroutines and views derived without locking. The zero
// value is an empty list.
type ServerList struct {
	src Servers
}

// FromRecords builds a list owning the given records. Callers hand over
// the slice and must not mutate it afterwards.
func FromRecords(records []domain.Server) ServerList {
	return ServerList{src: sliceServers(records)}
}

// Empty returns a list with no records.
func Empty() ServerList { return ServerList{} }

// Len returns the number of records reachable through this handle.
func (l ServerList) Len() int {
	if l.src == nil {
		return 0
	}
	return l.src.Len()
}

// At returns the record at position i, panicking when i >= Len().
func (l ServerList) At(i int) *domain.Server {
	if l.src == nil {
		panic(fmt.Sprintf("servers: index %d out of range of empty list", i))
	}
	return l.src.At(i)
}

// Filtered derives a view of the records accepted by the filter,
// preserving source order.
func (l ServerList) Filtered(f *Filter) ServerList {
	return l.FilteredFunc(f.Matches)
}

// FilteredFunc derives a view of the records for which pred returns
// true, preserving source order.
func (l ServerList) FilteredFunc(pred func(*domain.Server) bool) ServerList {
	if l.src == nil {
		return Empty()
	}
	n := l.src.Len()
	indices := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if pred(l.src.At(i)) {
			indices = append(indices, i)
		}
	}
	return ServerList{src: &view{source: l.src, indices: indices}}
}

// Sorted derives a view containing every record of the list ordered by
// the criteria. The comparator is a strict total order (ID tie-break),
// so the result is deterministic regardless of input order and sorting
// an already-sorted view changes nothing.
func (l ServerList) Sorted(criteria SortCriteria) ServerList {
	if l.src == nil {
		return Empty()
	}
	n := l.src.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	sort.Slice(indices, func(a, b int) bool {
		return criteria.Less(l.src.At(indices[a]), l.src.At(indices[b]))
	})
	return ServerList{src: &view{source: l.src, indices: indices}}
}

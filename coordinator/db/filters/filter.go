// Package filters specifies utilities for building a set of event
// attribute filters used when querying the log. A query for POST events
// under a ref since some timestamp builds a filter as follows:
//
//	f := filters.NewFilter().SetRef(root).SetKind(protocol.KindPost).SetSince(ts)
//
// and hands it to the database, which resolves the indexed attributes
// first and intersects them.
package filters

import "github.com/karstnet/karst/protocol"

// FilterType names an event attribute that can be filtered on.
type FilterType int

// Filterable event attributes.
const (
	Ref FilterType = iota
	Kind
	Author
	Since
)

// QueryFilter defines a generic interface for type-asserting specific
// filters to use in querying events.
type QueryFilter struct {
	queries map[FilterType]interface{}
	limit   int
	offset  int
}

// NewFilter instantiates a new QueryFilter type used to build event
// queries by attribute.
func NewFilter() *QueryFilter {
	return &QueryFilter{
		queries: make(map[FilterType]interface{}),
	}
}

// Filters returns the underlying map of FilterType to interface{}, giving
// a copy of the currently set filters which can be iterated over and type
// asserted.
func (q *QueryFilter) Filters() map[FilterType]interface{} {
	return q.queries
}

// SetRef --
func (q *QueryFilter) SetRef(val [32]byte) *QueryFilter {
	q.queries[Ref] = val
	return q
}

// SetKind --
func (q *QueryFilter) SetKind(val protocol.Kind) *QueryFilter {
	q.queries[Kind] = val
	return q
}

// SetAuthor --
func (q *QueryFilter) SetAuthor(val [32]byte) *QueryFilter {
	q.queries[Author] = val
	return q
}

// SetSince filters out events whose envelope timestamp is below val.
func (q *QueryFilter) SetSince(val int64) *QueryFilter {
	q.queries[Since] = val
	return q
}

// SetLimit caps the number of events returned. Zero means no cap.
func (q *QueryFilter) SetLimit(val int) *QueryFilter {
	q.limit = val
	return q
}

// SetOffset skips the newest val matching events.
func (q *QueryFilter) SetOffset(val int) *QueryFilter {
	q.offset = val
	return q
}

// Limit returns the configured result cap.
func (q *QueryFilter) Limit() int {
	return q.limit
}

// Offset returns the configured result skip.
func (q *QueryFilter) Offset() int {
	return q.offset
}

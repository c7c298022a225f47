package speech

// syntheticStart is the first synthetic id handed out. Caller-supplied ids
// are non-negative by contract, so negatives can never collide with them.
const syntheticStart = -2

// MarkerAllocator hands out synthetic index-mark ids from a reserved
// namespace: a strictly decreasing negative counter. Allocators live for one
// utterance, so synthetic ids are only meaningful within the request that
// produced them.
type MarkerAllocator struct {
	next int
}

func NewMarkerAllocator() *MarkerAllocator {
	return &MarkerAllocator{next: syntheticStart}
}

// Next returns a fresh synthetic id.
func (a *MarkerAllocator) Next() int {
	id := a.next
	a.next--
	return id
}

// IsSynthetic reports whether an index-mark id was allocated internally
// rather than supplied by the caller.
func IsSynthetic(id int) bool { return id < 0 }

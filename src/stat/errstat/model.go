package errstat

// ErrStat is a point-in-time view of an error tracker.
type ErrStat struct {
	At       int64 `json:"at"`       // unix seconds
	Distinct int64 `json:"distinct"` // fingerprints tracked
	Retained int64 `json:"retained"` // entries still holding a report body
	Pending  int64 `json:"pending"`  // occurrences waiting for submission
}

type ErrType string

const (
	ErrTypeDistinct ErrType = "distinct"
	ErrTypeRetained ErrType = "retained"
	ErrTypePending  ErrType = "pending"
)

func (r ErrType) String() string {
	return string(r)
}

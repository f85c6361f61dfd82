package gorstat

// GoroutineStat counts the goroutines of the process and those started by
// tracking pools.
type GoroutineStat struct {
	At      int64            `json:"at"`
	Count   int64            `json:"count"`   // all goroutines
	Tracked int64            `json:"tracked"` // goroutines started by a tracking pool
	Pools   map[string]int64 `json:"pools"`   // tracked goroutines per pool
}

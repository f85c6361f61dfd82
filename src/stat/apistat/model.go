package apistat

// ApiLatencyStat aggregates the submissions made to the collector API.
type ApiLatencyStat struct {
	Count        int64  `json:"count"`            // total attempts
	SumLatency   int64  `json:"sumLatency"`       // total latency ms
	MaxLatency   int64  `json:"maxLatency"`       // max latency ms
	Count2xx     int64  `json:"count2xx"`
	Count3xx     int64  `json:"count3xx"`
	Count4xx     int64  `json:"count4xx"`
	Count5xx     int64  `json:"count5xx"`
	CountOther   int64  `json:"countOther"`       // unexpected status codes
	CountFailed  int64  `json:"countFailed"`      // no response: timeouts, refused connections
	PayloadBytes int64  `json:"payloadBytes"`     // gzip bytes sent
	LastStatus   int    `json:"lastStatus,omitempty"`
	LastAt       int64  `json:"lastAt,omitempty"` // unix seconds
	LastFailure  string `json:"lastFailure,omitempty"`
}

// AvgLatency returns the mean latency in ms.
func (s ApiLatencyStat) AvgLatency() int64 {
	if s.Count == 0 {
		return 0
	}
	return s.SumLatency / s.Count
}

type StatusClass string

const (
	Class2xx    StatusClass = "2xx"
	Class3xx    StatusClass = "3xx"
	Class4xx    StatusClass = "4xx"
	Class5xx    StatusClass = "5xx"
	ClassOther  StatusClass = "other"
	ClassFailed StatusClass = "failed"
)

func (c StatusClass) String() string {
	return string(c)
}

// ClassOf maps an HTTP status code to its class.
func ClassOf(status int) StatusClass {
	switch {
	case status >= 200 && status < 300:
		return Class2xx
	case status >= 300 && status < 400:
		return Class3xx
	case status >= 400 && status < 500:
		return Class4xx
	case status >= 500 && status < 600:
		return Class5xx
	}
	return ClassOther
}

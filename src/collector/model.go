package collector

import (
	"encoding/json"
)

// Submission is one payload received by the collector.
type Submission struct {
	ID         string          `json:"id"`
	At         int64           `json:"at"` // unix seconds
	Identifier string          `json:"identifier"`
	Token      string          `json:"token"`
	Size       int             `json:"size"`   // compressed bytes
	Errors     int64           `json:"errors"` // distinct error entries
	Data       json.RawMessage `json:"data"`
}

// StatusReq forces the status of the next responses. Zero restores normal
// answers.
type StatusReq struct {
	Status int `json:"status"`
}

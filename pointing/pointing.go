// Package pointing passes the mount pointing record between the
// pre-observation scripts and the analysis.  The record is written by the
// scheduler's pre-job before a cube is captured; the analysis consumes
// the airmass and carries the rest through to the seeing log.
package pointing

import (
	"encoding/json"
	"os"
)

// Status is the pointing record for one observation.  Angles are degrees,
// RA and HA are hours.
type Status struct {
	Target  string  `json:"target"`
	Az      float64 `json:"az"`
	El      float64 `json:"el"`
	RA      float64 `json:"ra"`
	Dec     float64 `json:"dec"`
	HA      float64 `json:"ha"`
	Airmass float64 `json:"airmass"`
}

// Read loads a pointing record from path.
func Read(path string) (Status, error) {
	var s Status
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(b, &s)
	return s, err
}

// Write stores a pointing record at path.
func Write(path string, s Status) error {
	b, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

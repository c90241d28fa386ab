// Package seeinglog records seeing results durably: an append-only CSV
// log of every accepted observation, a small status file with the latest
// value, and archival of the raw cube for good and bad runs.
package seeinglog

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// header is written once, when the log file is first created
const header = "time,target,seeing,airmass,azimuth,exptime\n"

// sast is the observatory local zone used in the status file.
var sast = time.FixedZone("SAST", 2*3600)

// Record is one row of the seeing log.
type Record struct {
	Time    time.Time
	Target  string
	Seeing  float64 // arcsec
	Airmass float64
	Azimuth float64 // degrees
	ExpTime float64 // seconds
}

// Logger appends records to a CSV seeing log.  It is not thread safe.
type Logger struct {
	// Path is the CSV file location
	Path string
}

// Append writes one record, creating the file with its header first if
// needed.
func (l *Logger) Append(r Record) error {
	if _, err := os.Stat(l.Path); os.IsNotExist(err) {
		if err := os.WriteFile(l.Path, []byte(header), 0644); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s,%s,%.3f,%.3f,%.1f,%g\n",
		r.Time.UTC().Format("2006-01-02T15:04:05.000"),
		r.Target, r.Seeing, r.Airmass, r.Azimuth, r.ExpTime)
	return err
}

// WriteStatus writes the latest seeing value and its observation time to
// the status file consumed by the site seeing display.
func WriteStatus(path string, seeing float64, tobs time.Time) error {
	content := fmt.Sprintf("%.2f\n%s\n", seeing, tobs.In(sast).Format("2006-01-02T15:04:05"))
	return os.WriteFile(path, []byte(content), 0644)
}

// Usable decides whether a result belongs in the log: the seeing must be
// finite and plausible, and the cube must have tracked cleanly enough.
// Rejected cubes are archived raw for inspection instead.
func Usable(seeing float64, nbad, maxBad int) bool {
	if math.IsNaN(seeing) || math.IsInf(seeing, 0) {
		return false
	}
	return seeing < 10.0 && nbad < maxBad
}

// Archive renames the analyzed cube to last_good_seeing.ser or
// last_bad_seeing.ser beside the original.
func Archive(serPath string, good bool) error {
	name := "last_bad_seeing.ser"
	if good {
		name = "last_good_seeing.ser"
	}
	return os.Rename(serPath, filepath.Join(filepath.Dir(serPath), name))
}

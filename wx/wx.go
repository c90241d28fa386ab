// Package wx gathers current weather conditions from the site weather
// stations and evaluates them against the operational limits for opening
// the enclosure.
package wx

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"
)

// Limits are the operational weather limits.  Humidity is percent
// relative humidity, Wind is km/h.
type Limits struct {
	Humidity float64 `yaml:"humidity"`
	Wind     float64 `yaml:"wind"`
}

// DefaultLimits are the timDIMM operational limits.
var DefaultLimits = Limits{Humidity: 90, Wind: 45}

// maxAge is how stale station data may be before it is distrusted.
const maxAge = 10 * time.Minute

// Conditions is one station's report.
type Conditions struct {
	Station      string
	Timestamp    time.Time
	Humidity     float64 // percent
	Wind         float64 // km/h
	HumidityWarn bool
	WindWarn     bool

	// Valid is false when the report is missing, malformed, or stale
	Valid bool
}

// Checks is the outcome of evaluating conditions against limits; a false
// field means that quantity is out of limits or unknown.
type Checks struct {
	Humidity bool
	Wind     bool
}

// Safe reports whether every check passed.
func (c Checks) Safe() bool { return c.Humidity && c.Wind }

// Evaluate compares one station report against the limits.  Invalid
// reports fail every check.
func Evaluate(c Conditions, lim Limits) Checks {
	if !c.Valid {
		return Checks{}
	}
	return Checks{
		Humidity: c.Humidity < lim.Humidity && !c.HumidityWarn,
		Wind:     c.Wind < lim.Wind && !c.WindWarn,
	}
}

// Station fetches current conditions from one weather data source.
type Station interface {
	Name() string
	Fetch() (Conditions, error)
}

// Current polls every station once and evaluates the limits against the
// first valid report, matching the operational practice of trusting the
// primary station and keeping the rest for the log.
func Current(stations []Station, lim Limits) (map[string]Conditions, Checks) {
	all := make(map[string]Conditions, len(stations))
	var checks Checks
	evaluated := false
	for _, st := range stations {
		c, err := st.Fetch()
		if err != nil {
			log.Printf("wx: %s: %v", st.Name(), err)
			c = Conditions{Station: st.Name()}
		}
		all[st.Name()] = c
		if c.Valid && !evaluated {
			checks = Evaluate(c, lim)
			evaluated = true
		}
	}
	return all, checks
}

// Monitor polls the stations in a loop paced by r, invoking fn with each
// report and its check outcome.  It returns when ctx is canceled.
func Monitor(ctx context.Context, stations []Station, lim Limits, r *rate.Limiter, fn func(Conditions, Checks)) error {
	for {
		if err := r.Wait(ctx); err != nil {
			return err
		}
		for _, st := range stations {
			c, err := st.Fetch()
			if err != nil {
				log.Printf("wx: %s: %v", st.Name(), err)
				continue
			}
			fn(c, Evaluate(c, lim))
		}
	}
}

package wx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
)

// SAAOIOURL is the SAAO IO weather information system endpoint.
const SAAOIOURL = "https://io.saao.ac.za/IO/current_weather.json"

// SAAOIO reads the SAAO IO weather information system, the primary
// station for operational decisions.
type SAAOIO struct {
	URL    string
	Client *http.Client
}

// NewSAAOIO returns a client for the production endpoint.
func NewSAAOIO() SAAOIO {
	return SAAOIO{URL: SAAOIOURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Name implements Station.
func (s SAAOIO) Name() string { return "SAAO-IO" }

// Fetch implements Station.  The IO clock reports local time (UTC+2)
// without a zone label, so staleness is judged against that offset.
func (s SAAOIO) Fetch() (Conditions, error) {
	raw := map[string]interface{}{}
	op := func() error {
		resp, err := s.Client.Get(s.URL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("wx: SAAO IO returned %s", resp.Status)
		}
		return json.NewDecoder(resp.Body).Decode(&raw)
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, bo); err != nil {
		return Conditions{Station: s.Name()}, err
	}

	c := Conditions{Station: s.Name()}
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", asString(raw["timestamp"]), time.FixedZone("SAST", 2*3600))
	if err != nil {
		return c, fmt.Errorf("wx: SAAO IO timestamp: %v", err)
	}
	c.Timestamp = ts
	c.Humidity = asFloat(raw["humidity"])
	c.Wind = asFloat(raw["wind"])
	c.HumidityWarn = asBool(raw["humidity_warn"])
	c.WindWarn = asBool(raw["wind_warn"])

	age := time.Since(ts)
	if age < 0 {
		age = -age
	}
	c.Valid = age <= maxAge
	return c, nil
}

// the IO feed is loosely typed; numbers and flags arrive as strings,
// floats, or ints depending on the backend

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	case json.Number:
		f, _ := x.Float64()
		return f
	}
	return 0
}

func asBool(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	}
	return false
}

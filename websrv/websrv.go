// Package websrv serves a read-only status page for the timDIMM: the
// latest seeing measurement and the enclosure state.  Control stays with
// the scheduler scripts; this surface only reports.
package websrv

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-yaml/yaml"
)

// Config holds the listen address and the files the server reports from.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"addr"`

	// SeeingCSV is the append-only seeing log
	SeeingCSV string `yaml:"seeing_csv"`

	// OxWagonStatus is the JSON status cache written by the enclosure
	// monitor
	OxWagonStatus string `yaml:"ox_wagon_status"`
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// SeeingStatus is the latest row of the seeing log.
type SeeingStatus struct {
	Time    string  `json:"time"`
	Target  string  `json:"target"`
	Seeing  float64 `json:"seeing"`
	Airmass float64 `json:"airmass"`
	Azimuth float64 `json:"azimuth"`
	ExpTime float64 `json:"exptime"`
}

// BuildMux assembles the status routes.
func BuildMux(cfg Config) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(htmlPage))
	})
	root.Get("/seeing", func(w http.ResponseWriter, r *http.Request) {
		st, err := LatestSeeing(cfg.SeeingCSV)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	})
	root.Get("/oxwagon", func(w http.ResponseWriter, r *http.Request) {
		f, err := os.Open(cfg.OxWagonStatus)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/json")
		io.Copy(w, f)
	})
	return root
}

// LatestSeeing reads the last row of the seeing log.
func LatestSeeing(path string) (SeeingStatus, error) {
	var st SeeingStatus
	f, err := os.Open(path)
	if err != nil {
		return st, err
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return st, err
	}
	if len(rows) < 2 {
		return st, io.EOF
	}
	last := rows[len(rows)-1]
	st.Time = last[0]
	st.Target = last[1]
	st.Seeing, _ = strconv.ParseFloat(last[2], 64)
	st.Airmass, _ = strconv.ParseFloat(last[3], 64)
	st.Azimuth, _ = strconv.ParseFloat(last[4], 64)
	st.ExpTime, _ = strconv.ParseFloat(last[5], 64)
	return st, nil
}

const htmlPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>timDIMM Status</title>
<style>
  body { font-family: monospace; background: #1a1a2e; color: #e0e0e0;
         display: flex; flex-direction: column; align-items: center; padding: 1.5rem; }
  h1 { color: #c8d6e5; }
  .card { background: #16213e; border-radius: 8px; padding: 1.2rem;
          width: 100%; max-width: 820px; margin-bottom: 1rem; }
  pre { white-space: pre-wrap; }
</style>
</head>
<body>
<h1>timDIMM</h1>
<div class="card"><h2>Seeing</h2><pre id="seeing">loading...</pre></div>
<div class="card"><h2>Ox Wagon</h2><pre id="oxwagon">loading...</pre></div>
<script>
async function refresh() {
  for (const id of ["seeing", "oxwagon"]) {
    try {
      const r = await fetch("/" + id);
      document.getElementById(id).textContent = JSON.stringify(await r.json(), null, 2);
    } catch (e) {
      document.getElementById(id).textContent = "unavailable";
    }
  }
}
refresh();
setInterval(refresh, 10000);
</script>
</body>
</html>
`

package websrv

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = `time,target,seeing,airmass,azimuth,exptime
2026-08-25T20:59:01.000,alpha Cen,1.100,1.200,180.0,0.002
2026-08-25T21:03:07.500,alpha Cen,1.234,1.150,203.4,0.002
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seeing.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLatestSeeing(t *testing.T) {
	st, err := LatestSeeing(writeSample(t))
	if err != nil {
		t.Fatal(err)
	}
	if st.Seeing != 1.234 || st.Target != "alpha Cen" {
		t.Errorf("got %+v, want the last row", st)
	}
	if st.Time != "2026-08-25T21:03:07.500" {
		t.Errorf("time = %q", st.Time)
	}
}

func TestLatestSeeingEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeing.csv")
	if err := os.WriteFile(path, []byte("time,target,seeing,airmass,azimuth,exptime\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LatestSeeing(path); err == nil {
		t.Error("expected an error for a header-only log")
	}
}

func TestSeeingRoute(t *testing.T) {
	mux := BuildMux(Config{SeeingCSV: writeSample(t)})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/seeing")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var st SeeingStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Seeing != 1.234 {
		t.Errorf("seeing = %v, want 1.234", st.Seeing)
	}
}

func TestOxWagonRouteMissingFile(t *testing.T) {
	mux := BuildMux(Config{OxWagonStatus: filepath.Join(t.TempDir(), "none.json")})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/oxwagon")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", resp.StatusCode)
	}
}

func TestIndexPage(t *testing.T) {
	mux := BuildMux(Config{})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("content type %q", ct)
	}
}

func TestLoadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "websrv.yml")
	if err := os.WriteFile(path, []byte("addr: \":9000\"\nseeing_csv: s.csv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadYaml(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9000" || cfg.SeeingCSV != "s.csv" {
		t.Errorf("got %+v", cfg)
	}
}

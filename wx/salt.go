package wx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// SALTURL is the SALT telescope control system status page.
const SALTURL = "http://192.168.4.6/xml/salt-tcs-icd.xml"

// saltValidityOK is the BMS external-conditions validity word when every
// sensor reading is trustworthy.
const saltValidityOK = 511

// SALT reads the neighboring SALT telescope's building management system
// export, used as a secondary weather source.
type SALT struct {
	URL    string
	Client *http.Client
}

// NewSALT returns a client for the production endpoint.
func NewSALT() SALT {
	return SALT{URL: SALTURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Name implements Station.
func (s SALT) Name() string { return "SALT" }

// the TCS export is LabVIEW-generated XML: Cluster elements holding typed
// entries, each with Name and Val children; EW entries index a Choice list

type saltEntry struct {
	Name   string   `xml:"Name"`
	Val    string   `xml:"Val"`
	Choice []string `xml:"Choice"`
}

type saltCluster struct {
	Name    string      `xml:"Name"`
	DBL     []saltEntry `xml:"DBL"`
	U32     []saltEntry `xml:"U32"`
	I32     []saltEntry `xml:"I32"`
	EW      []saltEntry `xml:"EW"`
	String  []saltEntry `xml:"String"`
	Boolean []saltEntry `xml:"Boolean"`
}

// Fetch implements Station.
func (s SALT) Fetch() (Conditions, error) {
	var body []byte
	op := func() error {
		resp, err := s.Client.Get(s.URL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("wx: SALT TCS returned %s", resp.Status)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, bo); err != nil {
		return Conditions{Station: s.Name()}, err
	}
	return parseSALT(body)
}

// parseSALT flattens the cluster tree into cluster__entry keys and pulls
// out the external conditions.
func parseSALT(body []byte) (Conditions, error) {
	c := Conditions{Station: "SALT"}
	flat, err := flattenSALT(body)
	if err != nil {
		return c, err
	}
	validity, err := strconv.Atoi(flat["bms_external_conditions__validity"])
	if err != nil || validity != saltValidityOK {
		// BMS says its own sensors are suspect; report but do not trust
		return c, nil
	}
	c.Humidity, _ = strconv.ParseFloat(flat["bms_external_conditions__Rel_Humidity"], 64)
	windMS, _ := strconv.ParseFloat(flat["bms_external_conditions__Wind_mag_10m"], 64)
	c.Wind = windMS * 3.6

	stamp := strings.ReplaceAll(flat["tcs_xml_time_info__timestamp"], "/", "-")
	ts, err := time.ParseInLocation("2006-01-02_15:04:05", stamp, time.FixedZone("SAST", 2*3600))
	if err != nil {
		return c, fmt.Errorf("wx: SALT timestamp %q: %v", stamp, err)
	}
	c.Timestamp = ts
	age := time.Since(ts)
	if age < 0 {
		age = -age
	}
	c.Valid = age <= maxAge
	return c, nil
}

func flattenSALT(body []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	// the feed is latin-1; every field we care about is plain ASCII
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	flat := map[string]string{}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wx: SALT xml: %v", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Cluster" {
			continue
		}
		var cl saltCluster
		if err := dec.DecodeElement(&cl, &start); err != nil {
			return nil, fmt.Errorf("wx: SALT xml: %v", err)
		}
		prefix := underscore(cl.Name)
		for _, groups := range [][]saltEntry{cl.DBL, cl.U32, cl.I32, cl.String, cl.Boolean} {
			for _, e := range groups {
				flat[prefix+"__"+underscore(e.Name)] = underscore(e.Val)
			}
		}
		for _, e := range cl.EW {
			idx, err := strconv.Atoi(strings.TrimSpace(e.Val))
			if err == nil && idx >= 0 && idx < len(e.Choice) {
				flat[prefix+"__"+underscore(e.Name)] = underscore(e.Choice[idx])
			}
		}
	}
	return flat, nil
}

// underscore collapses whitespace runs to single underscores, matching
// the key convention used by the operations scripts.
func underscore(s string) string {
	return strings.Join(strings.Fields(s), "_")
}

package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.com/saao/timdimm/dimm"
	"github.com/saao/timdimm/pointing"
	"github.com/saao/timdimm/seeinglog"
	"github.com/saao/timdimm/ser"
	"github.com/saao/timdimm/websrv"
	"github.com/saao/timdimm/wx"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "timdimm.yml"
	k              = koanf.New(".")
)

// Config holds the file locations and analysis parameters for the CLI.
type Config struct {
	// Cube is the default SER file to analyze
	Cube string `koanf:"cube"`

	// Mask selects the physical mask preset: timdimm, massdimm, or hdimm
	Mask string `koanf:"mask"`

	// PointingStatus is the JSON record written by the scheduler pre-job
	PointingStatus string `koanf:"pointing_status"`

	// SeeingCSV and SeeingTxt are the durable outputs
	SeeingCSV string `koanf:"seeing_csv"`
	SeeingTxt string `koanf:"seeing_txt"`

	// ApertureFITS is where the reference detection image is saved
	ApertureFITS string `koanf:"aperture_fits"`

	// MaxBad is the bad-frame count above which a run is archived
	// instead of logged
	MaxBad int `koanf:"max_bad"`

	// ExpTime is the capture exposure time recorded in the log row
	ExpTime float64 `koanf:"exptime"`

	// Archive moves the analyzed cube to last_good/last_bad_seeing.ser
	Archive bool `koanf:"archive"`

	// Addr is the status server listen address
	Addr string `koanf:"addr"`

	// OxWagonStatus is the enclosure status cache served by the status
	// server
	OxWagonStatus string `koanf:"ox_wagon_status"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Cube:           "seeing.ser",
		Mask:           "timdimm",
		PointingStatus: "pointing_status.json",
		SeeingCSV:      "seeing.csv",
		SeeingTxt:      "seeing.txt",
		ApertureFITS:   "apertures.fits",
		MaxBad:         20,
		Addr:           ":8080",
		OxWagonStatus:  "ox_wagon_status.json"}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `timdimm analyzes DIMM/HDIMM video cubes and records the atmospheric seeing

Usage:
	timdimm <command> [file.ser]

Commands:
	analyze    measure seeing from a 2-aperture DIMM cube
	hdimm      measure seeing from a 3-aperture Hartmann DIMM cube
	wx         print the current weather checks
	serve      run the status web server
	conf
	mkconf
	help
	version`
	fmt.Println(str)
}

func help() {
	str := `timdimm is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

The analyze and hdimm commands read the cube named on the command line, or
the configured default.  The airmass is taken from the pointing status
file written by the scheduler pre-job; without it the seeing is reported
at the observed elevation rather than the zenith.

Mask presets and matching "mask" fields, case insensitive:
- timDIMM mask, 200 mm baseline, 50 mm apertures: "timdimm"
- MASS-DIMM mask, 170 mm baseline, 70 mm apertures: "massdimm"
- 3-aperture Hartmann mask, 143 mm baseline, 76.2 mm apertures: "hdimm"`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("timdimm version %v\n", Version)
}

func maskFor(name string, napertures int) dimm.MaskConfig {
	switch strings.ToLower(name) {
	case "timdimm":
		return dimm.TimDIMM()
	case "massdimm":
		return dimm.MASSDIMM()
	case "hdimm":
		return dimm.HDIMM()
	case "":
		if napertures == 3 {
			return dimm.HDIMM()
		}
		return dimm.TimDIMM()
	default:
		log.Fatal("mask ", name, " not understood")
		return dimm.MaskConfig{}
	}
}

func analyze(napertures int) {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	cubePath := c.Cube
	if len(os.Args) > 2 {
		cubePath = os.Args[2]
	}
	if napertures == 3 && c.Mask == "timdimm" {
		// the flat default only makes sense for 2 apertures
		c.Mask = "hdimm"
	}

	pt, err := pointing.Read(c.PointingStatus)
	if err != nil {
		log.Println("no pointing status, assuming zenith:", err)
		pt = pointing.Status{Airmass: 1}
	}

	spincfg := yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " analyzing " + cubePath,
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	}
	spinner, err := yacspin.New(spincfg)
	if err == nil {
		spinner.Start()
	}

	cube, err := ser.Load(cubePath)
	if err != nil {
		if spinner != nil {
			spinner.StopFail()
		}
		log.Fatal(err)
	}
	if len(cube.FrameTimes) == 0 {
		log.Println("cube has no timestamp trailer; observation time will be the wall clock")
	}

	res, err := dimm.AnalyzeCube(cube, dimm.Config{
		NApertures: napertures,
		Mask:       maskFor(c.Mask, napertures),
		Airmass:    pt.Airmass,
	})
	if err != nil {
		if spinner != nil {
			spinner.StopFail()
		}
		if c.Archive {
			seeinglog.Archive(cubePath, false)
		}
		log.Fatal(err)
	}
	if spinner != nil {
		spinner.Stop()
	}

	if napertures == 2 {
		fmt.Printf("Seeing: %.2f arcsec\n", res.Seeing)
	} else {
		fmt.Printf("Average Seeing: %.2f arcsec\n", res.Seeing)
		for i, s := range res.PerBaseline {
			fmt.Printf("    Baseline %d: %.2f arcsec\n", i+1, s)
		}
	}
	fmt.Printf("         N bad: %d\n", res.NBad)

	if f, err := os.Create(c.ApertureFITS); err == nil {
		cards := make([]fitsio.Card, 0, 2*len(res.Apertures))
		for i, ap := range res.Apertures {
			cards = append(cards,
				fitsio.Card{Name: fmt.Sprintf("APX%d", i+1), Value: ap.X, Comment: "aperture x centroid [px]"},
				fitsio.Card{Name: fmt.Sprintf("APY%d", i+1), Value: ap.Y, Comment: "aperture y centroid [px]"})
		}
		if err := ser.WriteImageFITS(f, res.Reference, cards); err != nil {
			log.Println("writing aperture image:", err)
		}
		f.Close()
	}

	if !seeinglog.Usable(res.Seeing, res.NBad, c.MaxBad) {
		log.Println("result not usable, not logging it")
		if c.Archive {
			seeinglog.Archive(cubePath, false)
		}
		return
	}
	lg := seeinglog.Logger{Path: c.SeeingCSV}
	err = lg.Append(seeinglog.Record{
		Time:    time.Now().UTC(),
		Target:  pt.Target,
		Seeing:  res.Seeing,
		Airmass: pt.Airmass,
		Azimuth: pt.Az,
		ExpTime: c.ExpTime,
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := seeinglog.WriteStatus(c.SeeingTxt, res.Seeing, res.Timestamp); err != nil {
		log.Fatal(err)
	}
	if c.Archive {
		seeinglog.Archive(cubePath, true)
	}
}

func weather() {
	stations := []wx.Station{wx.NewSAAOIO(), wx.NewSALT()}
	all, checks := wx.Current(stations, wx.DefaultLimits)
	fmt.Println("Weather Checks:")
	fmt.Printf("\t%-20s: %v\n", "humidity", checks.Humidity)
	fmt.Printf("\t%-20s: %v\n", "wind", checks.Wind)
	for name, c := range all {
		fmt.Printf("%s: valid=%v humidity=%.1f%% wind=%.1f km/h at %v\n",
			name, c.Valid, c.Humidity, c.Wind, c.Timestamp)
	}
}

func serve() {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	mux := websrv.BuildMux(websrv.Config{
		Addr:          c.Addr,
		SeeingCSV:     c.SeeingCSV,
		OxWagonStatus: c.OxWagonStatus,
	})
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "analyze":
		analyze(2)
	case "hdimm":
		analyze(3)
	case "wx":
		weather()
	case "serve":
		serve()
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}

// Package oxwagon controls the ox wagon enclosure over RS-232.
//
// The enclosure PLC speaks an ASCII register protocol: a write to the
// control registers is framed as a ':' header, hex payload, additive
// two's-complement checksum, and newline.  Status is read back from
// registers 0x106E and 0x106F and decoded through fixed bit maps.
package oxwagon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// cmdHeader addresses a 4-register write starting at 0x1064
const cmdHeader = ":01101064000408"

// statusQuery reads 5 registers starting at 0x106E
const statusQuery = ":0103106E000579\n"

// ErrUnknownCommand is returned for a command name not in Commands.
var ErrUnknownCommand = errors.New("oxwagon: unknown command")

// Commands maps command names to their control register words.  The last
// nibble of CLOSE keeps the telescope powered while the enclosure is
// closed.
var Commands = map[string]string{
	"RESET":           "2C008000",
	"OPEN":            "10428C02",
	"CLOSE":           "14218000",
	"MONITOR":         "14228C00",
	"SCOPE":           "00000002",
	"LIGHT":           "00000001",
	"OFF":             "00000000",
	"CLOSE_SCOPE_ON":  "14218002",
	"CLOSE_SCOPE_OFF": "14218000",
	"RESET_SCOPE_ON":  "2C008002",
	"RESET_SCOPE_OFF": "2C008000",
}

// reg106EMap names the bits of the first status register, MSB first.
// Empty entries are unused bits.
var reg106EMap = [16]string{
	"Manual Close Drop Roof",
	"Manual Open Drop Roof",
	"Manual Close Slide Roof",
	"Manual Open Slide Roof",
	"Forced Rain Closure",
	"Raining",
	"",
	"Drop Roof Slowdown",
	"Drop Roof Moving",
	"Drop Roof Opened",
	"Drop Roof Closed",
	"Remote Enabled",
	"Slide Roof Slowdown",
	"Slide Roof Moving",
	"Slide Roof Fully Opened",
	"Slide Roof Closed",
}

// reg106FMap names the bits of the second status register, MSB first.
var reg106FMap = [16]string{
	"Watchdog Tripped",
	"Drop Roof Inverter Fault",
	"Slide roof Inverter Fault",
	"",
	"",
	"Telescope Powered On",
	"Closed due to Power Failure",
	"",
	"",
	"Emergency Stop",
	"Power Failure",
	"Proximity Close Drop Roof",
	"Proximity Open Drop Roof",
	"Proximity Close Slide Roof",
	"Proximity Open Slide Roof",
	"Lights On",
}

// OxWagon is a handle to the enclosure PLC.  It caches the last decoded
// status per instance.
type OxWagon struct {
	conn io.ReadWriteCloser
	rdr  *bufio.Reader

	// watchDelay and pwrDelay are the watchdog and power-outage close
	// delays sent with every command, zero-padded 4-digit seconds
	watchDelay string
	pwrDelay   string

	state map[string]bool
}

func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        9600,
		Size:        7,
		Parity:      serial.ParityEven,
		StopBits:    serial.Stop1,
		ReadTimeout: 1 * time.Second,
	}
}

// New opens the serial link to the enclosure PLC.  The USB-RS232 adapter
// is flaky on enumeration, so the open is retried up to ten times.
func New(addr string) (*OxWagon, error) {
	var conn *serial.Port
	op := func() error {
		var err error
		conn, err = serial.OpenPort(makeSerConf(addr))
		return err
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 10)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return NewFromConn(conn), nil
}

// NewFromConn wraps an existing connection, e.g. a mock for testing.
func NewFromConn(conn io.ReadWriteCloser) *OxWagon {
	return &OxWagon{
		conn:       conn,
		rdr:        bufio.NewReader(conn),
		watchDelay: "0600",
		pwrDelay:   "0120",
		state:      map[string]bool{},
	}
}

// Disconnect closes the serial link.
func (o *OxWagon) Disconnect() error {
	return o.conn.Close()
}

// Checksum computes the PLC's additive two's-complement checksum over the
// hex byte pairs of frame, skipping the leading ':'.
func Checksum(frame string) (int, error) {
	body := frame[1:]
	sum := 0
	for i := 0; i+1 < len(body); i += 2 {
		v, err := strconv.ParseInt(body[i:i+2], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("oxwagon: bad hex in frame: %w", err)
		}
		sum += int(v)
	}
	return (^sum & 0xFF) + 1, nil
}

// BuildCommand frames a named command with the watchdog and power delays
// and appends the checksum.
func (o *OxWagon) BuildCommand(name string) (string, error) {
	word, ok := Commands[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	frame := cmdHeader + word + o.watchDelay + o.pwrDelay
	cs, err := Checksum(frame)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(fmt.Sprintf("%s%X\n", frame, cs)), nil
}

// Command frames and sends a named command, returning the PLC response
// line.
func (o *OxWagon) Command(name string) (string, error) {
	msg, err := o.BuildCommand(name)
	if err != nil {
		return "", err
	}
	if _, err := o.conn.Write([]byte(msg)); err != nil {
		return "", err
	}
	resp, err := o.rdr.ReadString('\n')
	return strings.TrimRight(resp, "\r\n"), err
}

// Open opens the enclosure completely with a watchdog delay of
// delaySeconds; the PLC closes on its own when the watchdog expires.
func (o *OxWagon) Open(delaySeconds int) error {
	o.watchDelay = fmt.Sprintf("%04d", delaySeconds)
	_, err := o.Command("OPEN")
	return err
}

// Close closes the enclosure.
func (o *OxWagon) Close() error {
	_, err := o.Command("CLOSE")
	return err
}

// Monitor opens the slide roof only.
func (o *OxWagon) Monitor() error {
	_, err := o.Command("MONITOR")
	return err
}

// Reset resets the PLC and clears forced closure bits.
func (o *OxWagon) Reset() error {
	_, err := o.Command("RESET")
	return err
}

// Scope powers on the telescope.
func (o *OxWagon) Scope() error {
	_, err := o.Command("SCOPE")
	return err
}

// LightOn turns on the enclosure light.
func (o *OxWagon) LightOn() error {
	_, err := o.Command("LIGHT")
	return err
}

// Status queries the status registers and decodes them into named bits.
// The decoded map is cached on the instance and returned.
func (o *OxWagon) Status() (map[string]bool, error) {
	if _, err := o.conn.Write([]byte(statusQuery)); err != nil {
		return nil, err
	}
	resp, err := o.rdr.ReadString('\n')
	if err != nil && len(resp) == 0 {
		return nil, err
	}
	if len(resp) < 15 {
		return nil, fmt.Errorf("oxwagon: short status response %q", resp)
	}
	bitsE, err := hexBits(resp[7:11])
	if err != nil {
		return nil, err
	}
	bitsF, err := hexBits(resp[11:15])
	if err != nil {
		return nil, err
	}
	for i, name := range reg106EMap {
		if name != "" {
			o.state[name] = bitsE[i]
		}
	}
	for i, name := range reg106FMap {
		if name != "" {
			o.state[name] = bitsF[i]
		}
	}
	return o.state, nil
}

// hexBits expands a 4 character hex register into 16 bits, MSB first.
func hexBits(s string) ([16]bool, error) {
	var bits [16]bool
	for i, c := range s {
		v, err := strconv.ParseInt(string(c), 16, 32)
		if err != nil {
			return bits, fmt.Errorf("oxwagon: bad hex in status %q: %w", s, err)
		}
		for b := 0; b < 4; b++ {
			bits[i*4+b] = v&(1<<(3-b)) != 0
		}
	}
	return bits, nil
}

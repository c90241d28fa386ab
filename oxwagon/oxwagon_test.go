package oxwagon

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func ExampleChecksum() {
	cs, _ := Checksum(":0103106E0005")
	fmt.Printf("%X\n", cs)
	// Output: 79
}

// mockConn records writes and plays back a canned response.
type mockConn struct {
	wrote strings.Builder
	rd    *strings.Reader
}

func newMockConn(response string) *mockConn {
	return &mockConn{rd: strings.NewReader(response)}
}

func (m *mockConn) Read(p []byte) (int, error)  { return m.rd.Read(p) }
func (m *mockConn) Write(p []byte) (int, error) { return m.wrote.Write(p) }
func (m *mockConn) Close() error                { return nil }

func TestChecksum(t *testing.T) {
	// the status query frame carries a precomputed 0x79
	cs, err := Checksum(":0103106E0005")
	if err != nil {
		t.Fatal(err)
	}
	if cs != 0x79 {
		t.Errorf("checksum = %#02x, want 0x79", cs)
	}
}

func TestChecksumBadHex(t *testing.T) {
	if _, err := Checksum(":zz"); err == nil {
		t.Error("expected an error for non-hex frame")
	}
}

func TestBuildCommand(t *testing.T) {
	ow := NewFromConn(newMockConn(""))
	cases := []struct {
		name string
		want string
	}{
		{"OPEN", ":0110106400040810428C020600012068\n"},
		{"CLOSE", ":01101064000408142180000600012093\n"},
		{"RESET", ":011010640004082C008000060001209C\n"},
		{"MONITOR", ":0110106400040814228C000600012086\n"},
	}
	for _, c := range cases {
		got, err := ow.BuildCommand(c.name)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestBuildCommandUnknown(t *testing.T) {
	ow := NewFromConn(newMockConn(""))
	if _, err := ow.BuildCommand("LAUNCH"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("got %v, want ErrUnknownCommand", err)
	}
}

func TestOpenSetsWatchdog(t *testing.T) {
	conn := newMockConn(":ok\n")
	ow := NewFromConn(conn)
	if err := ow.Open(720); err != nil {
		t.Fatal(err)
	}
	sent := conn.wrote.String()
	if !strings.Contains(sent, "10428C020720") {
		t.Errorf("watchdog delay not applied: sent %q", sent)
	}
}

func TestStatus(t *testing.T) {
	// registers 0x106E = 0x0031, 0x106F = 0x0400
	conn := newMockConn(":01030400310400C3\r\n")
	ow := NewFromConn(conn)
	state, err := ow.Status()
	if err != nil {
		t.Fatal(err)
	}
	if conn.wrote.String() != statusQuery {
		t.Errorf("sent %q, want the status query", conn.wrote.String())
	}
	wantTrue := []string{"Drop Roof Closed", "Remote Enabled", "Slide Roof Closed", "Telescope Powered On"}
	for _, name := range wantTrue {
		if !state[name] {
			t.Errorf("%q not set", name)
		}
	}
	wantFalse := []string{"Raining", "Drop Roof Moving", "Emergency Stop", "Lights On"}
	for _, name := range wantFalse {
		if state[name] {
			t.Errorf("%q set unexpectedly", name)
		}
	}
}

func TestStatusShortResponse(t *testing.T) {
	ow := NewFromConn(newMockConn(":0103\n"))
	if _, err := ow.Status(); err == nil {
		t.Error("expected an error for a short status response")
	}
}

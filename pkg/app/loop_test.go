package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/micromint/Simple-DAP/pkg/pins"
	"github.com/micromint/Simple-DAP/pkg/port"
	"github.com/micromint/Simple-DAP/pkg/raspberry"
	"github.com/micromint/Simple-DAP/pkg/swj"

	"github.com/womat/debug"
)

func TestMain(m *testing.M) {
	debug.SetDebug(os.Stderr, debug.Standard)
	os.Exit(m.Run())
}

// trace records calls in order with a virtual time.
type trace struct {
	now    time.Duration
	events []string
}

func (t *trace) add(format string, args ...interface{}) {
	t.events = append(t.events, fmt.Sprintf("%v "+format, append([]interface{}{t.now}, args...)...))
}

func (t *trace) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.now += d
	return nil
}

type fakeLeds struct{ t *trace }

func (l fakeLeds) SetConnected(on bool) { l.t.add("connected %v", on) }
func (l fakeLeds) SetRunning(on bool)   { l.t.add("running %v", on) }

type fakeUSB struct {
	t *trace
	// polls is the number of IsConfigured calls before enumeration
	polls   int
	initErr error
}

func (u *fakeUSB) Initialize(ctx context.Context) error {
	u.t.add("usb initialize")
	return u.initErr
}

func (u *fakeUSB) Connect(on bool) error {
	u.t.add("usb connect %v", on)
	return nil
}

func (u *fakeUSB) IsConfigured() bool {
	if u.polls > 0 {
		u.polls--
		return false
	}
	return true
}

// quanta services a fixed number of iterations, then cancels.
type quanta struct {
	t      *trace
	name   string
	work   []bool
	err    error
	cancel context.CancelFunc
	calls  int
}

func (q *quanta) Service(ctx context.Context) (bool, error) {
	q.calls++
	if len(q.work) == 0 {
		q.cancel()
		return false, nil
	}
	ok := q.work[0]
	q.work = q.work[1:]
	q.t.add("%s %v", q.name, ok)
	return ok, q.err
}

type fakePort struct{ t *trace }

func (p fakePort) Setup()                   { p.t.add("port setup") }
func (p fakePort) Configure(mode port.Mode) { p.t.add("port %v", mode) }

func TestBootSequence(t *testing.T) {
	tr := &trace{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &quanta{t: tr, name: "dap", work: []bool{true, false}, cancel: cancel}
	l := &Loop{
		Port:      fakePort{tr},
		Indicator: fakeLeds{tr},
		USB:       &fakeUSB{t: tr, polls: 3},
		Services:  []Servicer{svc},
		Poll:      10 * time.Millisecond,
		Idle:      time.Millisecond,
		Blink:     500 * time.Millisecond,
		sleep:     tr.sleep,
	}

	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	want := []string{
		"0s port setup",
		"0s connected false",
		"0s running false",
		"0s usb initialize",
		"0s usb connect false",
		"0s usb connect true",
		// three polls of 10ms, then the blink
		"30ms connected true",
		"30ms running true",
		"530ms connected false",
		"530ms running false",
		"530ms dap true",
		"530ms dap false",
	}
	if len(tr.events) != len(want) {
		t.Fatalf("got events\n%q\nwant\n%q", tr.events, want)
	}
	for i := range want {
		if tr.events[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, tr.events[i], want[i])
		}
	}

	// the idle pause follows the iteration without work
	if tr.now != 531*time.Millisecond {
		t.Errorf("expected one idle pause, now %v", tr.now)
	}
	if l.State() != Stopped || l.Iterations() != 3 {
		t.Errorf("unexpected state %v, iterations %v", l.State(), l.Iterations())
	}
}

func TestBootPort(t *testing.T) {
	sim := raspberry.NewSim()
	board := pins.Board{Clock: 11, Data: 25, SecondaryOut: 10, SecondaryIn: 9, Reset: 24, PullUp: true}
	d, err := pins.New(sim, board)
	if err != nil {
		t.Fatal(err)
	}
	c := swj.New(d)

	tr := &trace{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &Loop{
		Port:      c,
		Indicator: fakeLeds{tr},
		USB:       &fakeUSB{t: tr},
		BootPort:  port.SWD,
		Services:  []Servicer{&quanta{t: tr, cancel: cancel}},
		sleep:     tr.sleep,
	}
	_ = l.Run(ctx)

	if c.Mode() != port.SWD {
		t.Fatalf("expected swd, got %v", c.Mode())
	}
	for _, s := range []port.Signal{port.Clock, port.Data} {
		if !sim.IsOutput(board.Pin(s)) || d.Read(s) != port.High {
			t.Errorf("%v: expected output high", s)
		}
	}
	for _, s := range []port.Signal{port.SecondaryOut, port.SecondaryIn} {
		if sim.IsOutput(board.Pin(s)) {
			t.Errorf("%v: expected floated", s)
		}
	}
}

func TestServiceErrorsDoNotStopLoop(t *testing.T) {
	tr := &trace{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failing := &quanta{t: tr, name: "cdc", work: []bool{false, false}, err: errors.New("overrun"), cancel: cancel}
	l := &Loop{
		Port:      fakePort{tr},
		Indicator: fakeLeds{tr},
		USB:       &fakeUSB{t: tr},
		Services:  []Servicer{failing},
		sleep:     tr.sleep,
	}

	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if failing.calls != 3 || l.Errors() != 2 {
		t.Errorf("expected 3 calls and 2 errors, got %v and %v", failing.calls, l.Errors())
	}
}

func TestBothServicesEachIteration(t *testing.T) {
	tr := &trace{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dap := &quanta{t: tr, name: "dap", work: []bool{true, true, true}, cancel: cancel}
	cdc := &quanta{t: tr, name: "cdc", work: []bool{false, true, false}, cancel: cancel}
	l := &Loop{
		Port:      fakePort{tr},
		Indicator: fakeLeds{tr},
		USB:       &fakeUSB{t: tr},
		Services:  []Servicer{dap, cdc},
		sleep:     tr.sleep,
	}
	_ = l.Run(ctx)

	if dap.calls != 4 || cdc.calls != 4 {
		t.Errorf("expected both serviced every iteration, got dap %v cdc %v", dap.calls, cdc.calls)
	}
}

func TestBootFailure(t *testing.T) {
	tr := &trace{}
	l := &Loop{
		Port:      fakePort{tr},
		Indicator: fakeLeds{tr},
		USB:       &fakeUSB{t: tr, initErr: errors.New("no hal")},
		sleep:     tr.sleep,
	}

	err := l.Run(context.Background())
	if err == nil {
		t.Fatal("expected boot error")
	}
	if l.State() != Stopped {
		t.Errorf("expected stopped, got %v", l.State())
	}
}

func TestWaitEnumerationHonorsCancel(t *testing.T) {
	tr := &trace{}
	ctx, cancel := context.WithCancel(context.Background())

	usb := &fakeUSB{t: tr, polls: 1 << 30}
	l := &Loop{
		Port:      fakePort{tr},
		Indicator: fakeLeds{tr},
		USB:       usb,
		Poll:      time.Millisecond,
		sleep: func(ctx context.Context, d time.Duration) error {
			if tr.now > time.Second {
				cancel()
			}
			return tr.sleep(ctx, d)
		},
	}

	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, e := range tr.events {
		if e == "0s connected true" {
			t.Fatal("blink must not happen before enumeration")
		}
	}
}

package stream

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/womat/debug"
)

func TestMain(m *testing.M) {
	debug.SetDebug(os.Stderr, debug.Standard)
	os.Exit(m.Run())
}

// pipe is an endpoint fed by the test.
type pipe struct {
	in chan []byte

	mu   sync.Mutex
	out  bytes.Buffer
	fail int
}

func newPipe() *pipe {
	return &pipe{in: make(chan []byte, 16)}
}

func (p *pipe) Read(ctx context.Context, b []byte) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case data := <-p.in:
		n := copy(b, data)
		if n < len(data) {
			// put back the rest
			go func() { p.in <- data[n:] }()
		}
		return n, nil
	}
}

func (p *pipe) Write(ctx context.Context, b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail > 0 {
		p.fail--
		return 0, errors.New("busy")
	}
	return p.out.Write(b)
}

func (p *pipe) written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.out.Bytes()...)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWriteIsBoundedByFree(t *testing.T) {
	b := New("test", newPipe(), 16)

	if got := b.Free(); got != 16 {
		t.Fatalf("expected 16 free bytes, got %d", got)
	}
	if n := b.Write(make([]byte, 20)); n != 16 {
		t.Errorf("expected 16 bytes queued, got %d", n)
	}
	if got := b.Free(); got != 0 {
		t.Errorf("expected no free bytes, got %d", got)
	}
	if n := b.Write([]byte{1}); n != 0 {
		t.Errorf("expected full ring to take nothing, got %d", n)
	}
}

func TestReadEmptyDoesNotBlock(t *testing.T) {
	b := New("test", newPipe(), 16)

	if got := b.Available(); got != 0 {
		t.Fatalf("expected nothing available, got %d", got)
	}
	if n := b.Read(make([]byte, 8)); n != 0 {
		t.Errorf("expected 0 bytes, got %d", n)
	}
}

func TestSendReachesEndpoint(t *testing.T) {
	p := newPipe()
	p.fail = 2
	b := New("test", p, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		b.Wait()
	}()
	b.Start(ctx)

	b.Write([]byte("hello "))
	b.Write([]byte("world"))

	eventually(t, "endpoint data", func() bool { return string(p.written()) == "hello world" })
	eventually(t, "ring drained", func() bool { return b.Free() == 16 })

	if s := b.Stats(); s.Sent != 11 || s.Errors != 2 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestReceiveRespectsRingCapacity(t *testing.T) {
	p := newPipe()
	b := New("test", p, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		b.Wait()
	}()
	b.Start(ctx)

	want := make([]byte, 40)
	for i := range want {
		want[i] = byte(i)
	}
	p.in <- want

	var got []byte
	buf := make([]byte, 64)
	eventually(t, "all bytes", func() bool {
		if a := b.Available(); a > 16 {
			t.Fatalf("ring holds %d bytes, more than its capacity", a)
		}
		n := b.Read(buf)
		got = append(got, buf[:n]...)
		return len(got) == len(want)
	})

	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if s := b.Stats(); s.Received != 40 {
		t.Errorf("expected 40 bytes received, got %d", s.Received)
	}
}

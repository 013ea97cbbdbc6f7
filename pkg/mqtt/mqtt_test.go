package mqtt

import (
	"os"
	"testing"

	"github.com/womat/debug"
)

func TestMain(m *testing.M) {
	debug.SetDebug(os.Stderr, debug.Standard)
	os.Exit(m.Run())
}

func TestNoBrokerIsDisabled(t *testing.T) {
	m := New()

	if err := m.Connect("", "test"); err != nil {
		t.Fatalf("Connect without broker failed: %v", err)
	}
	if m.Enabled() {
		t.Error("expected disabled handler")
	}
	if m.Publish(Message{Topic: "/simpledap/status", Payload: []byte("{}")}) {
		t.Error("expected message to be ignored")
	}
	if err := m.Disconnect(); err != nil {
		t.Errorf("Disconnect failed: %v", err)
	}
}

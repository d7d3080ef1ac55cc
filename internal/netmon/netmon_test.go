package netmon

import (
	"context"
	"errors"
	"testing"

	"github.com/jakpal97/fitcoach/internal/testutil"
)

func TestMonitor_StartsOnline(t *testing.T) {
	logger := testutil.NewTestLogger()
	m := NewMonitor(testutil.NewMockProber(true), logger.Logger())

	if !m.Status() {
		t.Error("expected monitor to assume online until told otherwise")
	}
}

func TestMonitor_SubscriberFiresOnlyOnTransition(t *testing.T) {
	logger := testutil.NewTestLogger()
	m := NewMonitor(testutil.NewMockProber(true), logger.Logger())

	transitions := []bool{}
	m.Subscribe(func(online bool) {
		transitions = append(transitions, online)
	})

	m.SetOnline(true)  // no transition, already online
	m.SetOnline(false) // transition
	m.SetOnline(false) // no transition
	m.SetOnline(true)  // transition

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[0] != false || transitions[1] != true {
		t.Errorf("unexpected transition sequence: %v", transitions)
	}
}

func TestMonitor_Unsubscribe(t *testing.T) {
	logger := testutil.NewTestLogger()
	m := NewMonitor(testutil.NewMockProber(true), logger.Logger())

	fired := 0
	unsubscribe := m.Subscribe(func(bool) { fired++ })

	m.SetOnline(false)
	unsubscribe()
	m.SetOnline(true)

	if fired != 1 {
		t.Errorf("expected 1 notification after unsubscribe, got %d", fired)
	}
}

func TestMonitor_CheckUpdatesState(t *testing.T) {
	logger := testutil.NewTestLogger()
	prober := testutil.NewMockProber(true)
	m := NewMonitor(prober, logger.Logger())

	prober.SetOnline(false)
	online, err := m.Check(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if online || m.Status() {
		t.Error("expected check to observe offline")
	}

	prober.SetOnline(true)
	online, _ = m.Check(context.Background())
	if !online || !m.Status() {
		t.Error("expected check to observe online")
	}
}

func TestMonitor_ProbeFailureKeepsLastKnownState(t *testing.T) {
	logger := testutil.NewTestLogger()
	prober := testutil.NewMockProber(false)
	m := NewMonitor(prober, logger.Logger())

	// Establish a known offline state
	m.Check(context.Background())
	if m.Status() {
		t.Fatal("expected offline state")
	}

	prober.SetError(errors.New("probe timeout"))
	online, err := m.Check(context.Background())
	if err == nil {
		t.Error("expected probe failure to be reported to the caller")
	}
	if online {
		t.Error("expected last known state, not fail-open")
	}
	if m.Status() {
		t.Error("probe failure must leave the stored state unchanged")
	}
}

package shared

import (
	"testing"

	"github.com/jmoon/audiocore/internal/capability"
)

func TestStateMachineHappyPath(t *testing.T) {
	m := NewStateMachine()
	if m.Current() != capability.StateConstructed {
		t.Fatalf("expected StateConstructed, got %s", m.Current())
	}

	alreadyParsed, err := m.BeginParse()
	if err != nil || alreadyParsed {
		t.Fatalf("BeginParse: alreadyParsed=%v err=%v", alreadyParsed, err)
	}
	m.FinishParse()
	if m.Current() != capability.StateReading {
		t.Fatalf("expected StateReading after FinishParse, got %s", m.Current())
	}

	if err := m.RequireReading(); err != nil {
		t.Fatalf("RequireReading: %v", err)
	}

	if err := m.BeginSeek(); err != nil {
		t.Fatalf("BeginSeek: %v", err)
	}
	if m.Current() != capability.StateSeeking {
		t.Fatalf("expected StateSeeking, got %s", m.Current())
	}
	m.EndSeek()
	if m.Current() != capability.StateReading {
		t.Fatalf("expected StateReading after EndSeek, got %s", m.Current())
	}

	m.Close()
	if m.Current() != capability.StateClosed {
		t.Fatalf("expected StateClosed, got %s", m.Current())
	}
	if err := m.RequireReading(); err == nil {
		t.Fatalf("expected error reading after close")
	}
}

func TestBeginParseIdempotent(t *testing.T) {
	m := NewStateMachine()
	m.FinishParse()

	alreadyParsed, err := m.BeginParse()
	if err != nil {
		t.Fatalf("BeginParse on already-parsed machine: %v", err)
	}
	if !alreadyParsed {
		t.Fatalf("expected alreadyParsed=true on repeat parse")
	}
}

func TestReadBeforeParseRejected(t *testing.T) {
	m := NewStateMachine()
	if err := m.RequireReading(); err == nil {
		t.Fatalf("expected error reading before parseContainer")
	}
}

func TestSeekBeforeParseRejected(t *testing.T) {
	m := NewStateMachine()
	if err := m.BeginSeek(); err == nil {
		t.Fatalf("expected error seeking before parseContainer")
	}
}

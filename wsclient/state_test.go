package wsclient

import "testing"

func TestConnectionStateString(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  string
	}{
		{StateIdle, "idle"},
		{StateConnecting, "connecting"},
		{StateOpen, "open"},
		{StateClosing, "closing"},
		{StateClosed, "closed"},
		{StateFailed, "failed"},
		{ConnectionState(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ConnectionState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestConnectionStateTransitions(t *testing.T) {
	allowed := [][2]ConnectionState{
		{StateIdle, StateConnecting},
		{StateIdle, StateClosed},
		{StateConnecting, StateOpen},
		{StateConnecting, StateFailed},
		{StateConnecting, StateClosed},
		{StateOpen, StateClosing},
		{StateOpen, StateFailed},
		{StateClosing, StateClosed},
		{StateFailed, StateConnecting},
		{StateFailed, StateClosed},
		{StateClosed, StateConnecting},
	}
	for _, pair := range allowed {
		if !canTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}

	refused := [][2]ConnectionState{
		{StateIdle, StateOpen},
		{StateOpen, StateConnecting},
		{StateOpen, StateClosed},
		{StateClosed, StateOpen},
		{StateFailed, StateOpen},
		{StateClosing, StateConnecting},
	}
	for _, pair := range refused {
		if canTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be refused", pair[0], pair[1])
		}
	}
}

func TestConnectionStateTerminal(t *testing.T) {
	if !StateClosed.Terminal() {
		t.Fatalf("closed should be terminal")
	}
	for _, state := range []ConnectionState{StateIdle, StateConnecting, StateOpen, StateClosing, StateFailed} {
		if state.Terminal() {
			t.Errorf("%s should not be terminal", state)
		}
	}
}

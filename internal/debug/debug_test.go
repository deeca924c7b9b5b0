package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func capture(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	Init(lvl)
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { Init(LevelOff) })
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelLive)

	Info("boards=%d", 2)
	Summary("order A1 dispensed")
	Move(3, 400, "cw")
	Verbose("hidden verbose")
	GPIO("WritePin", 100, true)

	out := buf.String()
	for _, want := range []string{"boards=2", "order A1 dispensed", "motor rotation", "channel=3", "direction=cw"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, hidden := range []string{"hidden verbose", "WritePin"} {
		if strings.Contains(out, hidden) {
			t.Errorf("output should not contain %q at level %d", hidden, LevelLive)
		}
	}
}

func TestOffIsSilent(t *testing.T) {
	buf := capture(t, LevelOff)
	Info("nothing")
	Error(errors.New("boom"))
	if buf.Len() != 0 {
		t.Errorf("output at level off: %q", buf.String())
	}
	if IsEnabled(LevelInfo) {
		t.Error("IsEnabled(info) at level off")
	}
}

func TestTraceFields(t *testing.T) {
	buf := capture(t, LevelTrace)
	State(2, "idle", "stepping")
	GPIO("WritePin", 204, false)
	Error(errors.New("nack"))

	out := buf.String()
	for _, want := range []string{"engine state", "from=idle", "to=stepping", "pin=204", "error=nack", "app=LaneGo"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

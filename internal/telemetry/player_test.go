package telemetry

import (
	"context"
	"testing"
)

func TestPlayer_ManualStepping(t *testing.T) {
	var seen []AnimState
	p := NewPlayer("forward right forward", func(s AnimState) { seen = append(seen, s) })

	s := p.StepForward()
	if s.Step != 1 || s.X != 2 || s.Y != 1 {
		t.Fatalf("after step 1: %+v", s)
	}
	p.StepForward()
	p.StepForward()
	if got := p.State(); got.Step != 3 || got.X != 3 || got.Y != 1 {
		t.Errorf("final state = %+v", got)
	}

	// Stepping past the end is a no-op.
	if got := p.StepForward(); got.Step != 3 {
		t.Errorf("step past end moved to %d", got.Step)
	}

	s = p.StepBack()
	if s.Step != 2 || s.Dir != 1 {
		t.Errorf("after rewind: %+v", s)
	}

	if len(seen) == 0 {
		t.Error("onUpdate never fired")
	}
}

func TestPlayer_Reset(t *testing.T) {
	p := NewPlayer("forward forward", nil)
	p.StepForward()
	p.StepForward()

	s := p.Reset()
	if s.Step != 0 || s.X != 2 || s.Y != 2 || s.Playing {
		t.Errorf("reset state = %+v", s)
	}
}

func TestPlayer_PlayAtEndDoesNothing(t *testing.T) {
	p := NewPlayer("left", nil)
	p.StepForward()

	p.Play(context.Background())
	if p.State().Playing {
		t.Error("playback started with no commands left")
	}
}

func TestPlayer_StopHaltsPlayback(t *testing.T) {
	p := NewPlayer("forward forward forward", nil)

	p.Play(context.Background())
	if !p.State().Playing {
		t.Fatal("playback did not start")
	}
	p.Stop()
	if p.State().Playing {
		t.Error("playback still marked running after Stop")
	}

	step := p.State().Step
	// Position is kept; manual stepping continues from there.
	if got := p.StepForward(); got.Step != step+1 {
		t.Errorf("step after stop = %d, want %d", got.Step, step+1)
	}
}

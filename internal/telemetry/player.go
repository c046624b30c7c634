package telemetry

import (
	"context"
	"sync"
	"time"
)

// Player drives a program replay at a fixed cadence and stops itself at the
// end of the command list. The UI can also scrub manually through
// StepForward/StepBack while the player is stopped.
type Player struct {
	mu       sync.Mutex
	commands []string
	state    AnimState
	cancel   context.CancelFunc
	onUpdate func(AnimState)
}

// NewPlayer prepares a replay of the given program. onUpdate is called with
// a copy of the state after every change; it may be nil.
func NewPlayer(program string, onUpdate func(AnimState)) *Player {
	return &Player{
		commands: ParseCommands(program),
		state:    NewAnimState(),
		onUpdate: onUpdate,
	}
}

// State returns the current replay state.
func (p *Player) State() AnimState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// StepForward advances one command manually.
func (p *Player) StepForward() AnimState {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = p.state.StepForward(p.commands)
	p.notify()
	return p.state
}

// StepBack rewinds one command manually.
func (p *Player) StepBack() AnimState {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = p.state.StepBack(p.commands)
	p.notify()
	return p.state
}

// Reset returns the replay to its initial state.
func (p *Player) Reset() AnimState {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.state = NewAnimState()
	p.notify()
	return p.state
}

// Play starts timed playback from the current step. It returns immediately;
// playback runs until the command list ends, Stop is called, or the context
// is cancelled.
func (p *Player) Play(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Playing || p.state.Step >= len(p.commands) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state.Playing = true
	p.notify()

	go func() {
		ticker := time.NewTicker(playbackStepTime)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.mu.Lock()
				p.state = p.state.StepForward(p.commands)
				finished := p.state.Step >= len(p.commands)
				if finished {
					p.state.Playing = false
					p.stopLocked()
				}
				p.notify()
				p.mu.Unlock()
				if finished {
					return
				}
			}
		}
	}()
}

// Stop halts timed playback, keeping the current position.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.state.Playing = false
	p.notify()
}

func (p *Player) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Player) notify() {
	if p.onUpdate != nil {
		p.onUpdate(p.state)
	}
}

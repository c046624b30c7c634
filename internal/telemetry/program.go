package telemetry

import (
	"strings"
	"time"
)

// Playback timing: a fixed startup cost plus a per-command cost. Unrecognized
// commands render as text and take no time.
const (
	baseDuration     = 4000 * time.Millisecond
	moveDuration     = 1500 * time.Millisecond
	turnDuration     = 1000 * time.Millisecond
	playbackStepTime = 1500 * time.Millisecond
)

// ParseCommands splits a program into lowercase command tokens.
func ParseCommands(program string) []string {
	program = strings.TrimSpace(program)
	if program == "" {
		return nil
	}
	return strings.Fields(strings.ToLower(program))
}

// EstimateDuration estimates how long a program takes to run on the robot.
// An empty program takes no time. Used only to time the transient "running"
// badge.
func EstimateDuration(program string) time.Duration {
	commands := ParseCommands(program)
	if len(commands) == 0 {
		return 0
	}
	d := baseDuration
	for _, cmd := range commands {
		switch cmd {
		case "forward", "reverse":
			d += moveDuration
		case "left", "right":
			d += turnDuration
		}
	}
	return d
}

// Pose is one visited cell with heading.
type Pose struct {
	X   int `json:"x"`
	Y   int `json:"y"`
	Dir int `json:"dir"` // 0=up, 1=right, 2=down, 3=left
}

// AnimState is the grid-walk replay state for a program. The robot starts at
// the center of a 5x5 grid facing up; when a move leaves the visible bounds
// the grid grows by 2 per side-pair, offsets recenter the full visited path,
// and the robot's render scale shrinks by 15%. The shrink is monotonic:
// rewinding recomputes from the initial state rather than undoing steps.
type AnimState struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Dir        int     `json:"dir"`
	Step       int     `json:"step"`
	GridSize   int     `json:"grid_size"`
	OffsetX    int     `json:"offset_x"`
	OffsetY    int     `json:"offset_y"`
	RobotScale float64 `json:"robot_scale"`
	History    []Pose  `json:"history"`
	Playing    bool    `json:"playing"`
}

// NewAnimState returns the initial replay state.
func NewAnimState() AnimState {
	return AnimState{
		X:          2,
		Y:          2,
		Dir:        0,
		GridSize:   5,
		RobotScale: 1.0,
		History:    []Pose{{X: 2, Y: 2, Dir: 0}},
	}
}

// Apply executes one command against the state and returns the result.
func (s AnimState) Apply(command string) AnimState {
	x, y, dir := s.X, s.Y, s.Dir

	switch command {
	case "forward":
		switch dir {
		case 0:
			y--
		case 1:
			x++
		case 2:
			y++
		case 3:
			x--
		}
	case "reverse":
		switch dir {
		case 0:
			y++
		case 1:
			x--
		case 2:
			y--
		case 3:
			x++
		}
	case "right":
		dir = (dir + 1) % 4
	case "left":
		dir = (dir + 3) % 4
	}

	next := s
	next.X, next.Y, next.Dir = x, y, dir

	// Visible bounds in path coordinates.
	minX := -s.OffsetX
	maxX := s.GridSize - 1 - s.OffsetX
	minY := -s.OffsetY
	maxY := s.GridSize - 1 - s.OffsetY

	if x < minX || x > maxX || y < minY || y > maxY {
		next.GridSize = s.GridSize + 2

		// Bounds of the full visited path including the new position.
		pMinX, pMaxX, pMinY, pMaxY := x, x, y, y
		for _, p := range s.History {
			if p.X < pMinX {
				pMinX = p.X
			}
			if p.X > pMaxX {
				pMaxX = p.X
			}
			if p.Y < pMinY {
				pMinY = p.Y
			}
			if p.Y > pMaxY {
				pMaxY = p.Y
			}
		}

		next.OffsetX = (next.GridSize-1)/2 - floorDiv(pMaxX+pMinX, 2)
		next.OffsetY = (next.GridSize-1)/2 - floorDiv(pMaxY+pMinY, 2)
		next.RobotScale = s.RobotScale * 0.85
	}

	history := make([]Pose, len(s.History), len(s.History)+1)
	copy(history, s.History)
	next.History = append(history, Pose{X: x, Y: y, Dir: dir})
	return next
}

// StepForward applies the next command from the list, if any.
func (s AnimState) StepForward(commands []string) AnimState {
	if s.Step >= len(commands) {
		return s
	}
	next := s.Apply(commands[s.Step])
	next.Step = s.Step + 1
	next.Playing = s.Playing
	return next
}

// StepBack rewinds one step by replaying from the initial state. Expansion
// and scale decisions are re-derived, not undone incrementally.
func (s AnimState) StepBack(commands []string) AnimState {
	if s.Step == 0 {
		return s
	}
	state := NewAnimState()
	for i := 0; i < s.Step-1 && i < len(commands); i++ {
		state = state.Apply(commands[i])
		state.Step = i + 1
	}
	return state
}

// floorDiv rounds toward negative infinity, matching grid math for paths
// that cross into negative coordinates.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

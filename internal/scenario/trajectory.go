package scenario

import "github.com/signalnine/rundown/internal/space"

// TrajectoryEntry records the incumbent of one optimization run at a point
// in time.
type TrajectoryEntry struct {
	WallclockTime float64
	CPUTime       float64
	Evaluations   int
	Cost          float64
	Incumbent     space.Configuration
}

// Trajectory is ordered by increasing time.
type Trajectory []TrajectoryEntry

// FinalIncumbent returns the last incumbent and its estimated cost.
func (t Trajectory) FinalIncumbent() (space.Configuration, float64, bool) {
	if len(t) == 0 {
		return space.Configuration{}, 0, false
	}
	last := t[len(t)-1]
	return last.Incumbent, last.Cost, true
}

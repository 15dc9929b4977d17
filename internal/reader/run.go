package reader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
)

const (
	RunHistoryFile = "runhistory.json"
	TrajectoryFile = "traj_aclib2.json"
)

// Run is the output folder of one optimization run.
type Run struct {
	Folder     string
	Ledger     *ledger.Ledger
	Trajectory scenario.Trajectory
}

// Incumbent is the final incumbent of the run and its estimated cost.
func (r *Run) Incumbent() (space.Configuration, float64, bool) {
	return r.Trajectory.FinalIncumbent()
}

// ReadRun loads the run history of dir and, when present, its trajectory.
func ReadRun(dir string, sp *space.Space, opts ...ledger.Option) (*Run, error) {
	l, err := ReadRunHistory(filepath.Join(dir, RunHistoryFile), sp, opts...)
	if err != nil {
		return nil, err
	}
	run := &Run{Folder: dir, Ledger: l}

	traj, err := ReadTrajectory(filepath.Join(dir, TrajectoryFile), sp)
	switch {
	case err == nil:
		run.Trajectory = traj
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("run %s: %w", dir, err)
	}
	return run, nil
}

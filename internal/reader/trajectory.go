package reader

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
)

// ReadTrajectory loads a traj_aclib2.json file: one JSON object per line with
// the incumbent given as a list of name='value' strings.
func ReadTrajectory(path string, sp *space.Space) (scenario.Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trajectory: %w", err)
	}

	var traj scenario.Trajectory
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return nil, fmt.Errorf("trajectory %s: line %d: invalid JSON", path, n)
		}
		entry := gjson.ParseBytes(line)

		values := map[string]string{}
		for _, p := range entry.Get("incumbent").Array() {
			name, value, ok := strings.Cut(p.String(), "=")
			if !ok {
				return nil, fmt.Errorf("trajectory %s: line %d: malformed assignment %q", path, n, p.String())
			}
			values[strings.TrimSpace(name)] = strings.Trim(strings.TrimSpace(value), "'")
		}
		inc, err := sp.Configuration(values)
		if err != nil {
			return nil, fmt.Errorf("trajectory %s: line %d: %w", path, n, err)
		}
		traj = append(traj, scenario.TrajectoryEntry{
			WallclockTime: entry.Get("wallclock_time").Float(),
			CPUTime:       entry.Get("cpu_time").Float(),
			Evaluations:   int(entry.Get("evaluations").Int()),
			Cost:          entry.Get("cost").Float(),
			Incumbent:     inc,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading trajectory %s: %w", path, err)
	}
	return traj, nil
}

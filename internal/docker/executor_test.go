package docker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalnine/rundown/internal/docker"
	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
)

func testConfig(t *testing.T) space.Configuration {
	t.Helper()
	sp, err := space.New([]space.Hyperparameter{
		{Name: "solver", Kind: space.KindCategorical, Choices: []string{"plain", "restart"}},
		{Name: "interval", Kind: space.KindInt, Lower: 1, Upper: 100, Parent: "solver", ParentValues: []string{"restart"}},
		{Name: "alpha", Kind: space.KindFloat, Lower: 0, Upper: 1, Default: "0.25"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return sp.Default()
}

func TestBuildCommand(t *testing.T) {
	got := docker.BuildCommand("/solver --inst={instance} --seed {seed} -t {cutoff} {params}",
		testConfig(t), "/instances/i1.cnf", 42, 7.5)
	want := []string{"/solver", "--inst=/instances/i1.cnf", "--seed", "42", "-t", "7.5", "-solver", "plain", "-alpha", "0.25"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseResultLine(t *testing.T) {
	tests := []struct {
		name   string
		output string
		ok     bool
		want   docker.ResultLine
	}{
		{"sat", "noise\nResult of this algorithm run: SAT, 1.25, -1, 0, 42\n", true,
			docker.ResultLine{Status: ledger.StatusSuccess, Runtime: 1.25, RunLength: -1, Seed: 42}},
		{"last line wins", "Result for SMAC: TIMEOUT, 10, 0, 0, 1\nResult for SMAC: SUCCESS, 2, 0, 0.5, 1", true,
			docker.ResultLine{Status: ledger.StatusSuccess, Runtime: 2, Quality: 0.5, Seed: 1}},
		{"memout", "Result of this algorithm run: MEMOUT, 3, 0, 0, 0", true,
			docker.ResultLine{Status: ledger.StatusMemout, Runtime: 3}},
		{"missing", "segmentation fault", false, docker.ResultLine{}},
		{"bad status", "Result of this algorithm run: MAYBE, 3, 0, 0, 0", false, docker.ResultLine{}},
		{"bad number", "Result of this algorithm run: SAT, fast, 0, 0, 0", false, docker.ResultLine{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := docker.ParseResultLine([]byte(tt.output))
			if ok != tt.ok {
				t.Fatalf("ok: got %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStatusFromExit(t *testing.T) {
	tests := []struct {
		code     int
		timedOut bool
		want     ledger.Status
	}{
		{0, false, ledger.StatusSuccess},
		{1, false, ledger.StatusCrashed},
		{137, false, ledger.StatusMemout},
		{docker.TimeoutExitCode, true, ledger.StatusTimeout},
	}
	for _, tt := range tests {
		if got := docker.StatusFromExit(tt.code, tt.timedOut); got != tt.want {
			t.Errorf("StatusFromExit(%d, %v) = %s, want %s", tt.code, tt.timedOut, got, tt.want)
		}
	}
}

func fakeRunner(res *docker.RunResult, seen **docker.RunOpts) docker.ContainerRunner {
	return func(_ context.Context, opts *docker.RunOpts) (*docker.RunResult, error) {
		*seen = opts
		return res, nil
	}
}

func TestExecutorParsesResult(t *testing.T) {
	var opts *docker.RunOpts
	e := &docker.Executor{
		Image:       "solver:latest",
		Command:     "/solver {instance} {seed}",
		InstanceDir: "/data/instances",
		Grace:       time.Second,
		Objective:   scenario.ObjectiveRuntime,
		Runner: fakeRunner(&docker.RunResult{
			Output: []byte("Result of this algorithm run: SAT, 1.5, 0, 0, 3\n"),
		}, &opts),
	}
	v, err := e.Execute(context.Background(), testConfig(t), "i1.cnf", 3, 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v.Status != ledger.StatusSuccess || v.Cost != 1.5 || v.Runtime != 1.5 {
		t.Errorf("got %+v", v)
	}
	if opts.Command[1] != "/instances/i1.cnf" || opts.Command[2] != "3" {
		t.Errorf("command: got %q", opts.Command)
	}
	if opts.Timeout != 11*time.Second {
		t.Errorf("timeout: got %v", opts.Timeout)
	}
	if len(opts.Mounts) != 1 || !opts.Mounts[0].ReadOnly {
		t.Errorf("mounts: got %+v", opts.Mounts)
	}
}

func TestExecutorQualityObjective(t *testing.T) {
	var opts *docker.RunOpts
	e := &docker.Executor{
		Command:   "/solver",
		Objective: scenario.ObjectiveQuality,
		Runner: fakeRunner(&docker.RunResult{
			Output: []byte("Result of this algorithm run: SUCCESS, 4, 0, 0.125, 1\n"),
		}, &opts),
	}
	v, err := e.Execute(context.Background(), testConfig(t), "i1", 1, 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v.Cost != 0.125 || v.Runtime != 4 {
		t.Errorf("got %+v", v)
	}
}

func TestExecutorFallsBackToExitCode(t *testing.T) {
	var opts *docker.RunOpts
	tests := []struct {
		name    string
		res     *docker.RunResult
		want    ledger.RunValue
		crashed bool
	}{
		{"success", &docker.RunResult{Duration: 2 * time.Second},
			ledger.RunValue{Cost: 2, Runtime: 2, Status: ledger.StatusSuccess}, false},
		{"timeout", &docker.RunResult{ExitCode: docker.TimeoutExitCode, TimedOut: true},
			ledger.RunValue{Cost: 10, Runtime: 10, Status: ledger.StatusTimeout}, false},
		{"crash", &docker.RunResult{ExitCode: 1}, ledger.RunValue{}, true},
		{"reported crash", &docker.RunResult{Output: []byte("Result for SMAC: CRASHED, 0, 0, 0, 0")}, ledger.RunValue{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &docker.Executor{Command: "/solver", Runner: fakeRunner(tt.res, &opts)}
			v, err := e.Execute(context.Background(), testConfig(t), "i1", 0, 10)
			if tt.crashed {
				if !errors.Is(err, docker.ErrTargetCrashed) {
					t.Fatalf("expected ErrTargetCrashed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if v != tt.want {
				t.Errorf("got %+v, want %+v", v, tt.want)
			}
		})
	}
}

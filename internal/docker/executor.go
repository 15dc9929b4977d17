package docker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
)

// ErrTargetCrashed is returned when the target algorithm crashed or aborted.
// Callers record such runs with their crash cost.
var ErrTargetCrashed = errors.New("target algorithm crashed")

// InstanceMount is where the instance directory appears inside the container.
const InstanceMount = "/instances"

// ContainerRunner starts a container and waits for it.
type ContainerRunner func(ctx context.Context, opts *RunOpts) (*RunResult, error)

// Executor evaluates configurations by running the target algorithm in a
// container. Command is a template; see BuildCommand.
type Executor struct {
	Image       string
	Command     string
	InstanceDir string
	CPULimit    float64
	MemoryLimit int64
	// Grace is added to the cutoff before the container is killed.
	Grace     time.Duration
	Objective scenario.Objective
	Runner    ContainerRunner
}

func (e *Executor) Execute(ctx context.Context, cfg space.Configuration, instance string, seed int64, cutoff float64) (ledger.RunValue, error) {
	inst := instance
	var mounts []Mount
	if e.InstanceDir != "" {
		abs, err := filepath.Abs(e.InstanceDir)
		if err != nil {
			return ledger.RunValue{}, fmt.Errorf("resolving instance dir: %w", err)
		}
		mounts = append(mounts, Mount{Source: abs, Target: InstanceMount, ReadOnly: true})
		inst = InstanceMount + "/" + instance
	}

	timeout := time.Duration(cutoff*float64(time.Second)) + e.Grace
	if cutoff <= 0 {
		timeout = time.Hour
	}
	run := e.Runner
	if run == nil {
		run = RunContainer
	}
	res, err := run(ctx, &RunOpts{
		Image:       e.Image,
		Command:     BuildCommand(e.Command, cfg, inst, seed, cutoff),
		Mounts:      mounts,
		Timeout:     timeout,
		CPULimit:    e.CPULimit,
		MemoryLimit: e.MemoryLimit,
	})
	if err != nil {
		return ledger.RunValue{}, err
	}
	return e.interpret(res, cutoff)
}

func (e *Executor) interpret(res *RunResult, cutoff float64) (ledger.RunValue, error) {
	quality := e.Objective == scenario.ObjectiveQuality

	if line, ok := ParseResultLine(res.Output); ok {
		switch line.Status {
		case ledger.StatusCrashed, ledger.StatusAbort:
			return ledger.RunValue{}, fmt.Errorf("%w: reported %s", ErrTargetCrashed, line.Status)
		}
		v := ledger.RunValue{Runtime: line.Runtime, Status: line.Status, Cost: line.Runtime}
		if quality {
			v.Cost = line.Quality
		} else if line.Status != ledger.StatusSuccess {
			v.Cost = math.Max(line.Runtime, cutoff)
		}
		return v, nil
	}

	status := StatusFromExit(res.ExitCode, res.TimedOut)
	switch {
	case status == ledger.StatusCrashed:
		return ledger.RunValue{}, fmt.Errorf("%w: exit code %d", ErrTargetCrashed, res.ExitCode)
	case quality:
		return ledger.RunValue{}, fmt.Errorf("%w: no result line for a quality objective", ErrTargetCrashed)
	case status == ledger.StatusSuccess:
		rt := res.Duration.Seconds()
		return ledger.RunValue{Cost: rt, Runtime: rt, Status: status}, nil
	default:
		return ledger.RunValue{Cost: cutoff, Runtime: cutoff, Status: status}, nil
	}
}

// StatusFromExit maps a container exit onto a run status when the target
// printed no result line. 137 is the kernel's OOM kill.
func StatusFromExit(code int, timedOut bool) ledger.Status {
	if timedOut {
		return ledger.StatusTimeout
	}
	switch code {
	case 0:
		return ledger.StatusSuccess
	case 137:
		return ledger.StatusMemout
	default:
		return ledger.StatusCrashed
	}
}

// BuildCommand expands a whitespace-separated template. {instance}, {seed}
// and {cutoff} are substituted inside tokens; a {params} token expands into
// "-name value" pairs for every active hyperparameter.
func BuildCommand(template string, cfg space.Configuration, instance string, seed int64, cutoff float64) []string {
	r := strings.NewReplacer(
		"{instance}", instance,
		"{seed}", strconv.FormatInt(seed, 10),
		"{cutoff}", strconv.FormatFloat(cutoff, 'g', -1, 64),
	)
	var out []string
	for _, tok := range strings.Fields(template) {
		if tok == "{params}" {
			for _, name := range cfg.Space().Names() {
				if v, ok := cfg.Value(name); ok {
					out = append(out, "-"+name, v)
				}
			}
			continue
		}
		out = append(out, r.Replace(tok))
	}
	return out
}

// ResultLine is the summary a target algorithm wrapper prints on exit.
type ResultLine struct {
	Status    ledger.Status
	Runtime   float64
	RunLength float64
	Quality   float64
	Seed      int64
}

var resultPrefixes = []string{"Result of this algorithm run:", "Result for SMAC:", "Result for ParamILS:"}

// ParseResultLine finds the last result line in output:
// "Result of this algorithm run: STATUS, runtime, runlength, quality, seed".
func ParseResultLine(output []byte) (ResultLine, bool) {
	var found string
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		for _, p := range resultPrefixes {
			if i := strings.Index(line, p); i >= 0 {
				found = line[i+len(p):]
			}
		}
	}
	if found == "" {
		return ResultLine{}, false
	}

	fields := strings.Split(found, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 2 {
		return ResultLine{}, false
	}
	status, ok := wrapperStatus(fields[0])
	if !ok {
		return ResultLine{}, false
	}
	out := ResultLine{Status: status}
	nums := []*float64{&out.Runtime, &out.RunLength, &out.Quality}
	for i, dst := range nums {
		if i+1 >= len(fields) {
			break
		}
		f, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return ResultLine{}, false
		}
		*dst = f
	}
	if len(fields) > 4 {
		out.Seed, _ = strconv.ParseInt(fields[4], 10, 64)
	}
	return out, true
}

func wrapperStatus(s string) (ledger.Status, bool) {
	switch strings.ToUpper(s) {
	case "SAT", "UNSAT", "SUCCESS":
		return ledger.StatusSuccess, true
	case "TIMEOUT":
		return ledger.StatusTimeout, true
	case "MEMOUT":
		return ledger.StatusMemout, true
	case "CRASHED":
		return ledger.StatusCrashed, true
	case "ABORT":
		return ledger.StatusAbort, true
	}
	return "", false
}

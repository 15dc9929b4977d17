package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

// TimeoutExitCode is reported for containers killed at their deadline.
const TimeoutExitCode = 124

type RunOpts struct {
	Image   string
	Command []string
	Timeout time.Duration
	Mounts  []Mount
	// CPULimit is in cores, MemoryLimit in bytes. Zero means unlimited.
	CPULimit    float64
	MemoryLimit int64
}

type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

type RunResult struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
	// Output is the raw container log, stdout and stderr interleaved.
	Output []byte
}

// RunContainer runs one target-algorithm container without network access
// until it exits or opts.Timeout passes, then removes it. Cancelling ctx
// is an error, hitting the timeout is not.
func RunContainer(ctx context.Context, opts *RunOpts) (*RunResult, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	created, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:  opts.Image,
			Cmd:    opts.Command,
			Labels: map[string]string{"rundown": "true"},
		},
		HostConfig: hostConfig(opts),
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	id := created.ID
	defer cli.ContainerRemove(context.Background(), id, client.ContainerRemoveOptions{Force: true})

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, id, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	wait := cli.ContainerWait(waitCtx, id, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case status := <-wait.Result:
			return &RunResult{
				ExitCode: int(status.StatusCode),
				Duration: time.Since(start),
				Output:   containerLogs(cli, id),
			}, nil
		case err := <-wait.Error:
			if err == nil {
				continue
			}
			cli.ContainerKill(context.Background(), id, client.ContainerKillOptions{Signal: "SIGKILL"})
			if ctx.Err() != nil {
				return nil, fmt.Errorf("waiting for container: %w", ctx.Err())
			}
			return &RunResult{
				ExitCode: TimeoutExitCode,
				TimedOut: true,
				Duration: time.Since(start),
				Output:   containerLogs(cli, id),
			}, nil
		}
	}
}

func hostConfig(opts *RunOpts) *container.HostConfig {
	useInit := true
	hc := &container.HostConfig{
		Init:        &useInit,
		NetworkMode: "none",
		Resources: container.Resources{
			NanoCPUs: int64(opts.CPULimit * 1e9),
			Memory:   opts.MemoryLimit,
		},
	}
	for _, m := range opts.Mounts {
		hc.Mounts = append(hc.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return hc
}

// containerLogs returns whatever the container wrote, nil if the logs are
// unavailable.
func containerLogs(cli *client.Client, id string) []byte {
	r, err := cli.ContainerLogs(context.Background(), id, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil || r == nil {
		return nil
	}
	defer r.Close()
	return demuxLogs(r)
}

// demuxLogs strips the stream framing of a non-TTY container log, keeping
// stdout and stderr in the order they were written.
func demuxLogs(r io.Reader) []byte {
	var out bytes.Buffer
	stdcopy.StdCopy(&out, &out, r)
	return out.Bytes()
}

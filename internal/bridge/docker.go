package bridge

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/intelstack/tipforge/internal/log"
)

// DockerBridge implements Bridge against a Docker container.
// A single mutex serializes all operations so remote commands never
// interleave on one target.
type DockerBridge struct {
	cli       *client.Client
	container string
	mu        sync.Mutex
}

// NewDockerBridge creates a bridge for the named container.
func NewDockerBridge(containerName string) (*DockerBridge, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &DockerBridge{cli: cli, container: containerName}, nil
}

// Close releases Docker client resources.
func (b *DockerBridge) Close() error {
	return b.cli.Close()
}

// Container returns the target container name.
func (b *DockerBridge) Container() string {
	return b.container
}

// IsLive reports whether the container exists and is running.
func (b *DockerBridge) IsLive(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	inspect, err := b.cli.ContainerInspect(ctx, b.container)
	if err != nil {
		log.Debug("liveness check failed", "container", b.container, "error", err)
		return false
	}
	return inspect.State != nil && inspect.State.Running
}

// Push writes content to remotePath inside the container. The content is
// first copied to a temp file in the same directory, then renamed over the
// target so a failed transfer never leaves a truncated file.
func (b *DockerBridge) Push(ctx context.Context, content []byte, remotePath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := path.Dir(remotePath)
	tmpName := fmt.Sprintf(".%s.tipforge-%d", path.Base(remotePath), time.Now().UnixNano())

	// Single-file tar archive, same construction as a build context upload.
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	header := &tar.Header{
		Name: tmpName,
		Mode: 0644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("writing tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("writing content to tar: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar writer: %w", err)
	}

	if err := b.cli.CopyToContainer(ctx, b.container, dir, &buf, container.CopyToContainerOptions{}); err != nil {
		return classify(fmt.Errorf("copying to container: %w", err))
	}

	// Rename over the target. rename(2) within one directory is atomic, so
	// readers observe either the old or the new content.
	tmpPath := path.Join(dir, tmpName)
	res, err := b.execLocked(ctx, []string{"mv", "-f", tmpPath, remotePath}, 30*time.Second)
	if err != nil {
		// Best-effort cleanup of the staged temp file.
		_, _ = b.execLocked(ctx, []string{"rm", "-f", tmpPath}, 10*time.Second)
		return fmt.Errorf("finalizing push of %s: %w", remotePath, err)
	}
	if res.ExitCode != 0 {
		_, _ = b.execLocked(ctx, []string{"rm", "-f", tmpPath}, 10*time.Second)
		return &RemoteCommandError{Cmd: "mv", ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}
	return nil
}

// Pull reads the content of remotePath from the container.
func (b *DockerBridge) Pull(ctx context.Context, remotePath string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reader, _, err := b.cli.CopyFromContainer(ctx, b.container, remotePath)
	if err != nil {
		return nil, classify(fmt.Errorf("copying from container: %w", err))
	}
	defer reader.Close()

	// The daemon wraps single files in a tar stream.
	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("pulling %s: %w", remotePath, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar from container: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", remotePath, err)
		}
		return content, nil
	}
}

// Exec runs a command inside the container with the given timeout.
func (b *DockerBridge) Exec(ctx context.Context, cmd []string, timeout time.Duration) (ExecResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.execLocked(ctx, cmd, timeout)
}

// execLocked runs a command while the bridge mutex is already held.
func (b *DockerBridge) execLocked(ctx context.Context, cmd []string, timeout time.Duration) (ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	execID, err := b.cli.ContainerExecCreate(ctx, b.container, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, classify(fmt.Errorf("creating exec: %w", err))
	}

	resp, err := b.cli.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, classify(fmt.Errorf("attaching to exec: %w", err))
	}
	defer resp.Close()

	// Demux Docker's multiplexed stream (no TTY requested above).
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ExecResult{}, fmt.Errorf("remote command %q: %w", strings.Join(cmd, " "), ErrTimeout)
		}
		return ExecResult{}, fmt.Errorf("reading exec output: %w", err)
	}

	inspect, err := b.cli.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return ExecResult{}, classify(fmt.Errorf("inspecting exec: %w", err))
	}

	result := ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	return result, nil
}

// Stat returns mode and ownership of a remote path via stat(1).
func (b *DockerBridge) Stat(ctx context.Context, remotePath string) (FileStat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, err := b.execLocked(ctx, []string{"stat", "-c", "%a %u %g", remotePath}, 30*time.Second)
	if err != nil {
		return FileStat{}, err
	}
	if res.ExitCode != 0 {
		if strings.Contains(res.Stderr, "No such file") {
			return FileStat{}, fmt.Errorf("stat %s: %w", remotePath, ErrNotFound)
		}
		return FileStat{}, &RemoteCommandError{Cmd: "stat", ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}

	fields := strings.Fields(strings.TrimSpace(res.Stdout))
	if len(fields) != 3 {
		return FileStat{}, fmt.Errorf("unexpected stat output %q", res.Stdout)
	}
	mode, err := strconv.ParseUint(fields[0], 8, 32)
	if err != nil {
		return FileStat{}, fmt.Errorf("parsing mode %q: %w", fields[0], err)
	}
	uid, err := strconv.Atoi(fields[1])
	if err != nil {
		return FileStat{}, fmt.Errorf("parsing uid %q: %w", fields[1], err)
	}
	gid, err := strconv.Atoi(fields[2])
	if err != nil {
		return FileStat{}, fmt.Errorf("parsing gid %q: %w", fields[2], err)
	}

	return FileStat{Mode: os.FileMode(mode), UID: uid, GID: gid}, nil
}

// SetOwnership sets owner and mode of a remote path.
func (b *DockerBridge) SetOwnership(ctx context.Context, remotePath string, owner string, mode os.FileMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, cmd := range [][]string{
		{"chown", owner, remotePath},
		{"chmod", fmt.Sprintf("%o", mode.Perm()), remotePath},
	} {
		res, err := b.execLocked(ctx, cmd, 30*time.Second)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return &RemoteCommandError{Cmd: cmd[0], ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
		}
	}
	return nil
}

// ListDir returns the plain file names directly under remoteDir.
func (b *DockerBridge) ListDir(ctx context.Context, remoteDir string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// -p marks directories with a trailing slash so they can be skipped;
	// works on both coreutils and busybox ls.
	res, err := b.execLocked(ctx, []string{"ls", "-1Ap", remoteDir}, 30*time.Second)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		if strings.Contains(res.Stderr, "No such file") {
			return nil, fmt.Errorf("listing %s: %w", remoteDir, ErrNotFound)
		}
		return nil, &RemoteCommandError{Cmd: "ls", ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}

	var names []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, "/") {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

// classify maps daemon and context errors onto the bridge taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errdefs.IsPermissionDenied(err) || errdefs.IsUnauthorized(err):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%w: %v", ErrTargetUnreachable, err)
	default:
		return err
	}
}

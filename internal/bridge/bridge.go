// Package bridge provides a narrow abstraction over the live deployment
// target: copy files in and out, run commands, and manage ownership of
// deployed plugin files. It holds no orchestration logic.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Sentinel errors returned by bridge operations. Callers match these with
// errors.Is; RemoteCommandError carries the exit code for non-zero commands.
var (
	// ErrTargetUnreachable means the container does not exist or is not running.
	ErrTargetUnreachable = errors.New("deployment target unreachable")

	// ErrPermissionDenied means the daemon refused the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTimeout means a remote operation exceeded its deadline.
	ErrTimeout = errors.New("remote operation timed out")

	// ErrNotFound means the remote path does not exist.
	ErrNotFound = errors.New("remote path not found")
)

// RemoteCommandError is returned when a remote command exits non-zero.
type RemoteCommandError struct {
	Cmd      string
	ExitCode int
	Stderr   string
}

func (e *RemoteCommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("remote command %q exited %d: %s", e.Cmd, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("remote command %q exited %d", e.Cmd, e.ExitCode)
}

// ExecResult holds the outcome of a remote command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// FileStat holds remote file metadata.
type FileStat struct {
	Mode os.FileMode
	UID  int
	GID  int
}

// Owner renders the stat's ownership in chown's uid:gid form.
func (s FileStat) Owner() string {
	return fmt.Sprintf("%d:%d", s.UID, s.GID)
}

// Bridge is the contact surface with one deployment target. All operations
// against a target are serialized by the implementation; a bridge is safe for
// concurrent use.
type Bridge interface {
	// Push writes content to remotePath. The write is atomic: on failure the
	// remote file is either unchanged or fully replaced, never truncated.
	Push(ctx context.Context, content []byte, remotePath string) error

	// Pull reads the content of remotePath. Returns ErrNotFound if absent.
	Pull(ctx context.Context, remotePath string) ([]byte, error)

	// Exec runs a command inside the target with the given timeout. Exceeding
	// the timeout returns ErrTimeout. A command that runs to a non-zero exit
	// is not an error here: the exit code is reported in the result, and the
	// caller decides whether it is a failure (commands like test -d use the
	// exit code as an answer). Callers that do treat it as a failure wrap it
	// in a *RemoteCommandError.
	Exec(ctx context.Context, cmd []string, timeout time.Duration) (ExecResult, error)

	// Stat returns mode and ownership of a remote path.
	Stat(ctx context.Context, remotePath string) (FileStat, error)

	// SetOwnership sets owner ("user:group" or "uid:gid") and mode.
	SetOwnership(ctx context.Context, remotePath string, owner string, mode os.FileMode) error

	// ListDir returns the plain file names directly under remoteDir.
	ListDir(ctx context.Context, remoteDir string) ([]string, error)

	// IsLive reports whether the target container exists and is running.
	IsLive(ctx context.Context) bool
}

// Package bridgetest provides an in-memory Bridge double so the patch engine
// and phase runner can be tested without a live container.
package bridgetest

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/intelstack/tipforge/internal/bridge"
)

// FakeBridge implements bridge.Bridge over an in-memory file tree.
// The zero value is not usable; call New.
type FakeBridge struct {
	mu    sync.Mutex
	files map[string][]byte
	stats map[string]bridge.FileStat

	// Live controls IsLive. Defaults to true.
	Live bool

	// PushErr, PullErr and ExecErr, when set, are returned by the
	// corresponding operation before it does anything.
	PushErr error
	PullErr error
	ExecErr error

	// ExecHandler, when set, handles Exec calls. Otherwise every command
	// succeeds with empty output.
	ExecHandler func(cmd []string) (bridge.ExecResult, error)

	execLog   [][]string
	mutations int
}

// New creates an empty fake bridge reporting itself live.
func New() *FakeBridge {
	return &FakeBridge{
		files: make(map[string][]byte),
		stats: make(map[string]bridge.FileStat),
		Live:  true,
	}
}

// Seed places a file with default ownership (33:33, mode 0644).
func (f *FakeBridge) Seed(remotePath string, content []byte) {
	f.SeedWithStat(remotePath, content, bridge.FileStat{Mode: 0644, UID: 33, GID: 33})
}

// SeedWithStat places a file with explicit metadata.
func (f *FakeBridge) SeedWithStat(remotePath string, content []byte, stat bridge.FileStat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[remotePath] = append([]byte(nil), content...)
	f.stats[remotePath] = stat
}

// Content returns the current content of a file, or nil if absent.
func (f *FakeBridge) Content(remotePath string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.files[remotePath]
	if !ok {
		return nil
	}
	return append([]byte(nil), c...)
}

// Mutations returns how many state-changing operations have run.
func (f *FakeBridge) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

// ExecLog returns all commands passed to Exec.
func (f *FakeBridge) ExecLog() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.execLog...)
}

// Push implements bridge.Bridge.
func (f *FakeBridge) Push(ctx context.Context, content []byte, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PushErr != nil {
		return f.PushErr
	}
	f.mutations++
	f.files[remotePath] = append([]byte(nil), content...)
	if _, ok := f.stats[remotePath]; !ok {
		f.stats[remotePath] = bridge.FileStat{Mode: 0644, UID: 0, GID: 0}
	}
	return nil
}

// Pull implements bridge.Bridge.
func (f *FakeBridge) Pull(ctx context.Context, remotePath string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PullErr != nil {
		return nil, f.PullErr
	}
	content, ok := f.files[remotePath]
	if !ok {
		return nil, fmt.Errorf("pulling %s: %w", remotePath, bridge.ErrNotFound)
	}
	return append([]byte(nil), content...), nil
}

// Exec implements bridge.Bridge. Commands are recorded and counted as
// mutations, matching the conservative view the idempotency tests take.
func (f *FakeBridge) Exec(ctx context.Context, cmd []string, timeout time.Duration) (bridge.ExecResult, error) {
	f.mu.Lock()
	f.execLog = append(f.execLog, append([]string(nil), cmd...))
	f.mutations++
	handler := f.ExecHandler
	execErr := f.ExecErr
	f.mu.Unlock()

	if execErr != nil {
		return bridge.ExecResult{}, execErr
	}
	if handler != nil {
		return handler(cmd)
	}
	return bridge.ExecResult{ExitCode: 0}, nil
}

// Stat implements bridge.Bridge.
func (f *FakeBridge) Stat(ctx context.Context, remotePath string) (bridge.FileStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stat, ok := f.stats[remotePath]
	if !ok {
		return bridge.FileStat{}, fmt.Errorf("stat %s: %w", remotePath, bridge.ErrNotFound)
	}
	return stat, nil
}

// SetOwnership implements bridge.Bridge.
func (f *FakeBridge) SetOwnership(ctx context.Context, remotePath string, owner string, mode os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[remotePath]; !ok {
		return fmt.Errorf("chown %s: %w", remotePath, bridge.ErrNotFound)
	}
	f.mutations++
	stat := f.stats[remotePath]
	stat.Mode = mode
	var uid, gid int
	if _, err := fmt.Sscanf(owner, "%d:%d", &uid, &gid); err == nil {
		stat.UID, stat.GID = uid, gid
	}
	f.stats[remotePath] = stat
	return nil
}

// ListDir implements bridge.Bridge.
func (f *FakeBridge) ListDir(ctx context.Context, remoteDir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cleaned := strings.TrimSuffix(remoteDir, "/")
	var names []string
	for p := range f.files {
		if path.Dir(p) == cleaned {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names, nil
}

// IsLive implements bridge.Bridge.
func (f *FakeBridge) IsLive(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Live
}

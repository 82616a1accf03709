package mount

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/clearnote/notesync/internal/events"
)

// ExecConfig configures an ExecProvider.
type ExecConfig struct {
	// Tool is the mount helper binary, e.g. "sshfs" or "mount.cifs".
	Tool string

	// Args are passed to the tool; the placeholders {target} and
	// {mountpoint} are expanded before invocation.
	Args []string

	// Target is the remote location handed to the tool.
	Target string

	// MountPoint is the local directory the target appears under.
	MountPoint string

	// UnmountDelay is how long an idle mount lingers before the
	// delayed unmount fires. Defaults to five minutes.
	UnmountDelay time.Duration
}

// ExecProvider mounts a sync directory by shelling out to an external
// helper, the way FUSE-backed remotes are brought up.
type ExecProvider struct {
	cfg    ExecConfig
	logger *events.Logger

	mu           sync.Mutex
	mounted      bool
	unmountTimer *time.Timer
}

// NewExecProvider validates that the helper tool exists on PATH.
func NewExecProvider(cfg ExecConfig, logger *events.Logger) (*ExecProvider, error) {
	if cfg.Tool == "" {
		return nil, fmt.Errorf("no mount tool configured")
	}
	if _, err := exec.LookPath(cfg.Tool); err != nil {
		return nil, fmt.Errorf("mount tool %q not found: %w", cfg.Tool, err)
	}
	if cfg.MountPoint == "" {
		return nil, fmt.Errorf("no mount point configured")
	}
	if cfg.UnmountDelay <= 0 {
		cfg.UnmountDelay = 5 * time.Minute
	}
	return &ExecProvider{
		cfg:    cfg,
		logger: logger.WithField("component", "mount"),
	}, nil
}

func (p *ExecProvider) Mount(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelTimerLocked()

	if p.mountedLocked() {
		return p.cfg.MountPoint, nil
	}

	if err := os.MkdirAll(p.cfg.MountPoint, 0o700); err != nil {
		return "", fmt.Errorf("create mount point: %w", err)
	}

	args := make([]string, 0, len(p.cfg.Args)+2)
	for _, arg := range p.cfg.Args {
		arg = strings.ReplaceAll(arg, "{target}", p.cfg.Target)
		arg = strings.ReplaceAll(arg, "{mountpoint}", p.cfg.MountPoint)
		args = append(args, arg)
	}
	if len(p.cfg.Args) == 0 {
		args = append(args, p.cfg.Target, p.cfg.MountPoint)
	}

	cmd := exec.CommandContext(ctx, p.cfg.Tool, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("mount %s: %w: %s", p.cfg.Target, err, strings.TrimSpace(string(out)))
	}

	p.mounted = true
	p.logger.WithField("mount_point", p.cfg.MountPoint).Info("Mounted sync directory")
	return p.cfg.MountPoint, nil
}

func (p *ExecProvider) Unmount() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unmountLocked()
}

func (p *ExecProvider) unmountLocked() error {
	p.cancelTimerLocked()

	if !p.mountedLocked() {
		p.mounted = false
		return nil
	}

	cmd := exec.Command("fusermount", "-u", p.cfg.MountPoint)
	if out, err := cmd.CombinedOutput(); err != nil {
		// Not every helper is FUSE-backed; fall back to umount.
		cmd = exec.Command("umount", p.cfg.MountPoint)
		if out2, err2 := cmd.CombinedOutput(); err2 != nil {
			return fmt.Errorf("unmount %s: %w: %s / %s",
				p.cfg.MountPoint, err2,
				strings.TrimSpace(string(out)), strings.TrimSpace(string(out2)))
		}
	}

	p.mounted = false
	p.logger.WithField("mount_point", p.cfg.MountPoint).Info("Unmounted sync directory")
	return nil
}

func (p *ExecProvider) IsMounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mountedLocked()
}

// mountedLocked consults /proc/mounts when available so mounts that
// outlived a previous process are detected. Callers hold mu.
func (p *ExecProvider) mountedLocked() bool {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return p.mounted
	}
	defer f.Close()

	want := filepath.Clean(p.cfg.MountPoint)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && filepath.Clean(fields[1]) == want {
			return true
		}
	}
	return false
}

// ArmDelayedUnmount starts (or restarts) the idle unmount timer.
func (p *ExecProvider) ArmDelayedUnmount() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelTimerLocked()
	p.unmountTimer = time.AfterFunc(p.cfg.UnmountDelay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := p.unmountLocked(); err != nil {
			p.logger.WithError(err).Warn("Delayed unmount failed")
		}
	})
	p.logger.WithField("delay", p.cfg.UnmountDelay.String()).Debug("Armed delayed unmount")
}

func (p *ExecProvider) cancelTimerLocked() {
	if p.unmountTimer != nil {
		p.unmountTimer.Stop()
		p.unmountTimer = nil
	}
}

package mount

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearnote/notesync/internal/events"
)

func TestNoopProvider(t *testing.T) {
	p := &NoopProvider{Path: "/srv/notes"}

	path, err := p.Mount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/srv/notes", path)
	assert.True(t, p.IsMounted())
	assert.NoError(t, p.Unmount())
	p.ArmDelayedUnmount()
}

func TestNewExecProviderValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ExecConfig
	}{
		{"no tool", ExecConfig{MountPoint: "/mnt/x"}},
		{"tool not on path", ExecConfig{Tool: "definitely-not-a-real-mount-helper", MountPoint: "/mnt/x"}},
		{"no mount point", ExecConfig{Tool: "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExecProvider(tt.cfg, events.Nop())
			assert.Error(t, err)
		})
	}
}

func TestExecProviderDefaultsUnmountDelay(t *testing.T) {
	p, err := NewExecProvider(ExecConfig{
		Tool:       "true",
		MountPoint: t.TempDir(),
	}, events.Nop())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, p.cfg.UnmountDelay)
}

func TestExecProviderMountRunsTool(t *testing.T) {
	mountPoint := t.TempDir()

	// "true" accepts any arguments and exits zero, standing in for a
	// real mount helper.
	p, err := NewExecProvider(ExecConfig{
		Tool:       "true",
		Args:       []string{"{target}", "{mountpoint}"},
		Target:     "remote:/notes",
		MountPoint: mountPoint,
	}, events.Nop())
	require.NoError(t, err)

	path, err := p.Mount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mountPoint, path)
}

func TestExecProviderMountFailure(t *testing.T) {
	p, err := NewExecProvider(ExecConfig{
		Tool:       "false",
		MountPoint: t.TempDir(),
	}, events.Nop())
	require.NoError(t, err)

	_, err = p.Mount(context.Background())
	assert.Error(t, err)
}

// Package mount abstracts the external filesystems a sync directory
// may live on. Providers expose mount state and a delayed-unmount
// hook so back-to-back syncs reuse a live mount.
package mount

import (
	"context"
)

// Provider manages the lifecycle of the filesystem backing a sync
// directory.
type Provider interface {
	// Mount makes the sync directory available, returning its local
	// path. Mounting an already-mounted provider is a no-op.
	Mount(ctx context.Context) (string, error)

	// Unmount tears the mount down immediately.
	Unmount() error

	// IsMounted reports whether the sync directory is currently
	// available.
	IsMounted() bool

	// ArmDelayedUnmount schedules an unmount after the configured
	// idle delay. A subsequent Mount cancels it.
	ArmDelayedUnmount()
}

// NoopProvider serves sync directories that are always present, such
// as plain local paths. Mount hands back the configured path
// untouched.
type NoopProvider struct {
	Path string
}

func (p *NoopProvider) Mount(ctx context.Context) (string, error) { return p.Path, nil }

func (p *NoopProvider) Unmount() error { return nil }

func (p *NoopProvider) IsMounted() bool { return true }

func (p *NoopProvider) ArmDelayedUnmount() {}

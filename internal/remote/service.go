package remote

// Service is the factory contract a pluggable transport supplies. The
// sync core resolves one configured Service per pass and never
// depends on transport specifics beyond this interface.
type Service interface {
	// ID is a stable identifier for the service (e.g. "filesystem").
	ID() string

	// Name is the human-readable service name.
	Name() string

	// IsConfigured reports whether the service has enough
	// configuration to create a store.
	IsConfigured() bool

	// IsSupported reports whether the host system can run this
	// service (required tools present, etc).
	IsSupported() bool

	// CreateStore constructs a fresh Store for one sync pass,
	// mounting or connecting as needed.
	CreateStore() (Store, error)

	// SaveConfiguration verifies the current settings (mounting or
	// connecting as a probe) and persists them on success.
	SaveConfiguration() error

	// ResetConfiguration clears settings so IsConfigured reports
	// false, unmounting/disconnecting immediately if needed.
	ResetConfiguration() error

	// PostSyncCleanup runs after every pass, successful or not
	// (e.g. arming a delayed unmount).
	PostSyncCleanup()
}

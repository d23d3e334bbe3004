package checkpoint

// Store loads and persists run logs.
type Store interface {
	// Load returns the persisted log, or a fresh one seeded from info when
	// force requests a reset or no usable prior state exists. An unreadable
	// or structurally invalid prior state also yields a fresh log; only
	// storage-level failures return an error.
	Load(info RunInfo, force bool) (*Log, error)

	// Save writes the full log state durably. Safe to call after every unit.
	Save(l *Log) error
}

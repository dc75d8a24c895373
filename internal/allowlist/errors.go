package allowlist

import "errors"

// Sentinel errors surfaced by store persistence. Callers in the
// allowlist package itself log and swallow these; they are exported so
// tests can assert on them.
var (
	// ErrReadSnapshot indicates the durable snapshot file could not be read.
	ErrReadSnapshot = errors.New("read allow-list snapshot")

	// ErrWriteSnapshot indicates the durable snapshot file could not be written.
	ErrWriteSnapshot = errors.New("write allow-list snapshot")

	// ErrLockSnapshot indicates the snapshot file lock could not be acquired.
	ErrLockSnapshot = errors.New("lock allow-list snapshot")
)

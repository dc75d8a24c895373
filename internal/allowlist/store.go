package allowlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// snapshotFileName is the durable JSON file name under the data directory.
const snapshotFileName = "allowlist.json"

// store reads and writes the durable allow-list snapshot; writes are
// serialized under a file lock.
// Only entries with AddedBy != configSeededBy are ever written — admin and
// config-seeded users are rehydrated from configuration on every boot.
type store struct {
	path     string
	lockPath string
}

func newStore(dataDirectory string) *store {
	path := filepath.Join(dataDirectory, snapshotFileName)
	return &store{
		path:     path,
		lockPath: path + ".lock",
	}
}

// load reads the durable snapshot. A missing file is not an error; it
// yields an empty slice, matching a fresh deployment with no runtime
// allow-list additions yet.
func (s *store) load() ([]AllowedUser, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, ErrReadSnapshot)
	}

	var users []AllowedUser
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, ErrReadSnapshot)
	}

	return users, nil
}

// save writes the durable snapshot atomically under a file lock: the
// content is written to a temp file in the same directory, then renamed
// over the target, so a crash mid-write never corrupts the snapshot.
func (s *store) save(users []AllowedUser) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%s: %w", s.path, ErrWriteSnapshot)
	}

	fl := flock.New(s.lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("%s: %w", s.lockPath, ErrLockSnapshot)
	}
	defer fl.Unlock()

	if users == nil {
		users = []AllowedUser{}
	}

	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, ErrWriteSnapshot)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "allowlist-*.tmp")
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, ErrWriteSnapshot)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w", s.path, ErrWriteSnapshot)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w", s.path, ErrWriteSnapshot)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w", s.path, ErrWriteSnapshot)
	}

	return nil
}

package recordstore

import (
	"fmt"
	"path/filepath"

	"speedy/internal/splits"
)

// Store is a RecordStore that holds resources until closed.
type Store interface {
	splits.RecordStore
	Close() error
}

// Open returns the backend named by kind: "file" (YAML files under dataDir)
// or "sqlite" (dsn, defaulting to speedy.db under dataDir).
func Open(kind, dataDir, dsn string) (Store, error) {
	switch kind {
	case "", "file":
		fs, err := NewFileStore(dataDir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "sqlite":
		if dsn == "" {
			if _, err := NewFileStore(dataDir); err != nil {
				return nil, err
			}
			dsn = filepath.Join(dataDir, "speedy.db")
		}
		sq, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return sq, nil
	default:
		return nil, fmt.Errorf("unknown record store %q (valid: file, sqlite)", kind)
	}
}

// Close implements Store; files need no cleanup.
func (s *FileStore) Close() error {
	return nil
}

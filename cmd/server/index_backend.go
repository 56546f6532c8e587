package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"avatarsim.ai/internal/persistence/indexdb"
)

// openRuntimeIndex opens the SQLite history index under dataDir, or returns
// nil when indexing is disabled by flag or AVATARSIM_INDEX_BACKEND.
func openRuntimeIndex(dataDir string, disableDB bool, logger *zap.Logger) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("AVATARSIM_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Info("history index disabled", zap.String("backend", backend))
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "history.sqlite")
		return indexdb.OpenSQLite(dbPath, logger)
	default:
		return nil, fmt.Errorf("unsupported AVATARSIM_INDEX_BACKEND: %s", backend)
	}
}

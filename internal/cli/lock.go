package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"arcane-scribe/internal/helper"
)

const (
	lockFileName   = ".arcane.lock"
	lockRetryDelay = 200 * time.Millisecond
)

// lockDB takes the database lock: exclusive for writers, shared for readers.
// It waits while another process holds a conflicting lock.
func lockDB(ctx context.Context, dbDir string, exclusive bool, log zerolog.Logger) (func(), error) {
	if err := helper.CreateFolder(dbDir); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(dbDir, lockFileName)
	l := flock.New(lockPath)

	try, tryContext := l.TryRLock, l.TryRLockContext
	if exclusive {
		try, tryContext = l.TryLock, l.TryLockContext
	}

	locked, err := try()
	if err != nil {
		return nil, fmt.Errorf("cannot acquire database lock: %w", err)
	}
	if !locked {
		log.Info().Str("lock", lockPath).Msg("Waiting for another arcane process to release the database")
		locked, err = tryContext(ctx, lockRetryDelay)
		if err != nil {
			return nil, fmt.Errorf("cannot acquire database lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("database %s is locked by another process", dbDir)
		}
	}
	return func() { _ = l.Unlock() }, nil
}

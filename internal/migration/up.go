package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp applies every pending catalog migration. A database left dirty by a failed
// run is forced back to the previous version and migrated again once.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not create source driver: %v", err)
	}

	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %v", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return fmt.Errorf("failed to initialize migration: %v", err)
	}

	if v, dirty, verr := m.Version(); verr == nil {
		logger.Infof(ctx, "catalog schema at version %d (dirty=%t)", v, dirty)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		// if it's a dirty error, roll back to the previous version and retry
		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			prev, err := getPreviousVersionFromDirty(dirtyErr.Version)
			if err != nil {
				return err
			}
			logger.Warnf(ctx, "database dirty at version %d, forcing back to %d", dirtyErr.Version, prev)
			if ferr := m.Force(prev); ferr != nil {
				return fmt.Errorf("failed to force to version %d: %w", prev, ferr)
			}
			// retry Up() once more
			if err2 := m.Up(); err2 != nil && !errors.Is(err2, migrate.ErrNoChange) {
				return fmt.Errorf("migration up failed after force: %w", err2)
			}
			return nil
		}
		// some other error
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// getPreviousVersionFromDirty returns the version preceding dirtyVersion among the
// embedded migrations, or database.NilVersion (-1) when dirtyVersion is the first one.
func getPreviousVersionFromDirty(dirtyVersion int) (int, error) {
	entries, readErr := migrationsFS.ReadDir("migrations")
	if readErr != nil {
		return 0, fmt.Errorf("dirty at %d but failed to read migrations directory: %w", dirtyVersion, readErr)
	}
	// filename format: <version>_<description>.up.sql
	var versions []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		verStr, _, _ := strings.Cut(name, "_")
		v, parseErr := strconv.Atoi(verStr)
		if parseErr != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)

	for i, v := range versions {
		if v != dirtyVersion {
			continue
		}
		if i == 0 {
			return database.NilVersion, nil
		}
		return versions[i-1], nil
	}
	return 0, fmt.Errorf("could not determine previous version before %d", dirtyVersion)
}

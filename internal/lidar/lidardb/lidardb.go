package lidardb

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

// LidarDB records published frames to SQLite.
type LidarDB struct {
	*sql.DB
	path string
}

// NewLidarDB opens (or creates) the database at path and applies all
// pending migrations.
func NewLidarDB(path string) (*LidarDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc sqlite serialises writers; a single connection avoids
	// SQLITE_BUSY between the recorder and admin queries.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	ldb := &LidarDB{DB: db, path: path}
	if err := ldb.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("initialized lidar database at %s", path)
	return ldb, nil
}

// Path returns the file the database was opened from.
func (ldb *LidarDB) Path() string {
	return ldb.path
}

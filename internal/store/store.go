// Package store persists the station list in an embedded SQLite database
// so the last known stations are available before the first fetch.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pandora-cli/pandora/internal/station"
	"github.com/rs/zerolog/log"
)

const (
	// AppName is used for the data directory name.
	AppName = "pandora"
	// DBFileName is the station database file.
	DBFileName = "stations.db"
)

const schema = `
CREATE TABLE IF NOT EXISTS stations (
	id            TEXT PRIMARY KEY,
	id_token      TEXT NOT NULL,
	name          TEXT NOT NULL,
	is_quick_mix  INTEGER NOT NULL DEFAULT 0
);`

// StationStore is a disk-backed cache of the listener's station list.
type StationStore struct {
	db *sqlx.DB
}

type stationRow struct {
	ID         string `db:"id"`
	IDToken    string `db:"id_token"`
	Name       string `db:"name"`
	IsQuickMix bool   `db:"is_quick_mix"`
}

// DefaultPath returns the platform data path for the station database.
func DefaultPath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return filepath.Join(cacheDir, AppName, DBFileName), nil
}

// Open opens (creating if needed) the station database at path.
func Open(path string) (*StationStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open station database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create station schema: %w", err)
	}

	return &StationStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *StationStore) Close() error {
	return s.db.Close()
}

// Load returns the cached station list, empty when nothing was persisted.
func (s *StationStore) Load() ([]station.Station, error) {
	var rows []stationRow
	if err := s.db.Select(&rows, `SELECT id, id_token, name, is_quick_mix FROM stations ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to load cached stations: %w", err)
	}

	stations := make([]station.Station, 0, len(rows))
	for _, row := range rows {
		stations = append(stations, station.Station{
			ID:         row.ID,
			IDToken:    row.IDToken,
			Name:       row.Name,
			IsQuickMix: row.IsQuickMix,
		})
	}
	return stations, nil
}

// Persist replaces the cached station list wholesale.
func (s *StationStore) Persist(stations []station.Station) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin station transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`DELETE FROM stations`); err != nil {
		return fmt.Errorf("failed to clear cached stations: %w", err)
	}

	for _, st := range stations {
		_, err := tx.Exec(
			`INSERT INTO stations (id, id_token, name, is_quick_mix) VALUES (?, ?, ?, ?)`,
			st.ID, st.IDToken, st.Name, st.IsQuickMix,
		)
		if err != nil {
			return fmt.Errorf("failed to persist station %s: %w", st.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stations: %w", err)
	}

	log.Debug().Int("count", len(stations)).Msg("Station list persisted")
	return nil
}

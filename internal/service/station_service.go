// Package service provides the business logic layer for managing station data.
package service

import (
	"context"
	"sync"

	"github.com/pandora-cli/pandora/internal/station"
	"github.com/rs/zerolog/log"
)

// StationFetcher supplies the live station list. Satisfied by the
// protocol client.
type StationFetcher interface {
	GetStations(ctx context.Context) ([]station.Station, error)
}

// StationCache persists the station list between runs. Satisfied by the
// SQLite station store.
type StationCache interface {
	Load() ([]station.Station, error)
	Persist([]station.Station) error
}

// StationService keeps the current station list, refreshing it from the
// server and falling back to the persisted cache when offline.
type StationService struct {
	fetcher StationFetcher
	cache   StationCache

	mu       sync.RWMutex
	stations []station.Station
}

// NewStationService creates a service around a fetcher and an optional
// cache (nil disables persistence).
func NewStationService(fetcher StationFetcher, cache StationCache) *StationService {
	return &StationService{
		fetcher: fetcher,
		cache:   cache,
	}
}

// Refresh fetches the station list from the server, replacing the local
// snapshot and persisting it. When the fetch fails, the persisted cache
// is loaded instead and the fetch error returned alongside its contents.
func (s *StationService) Refresh(ctx context.Context) ([]station.Station, error) {
	stations, err := s.fetcher.GetStations(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Station fetch failed, falling back to cache")
		if s.cache != nil {
			if cached, loadErr := s.cache.Load(); loadErr == nil && len(cached) > 0 {
				s.setStations(cached)
				return cached, err
			}
		}
		return nil, err
	}

	s.setStations(stations)

	if s.cache != nil {
		if persistErr := s.cache.Persist(stations); persistErr != nil {
			log.Debug().Err(persistErr).Msg("Could not persist station cache")
		}
	}

	return stations, nil
}

func (s *StationService) setStations(stations []station.Station) {
	s.mu.Lock()
	s.stations = stations
	s.mu.Unlock()
}

// Cached returns a copy of the current station snapshot.
func (s *StationService) Cached() []station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]station.Station, len(s.stations))
	copy(result, s.stations)
	return result
}

// FindByID returns the station with the given ID, nil when absent. The
// returned station is a copy to prevent invalidation on refresh.
func (s *StationService) FindByID(stationID string) *station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.stations {
		if s.stations[i].ID == stationID {
			st := s.stations[i]
			return &st
		}
	}
	return nil
}

// StationCount returns the size of the current snapshot.
func (s *StationService) StationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stations)
}

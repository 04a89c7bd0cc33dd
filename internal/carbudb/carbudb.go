// Package carbudb persists refreshed feed datasets in SQLite and serves
// queries from an in-memory snapshot of the latest one.
package carbudb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/patrickmn/go-cache"

	"github.com/carbudb/carbudb/pkg/feed"
	"github.com/carbudb/carbudb/pkg/query"
)

const (
	defaultCacheExpirationMinutes = 10
	defaultCacheCleanupMinutes    = 30
	searchPrecisionDecimalPlaces  = 2
	defaultCacheSize              = -1024 * 1024 // negative value for pages
	defaultPageSize               = 4096
	decimalBase                   = 10
)

// snapshot is one immutable parsed dataset. Queries read whatever snapshot
// is current; a refresh swaps the pointer atomically so readers never see a
// half-built dataset.
type snapshot struct {
	date     time.Time
	stations []feed.Station
}

type Storage struct {
	db      *sql.DB
	cache   *cache.Cache
	log     *slog.Logger
	current atomic.Pointer[snapshot]
}

func NewStorage(ctx context.Context, dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := configureSQLitePragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	s := &Storage{
		db:    db,
		cache: cache.New(defaultCacheExpirationMinutes*time.Minute, defaultCacheCleanupMinutes*time.Minute),
		log:   logger,
	}

	if err := s.loadLastSnapshot(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS datasets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT UNIQUE NOT NULL,
		data BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_date ON datasets(date);

	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		station_id TEXT NOT NULL,
		fuel_id TEXT,
		fuel_name TEXT,
		price REAL NOT NULL,
		UNIQUE(date, station_id, fuel_id)
	);
	CREATE INDEX IF NOT EXISTS idx_price_history_date ON price_history(date);
	CREATE INDEX IF NOT EXISTS idx_price_history_station ON price_history(station_id);

	CREATE TABLE IF NOT EXISTS search_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		radius_km REAL NOT NULL,
		search_count INTEGER NOT NULL DEFAULT 1,
		last_search TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_search_log_coordinates ON search_log(latitude, longitude);
	`

	_, err := db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("error creating tables: %w", err)
	}
	return nil
}

func configureSQLitePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 10000;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA auto_vacuum = INCREMENTAL;",
		"PRAGMA temp_store = FILE;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA cache_size = %d;", defaultCacheSize),
		fmt.Sprintf("PRAGMA page_size = %d;", defaultPageSize),
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("error applying %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Storage) Close() error {
	if s.cache != nil {
		s.cache.Flush()
	}
	return s.db.Close()
}

// Refresh runs the feed pipeline and, on success, persists and installs the
// new dataset. On failure the previous snapshot stays untouched.
func (s *Storage) Refresh(ctx context.Context, client *feed.Client) (int, error) {
	stations, err := client.Refresh(ctx)
	if err != nil {
		return 0, err
	}

	if err := s.SaveDataset(ctx, time.Now(), stations); err != nil {
		return 0, err
	}
	return len(stations), nil
}

// SaveDataset stores one dataset under its date, records the per-fuel price
// history, and atomically swaps the in-memory snapshot.
func (s *Storage) SaveDataset(ctx context.Context, date time.Time, stations []feed.Station) error {
	dateStr := date.Format("2006-01-02")

	data, err := json.Marshal(stations)
	if err != nil {
		return fmt.Errorf("error marshaling dataset: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.log.Warn("rollback error", "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO datasets (date, data) VALUES (?, ?)", dateStr, data); err != nil {
		return fmt.Errorf("error inserting dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO price_history (date, station_id, fuel_id, fuel_name, price)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("error preparing price history statement: %w", err)
	}
	defer stmt.Close()

	for i := range stations {
		station := &stations[i]
		for _, fuel := range station.Fuels {
			if _, err := stmt.ExecContext(ctx, dateStr, station.ID, fuel.ID, fuel.Name, fuel.Price); err != nil {
				s.log.Warn("error inserting price history", "station", station.ID, "fuel", fuel.ID, "error", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	s.cache.Flush()
	s.current.Store(&snapshot{date: date, stations: stations})
	s.log.Info("dataset saved", "date", dateStr, "stations", len(stations))

	return nil
}

// loadLastSnapshot restores the most recent dataset into memory, if any.
func (s *Storage) loadLastSnapshot(ctx context.Context) error {
	var dateStr string
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT date, data FROM datasets ORDER BY date DESC LIMIT 1").Scan(&dateStr, &data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error loading last dataset: %w", err)
	}

	var stations []feed.Station
	if err := json.Unmarshal(data, &stations); err != nil {
		return fmt.Errorf("error unmarshaling dataset for %s: %w", dateStr, err)
	}

	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return fmt.Errorf("error parsing dataset date %s: %w", dateStr, err)
	}

	s.current.Store(&snapshot{date: date, stations: stations})
	return nil
}

// Snapshot returns the current in-memory dataset. The returned slice must
// be treated as immutable.
func (s *Storage) Snapshot() []feed.Station {
	if snap := s.current.Load(); snap != nil {
		return snap.stations
	}
	return nil
}

// SnapshotDate returns the date of the current dataset.
func (s *Storage) SnapshotDate() (time.Time, bool) {
	if snap := s.current.Load(); snap != nil {
		return snap.date, true
	}
	return time.Time{}, false
}

// GetDataset returns the dataset stored under a specific date.
func (s *Storage) GetDataset(ctx context.Context, date time.Time) ([]feed.Station, error) {
	dateStr := date.Format("2006-01-02")

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM datasets WHERE date = ?", dateStr).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no data available for date %s", dateStr)
		}
		return nil, fmt.Errorf("error querying database: %w", err)
	}

	var stations []feed.Station
	if err := json.Unmarshal(data, &stations); err != nil {
		return nil, fmt.Errorf("error unmarshaling dataset: %w", err)
	}
	return stations, nil
}

// GetAllDates returns all dataset dates, sorted ascending.
func (s *Storage) GetAllDates(ctx context.Context) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT date FROM datasets ORDER BY date ASC")
	if err != nil {
		return nil, fmt.Errorf("error querying dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var dateStr string
		if err := rows.Scan(&dateStr); err != nil {
			return nil, fmt.Errorf("error scanning date: %w", err)
		}
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error: %w", err)
	}
	return dates, nil
}

func (s *Storage) HasDate(ctx context.Context, date time.Time) (bool, error) {
	dateStr := date.Format("2006-01-02")
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM datasets WHERE date = ?", dateStr).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("error checking date existence: %w", err)
	}
	return count > 0, nil
}

// Nearby returns stations within radiusKm of the given point, closest
// first, with distances annotated. Results are cached per query.
func (s *Storage) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]query.Result, error) {
	cacheKey := fmt.Sprintf("nearby_%f_%f_%f", lat, lng, radiusKm)

	if err := s.LogSearch(ctx, lat, lng, radiusKm); err != nil {
		// A failed search log never fails the search itself.
		s.log.Error("failed to log search", "error", err)
	}

	if cached, found := s.cache.Get(cacheKey); found {
		s.log.Debug("using cached results", "key", cacheKey)
		return cached.([]query.Result), nil
	}

	stations := s.Snapshot()
	if stations == nil {
		return nil, fmt.Errorf("no data available")
	}

	ref := feed.Coordinates{Latitude: lat, Longitude: lng}
	within := query.Filter(stations, query.WithinDistance(ref, radiusKm))
	results := query.RankTopN(within, -1, query.OrderByDistance, query.RankOptions{Ref: &ref})

	s.cache.Set(cacheKey, results, cache.DefaultExpiration)
	return results, nil
}

// LogSearch records a nearby search at reduced coordinate precision, so
// repeat searches in the same area aggregate into one row.
func (s *Storage) LogSearch(ctx context.Context, lat, lng, radiusKm float64) error {
	roundedLat, roundedLng := reduceLocationPrecision(lat, lng, searchPrecisionDecimalPlaces)

	var id int64
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, search_count FROM search_log
		WHERE latitude = ? AND longitude = ?
		LIMIT 1
	`, roundedLat, roundedLng).Scan(&id, &count)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("error checking for existing search: %w", err)
	}

	if err == sql.ErrNoRows {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO search_log (latitude, longitude, radius_km)
			VALUES (?, ?, ?)
		`, roundedLat, roundedLng, radiusKm)
		if err != nil {
			return fmt.Errorf("error logging search: %w", err)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE search_log
		SET search_count = search_count + 1, last_search = CURRENT_TIMESTAMP, radius_km = ?
		WHERE id = ?
	`, radiusKm, id)
	if err != nil {
		return fmt.Errorf("error updating search: %w", err)
	}
	return nil
}

// SearchEntry is one aggregated row of the search log.
type SearchEntry struct {
	Latitude    float64
	Longitude   float64
	RadiusKm    float64
	SearchCount int64
	LastSearch  time.Time
}

// TopSearches returns the most searched areas, busiest first.
func (s *Storage) TopSearches(ctx context.Context, limit int) ([]SearchEntry, error) {
	q := "SELECT latitude, longitude, radius_km, search_count, last_search FROM search_log ORDER BY search_count DESC"
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("error retrieving search log: %w", err)
	}
	defer rows.Close()

	var entries []SearchEntry
	for rows.Next() {
		var e SearchEntry
		if err := rows.Scan(&e.Latitude, &e.Longitude, &e.RadiusKm, &e.SearchCount, &e.LastSearch); err != nil {
			return nil, fmt.Errorf("error scanning search entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return entries, nil
}

// PruneOldDatasets deletes datasets and price history older than daysOld.
func (s *Storage) PruneOldDatasets(ctx context.Context, daysOld int) error {
	cutoff := time.Now().AddDate(0, 0, -daysOld).Format("2006-01-02")
	s.log.Info("pruning old datasets", "cutoff_date", cutoff)

	res, err := s.db.ExecContext(ctx, "DELETE FROM datasets WHERE date < ?", cutoff)
	if err != nil {
		return fmt.Errorf("error deleting old datasets: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM price_history WHERE date < ?", cutoff); err != nil {
		return fmt.Errorf("error deleting old price history: %w", err)
	}

	s.log.Info("prune completed", "datasets_deleted", deleted)
	return nil
}

// Vacuum reclaims space freed by pruning.
func (s *Storage) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA incremental_vacuum(1000)"); err != nil {
		return fmt.Errorf("error performing incremental vacuum: %w", err)
	}
	return nil
}

func reduceLocationPrecision(lat, lng float64, decimalPlaces int) (roundedLat, roundedLng float64) {
	factor := math.Pow(decimalBase, float64(decimalPlaces))
	roundedLat = math.Round(lat*factor) / factor
	roundedLng = math.Round(lng*factor) / factor
	return
}

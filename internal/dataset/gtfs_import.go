package dataset

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/OneBusAway/go-gtfs"

	"transitstore.org/internal/logging"
	"transitstore.org/transitdb"
)

// Headsign kinds stored in trips.headsign_type.
const (
	HeadsignString    = 0
	HeadsignDirection = 1
)

const maxFeedSize = 200 * 1024 * 1024

// ImportCounts reports how many rows an import wrote per table.
type ImportCounts struct {
	Routes    int
	Trips     int
	Stops     int
	TripStops int
}

// ImportGTFS parses a static GTFS zip and rewrites the transit tables of
// store with it in one transaction. GTFS string ids are renumbered to the
// integer ids the transit schema uses.
func ImportGTFS(ctx context.Context, store *transitdb.Store, data []byte, source string) (ImportCounts, error) {
	logger := logging.Component(store.Logger(), "gtfs_importer")
	start := time.Now()

	hash := sha256.Sum256(data)
	staticData, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		return ImportCounts{}, fmt.Errorf("parse GTFS: %w", err)
	}
	logging.LogOperation(logger, "gtfs_parsed",
		slog.String("source", source),
		slog.String("hash", hex.EncodeToString(hash[:])[:8]),
		slog.Int("warnings", len(staticData.Warnings)))

	db, err := store.Get(ctx)
	if err != nil {
		return ImportCounts{}, err
	}

	var counts ImportCounts
	err = transitdb.WithTx(ctx, db, logger, "gtfs_import", func(tx *sql.Tx) error {
		var err error
		counts, err = writeStatic(ctx, tx, staticData)
		return err
	})
	if err != nil {
		return ImportCounts{}, err
	}
	// In-memory stores lose their rows on reopen, so the hooks rerun in place.
	if err := store.Reload(ctx); err != nil {
		return counts, err
	}

	logging.LogOperation(logger, "gtfs_data_import_completed",
		slog.String("source", source),
		slog.Int("routes", counts.Routes),
		slog.Int("trips", counts.Trips),
		slog.Int("stops", counts.Stops),
		slog.Int("trip_stops", counts.TripStops),
		slog.Duration("duration", time.Since(start)))
	return counts, nil
}

func writeStatic(ctx context.Context, tx *sql.Tx, static *gtfs.Static) (ImportCounts, error) {
	var counts ImportCounts

	for _, table := range []string{"trip_stops", "trips", "stops", "routes"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return counts, fmt.Errorf("error clearing %s: %w", table, err)
		}
	}

	routeIDs := make(map[string]int64, len(static.Routes))
	for i, r := range static.Routes {
		id := int64(i + 1)
		routeIDs[r.Id] = id
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO routes (id, short_name, long_name, color, text_color) VALUES (?, ?, ?, ?, ?)`,
			id, r.ShortName, r.LongName, r.Color, r.TextColor); err != nil {
			return counts, fmt.Errorf("unable to create route: %w", err)
		}
		counts.Routes++
	}

	stopIDs := make(map[string]int64, len(static.Stops))
	for _, s := range static.Stops {
		// Generic nodes and boarding areas may lack coordinates.
		if s.Latitude == nil || s.Longitude == nil {
			continue
		}
		id := int64(len(stopIDs) + 1)
		stopIDs[s.Id] = id
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stops (id, code, name, lat, lng) VALUES (?, ?, ?, ?, ?)`,
			id, s.Code, s.Name, *s.Latitude, *s.Longitude); err != nil {
			return counts, fmt.Errorf("unable to create stop: %w", err)
		}
		counts.Stops++
	}

	for i, t := range static.Trips {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		tripID := int64(i + 1)
		routeID, ok := routeIDs[t.Route.Id]
		if !ok {
			continue
		}
		headsignType, headsignValue := HeadsignString, t.Headsign
		if headsignValue == "" {
			headsignType, headsignValue = HeadsignDirection, fmt.Sprint(int(t.DirectionId))
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trips (id, route_id, headsign_type, headsign_value) VALUES (?, ?, ?, ?)`,
			tripID, routeID, headsignType, headsignValue); err != nil {
			return counts, fmt.Errorf("unable to create trip: %w", err)
		}
		counts.Trips++

		stopTimes := append([]gtfs.ScheduledStopTime(nil), t.StopTimes...)
		sort.SliceStable(stopTimes, func(a, b int) bool {
			return stopTimes[a].StopSequence < stopTimes[b].StopSequence
		})
		for _, st := range stopTimes {
			stopID, ok := stopIDs[st.Stop.Id]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO trip_stops (trip_id, stop_id, sequence) VALUES (?, ?, ?)`,
				tripID, stopID, st.StopSequence); err != nil {
				return counts, fmt.Errorf("unable to create trip stop: %w", err)
			}
			counts.TripStops++
		}
	}
	return counts, nil
}

// ReadFeed loads a GTFS zip from a local path or an http(s) URL.
func ReadFeed(ctx context.Context, location string) ([]byte, error) {
	if !isURL(location) {
		return os.ReadFile(location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		}}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", location, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > maxFeedSize {
		return nil, fmt.Errorf("static GTFS response exceeds size limit of %d bytes", maxFeedSize)
	}
	return body, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

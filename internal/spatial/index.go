// Package spatial keeps an in-memory R-tree of located rows so that
// proximity lookups do not scan the store.
package spatial

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/rtree"
)

// DefaultRadius is used when a center carries no radius, in meters.
const DefaultRadius = 500.0

// ErrInvalidCenter is returned by ParseCenter.
var ErrInvalidCenter = errors.New("invalid center")

// Point is one indexed row.
type Point struct {
	ID  int64
	Lat float64
	Lng float64
}

// Hit is a point within a search radius.
type Hit struct {
	Point
	Distance float64
}

// Index is safe for concurrent use; Load swaps the whole tree.
type Index struct {
	mu   sync.RWMutex
	tree *rtree.RTreeG[Point]
}

func NewIndex() *Index {
	return &Index{tree: &rtree.RTreeG[Point]{}}
}

// Load rebuilds the index from a query yielding (id, lat, lng) rows.
func (ix *Index) Load(ctx context.Context, db *sql.DB, query string) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("load spatial index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lng); err != nil {
			return fmt.Errorf("scan spatial row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	ix.Replace(points)
	return nil
}

// Replace swaps the indexed points.
func (ix *Index) Replace(points []Point) {
	tree := &rtree.RTreeG[Point]{}
	for _, p := range points {
		pt := [2]float64{p.Lng, p.Lat}
		tree.Insert(pt, pt, p)
	}
	ix.mu.Lock()
	ix.tree = tree
	ix.mu.Unlock()
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree.Len()
}

// Nearby returns up to limit points within radius meters of the center,
// closest first. A limit of zero means no limit.
func (ix *Index) Nearby(lat, lng, radius float64, limit int) []Hit {
	box := Around(lat, lng, radius)

	ix.mu.RLock()
	var hits []Hit
	ix.tree.Search(box.Min, box.Max,
		func(_, _ [2]float64, p Point) bool {
			if d := Distance(lat, lng, p.Lat, p.Lng); d <= radius {
				hits = append(hits, Hit{Point: p, Distance: d})
			}
			return true
		})
	ix.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// ParseCenter decodes "lat,lng" or "lat,lng,radius".
func ParseCenter(s string) (lat, lng, radius float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidCenter, s)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		if vals[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidCenter, s)
		}
	}
	lat, lng, radius = vals[0], vals[1], DefaultRadius
	if len(vals) == 3 {
		radius = vals[2]
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 || radius <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: %q out of range", ErrInvalidCenter, s)
	}
	return lat, lng, radius, nil
}

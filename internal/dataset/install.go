// Package dataset deploys prebuilt databases and imports GTFS feeds into
// the transit family.
package dataset

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/natefinch/atomic"

	"transitstore.org/internal/logging"
	"transitstore.org/transitdb"
)

// ErrNotSQLite is returned when an installed payload is not a database file.
var ErrNotSQLite = errors.New("payload is not an SQLite database")

var (
	sqliteHeader = []byte("SQLite format 3\x00")
	gzipMagic    = []byte{0x1f, 0x8b}
)

// Install replaces the store's database file with the dataset read from
// src, gzip-compressed or not. The file is swapped atomically and the
// cached handle dropped, so the next read sees the new data.
func Install(ctx context.Context, store *transitdb.Store, src io.Reader) error {
	logger := logging.Component(store.Logger(), "dataset_installer")
	start := time.Now()

	path := store.Path()
	if path == transitdb.MemoryPath {
		return errors.New("cannot install a dataset into an in-memory store")
	}

	r := bufio.NewReader(src)
	magic, err := r.Peek(len(gzipMagic))
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}
	var payload io.Reader = r
	if bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("open gzip stream: %w", err)
		}
		defer logging.SafeCloseWithLogging(zr, logger, "gzip_reader")
		payload = zr
	}

	body := bufio.NewReader(payload)
	header, err := body.Peek(len(sqliteHeader))
	if err != nil || !bytes.Equal(header, sqliteHeader) {
		return ErrNotSQLite
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	counter := &countingReader{r: body}
	if err := atomic.WriteFile(path, counter); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	store.Invalidate()

	logging.LogOperation(logger, "dataset_installed",
		slog.String("path", path),
		slog.Int64("bytes", counter.n),
		slog.Duration("duration", time.Since(start)))
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Package barcache keeps minute bar series on disk as one parquet file per
// (network, pool). A Cache is opened at run start and closed at run end.
package barcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/idhash"
)

// ErrClosed is returned when the cache is used after Close.
var ErrClosed = errors.New("bar cache closed")

const fileExt = ".parquet"

// barRow is the on-disk row layout.
type barRow struct {
	Network   string   `parquet:"network,dict"`
	Pool      string   `parquet:"pool,dict"`
	Timestamp int64    `parquet:"ts"`
	Open      float64  `parquet:"o"`
	High      float64  `parquet:"h"`
	Low       float64  `parquet:"l"`
	Close     float64  `parquet:"c"`
	Volume    *float64 `parquet:"v,optional"`
}

type entry struct {
	series    domain.BarSeries
	fetchedAt time.Time
	dirty     bool
}

// Cache is a read-through store of bar series with an explicit lifecycle.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry    // loaded or put this run, keyed by file name
	onDisk  map[string]time.Time // file name -> modification time
	closed  bool
}

// Open creates dir if needed and indexes the parquet files already in it.
// ttl <= 0 means entries never go stale. now nil means time.Now.
func Open(dir string, ttl time.Duration, now func() time.Time) (*Cache, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	onDisk := make(map[string]time.Time)
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), fileExt) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		onDisk[f.Name()] = info.ModTime()
	}

	return &Cache{
		dir:     dir,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]*entry),
		onDisk:  onDisk,
	}, nil
}

// fileName returns the cache file name for a pool.
func fileName(network, pool string) string {
	return network + "_" + idhash.ComputeSeriesKey(network, pool) + fileExt
}

// Path returns where the series of a pool is stored.
func (c *Cache) Path(network, pool string) string {
	return filepath.Join(c.dir, fileName(network, pool))
}

// Len returns the number of series known to the cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.onDisk)
	for name := range c.entries {
		if _, ok := c.onDisk[name]; !ok {
			n++
		}
	}
	return n
}

// Get returns the cached series for a pool if it was fetched within the TTL.
func (c *Cache) Get(network, pool string) (domain.BarSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.BarSeries{}, false
	}

	name := fileName(network, pool)
	if e, ok := c.entries[name]; ok {
		if !c.fresh(e.fetchedAt) {
			return domain.BarSeries{}, false
		}
		return cloneSeries(e.series), true
	}

	modTime, ok := c.onDisk[name]
	if !ok || !c.fresh(modTime) {
		return domain.BarSeries{}, false
	}

	series, err := readSeries(filepath.Join(c.dir, name), network, pool)
	if err != nil || series.Len() == 0 {
		return domain.BarSeries{}, false
	}

	c.entries[name] = &entry{series: series, fetchedAt: modTime}
	return cloneSeries(series), true
}

// Put stores a series in memory and marks it for the next Flush.
func (c *Cache) Put(series domain.BarSeries) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.entries[fileName(series.Network, series.Pool)] = &entry{
		series:    cloneSeries(series),
		fetchedAt: c.now(),
		dirty:     true,
	}
	return nil
}

// Flush writes every dirty series to disk.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Cache) flushLocked() error {
	var errs []error
	for name, e := range c.entries {
		if !e.dirty {
			continue
		}
		path := filepath.Join(c.dir, name)
		if err := writeSeries(path, e.series); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", name, err))
			continue
		}
		e.dirty = false
		c.onDisk[name] = e.fetchedAt
	}
	return errors.Join(errs...)
}

// Close flushes dirty series and releases the cache.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	err := c.flushLocked()
	c.closed = true
	c.entries = nil
	return err
}

func (c *Cache) fresh(fetchedAt time.Time) bool {
	return c.ttl <= 0 || c.now().Sub(fetchedAt) <= c.ttl
}

func writeSeries(path string, series domain.BarSeries) error {
	rows := make([]barRow, len(series.Bars))
	for i, b := range series.Bars {
		rows[i] = barRow{
			Network:   series.Network,
			Pool:      series.Pool,
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readSeries(path, network, pool string) (domain.BarSeries, error) {
	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return domain.BarSeries{}, err
	}

	series := domain.BarSeries{Network: network, Pool: pool, Bars: make([]domain.Bar, 0, len(rows))}
	for _, r := range rows {
		// Files are keyed by a hash prefix; skip rows of a colliding pool.
		if r.Network != network || r.Pool != pool {
			continue
		}
		series.Bars = append(series.Bars, domain.Bar{
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return series, nil
}

func cloneSeries(s domain.BarSeries) domain.BarSeries {
	out := domain.BarSeries{Network: s.Network, Pool: s.Pool, Bars: make([]domain.Bar, len(s.Bars))}
	for i, b := range s.Bars {
		out.Bars[i] = b
		if b.Volume != nil {
			v := *b.Volume
			out.Bars[i].Volume = &v
		}
	}
	return out
}

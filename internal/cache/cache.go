// Package cache stores evaluation outcomes on disk so an unchanged table is
// not re-solved. Entries are zstd-compressed JSON keyed by a SHA-256 of the
// table and solver parameters.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/spboyer/dea/internal/models"
)

const entryExt = ".json.zst"

// Shared zstd codecs, built on first use.
var (
	loadEncoder = sync.OnceValues(func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) })
	loadDecoder = sync.OnceValues(func() (*zstd.Decoder, error) { return zstd.NewReader(nil) })
)

// Cache provides caching for evaluation outcomes
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New creates a new cache instance with the specified directory. An empty
// dir disables caching.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// CacheKey generates a unique cache key for a batch evaluation.
// The key is based on:
// - model name
// - DMU names and metric names
// - every input and output value
// - reference-set tolerance and rounding decimals
func CacheKey(model string, table *models.Table, tolerance float64, decimals int) (string, error) {
	h := sha256.New()

	if err := writeString(h, model); err != nil {
		return "", err
	}
	if err := writeFloat(h, tolerance); err != nil {
		return "", err
	}
	if err := writeInt(h, decimals); err != nil {
		return "", err
	}

	for _, group := range [][]string{table.Names, table.InputNames, table.OutputNames} {
		if err := writeInt(h, len(group)); err != nil {
			return "", err
		}
		for _, s := range group {
			if err := writeString(h, s); err != nil {
				return "", err
			}
		}
	}

	for _, rows := range [][][]float64{table.Inputs, table.Outputs} {
		for _, row := range rows {
			if err := writeInt(h, len(row)); err != nil {
				return "", err
			}
			for _, v := range row {
				if err := writeFloat(h, v); err != nil {
					return "", err
				}
			}
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get retrieves a cached outcome if it exists
func (c *Cache) Get(key string) (*models.Outcome, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	compressed, err := os.ReadFile(c.cachePath(key))
	if err != nil {
		return nil, false
	}

	decoder, err := loadDecoder()
	if err != nil {
		return nil, false
	}
	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		// Corrupt entry, treat as miss
		return nil, false
	}

	var outcome models.Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, false
	}

	return &outcome, true
}

// Put stores an outcome in the cache
func (c *Cache) Put(key string, outcome *models.Outcome) error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshaling outcome: %w", err)
	}
	encoder, err := loadEncoder()
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}

	// Write to a temp file first so a concurrent reader never sees a
	// truncated entry.
	path := c.cachePath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoder.EncodeAll(data, nil), 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing cache file: %w", err)
	}

	return nil
}

// Clear removes all cached results
func (c *Cache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil
	}

	// Safety check: only remove a directory that holds nothing but cache
	// entries.
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			return fmt.Errorf("cache directory contains subdirectories - refusing to delete for safety")
		}
		name := entry.Name()
		if !strings.HasSuffix(name, entryExt) && !strings.HasSuffix(name, entryExt+".tmp") {
			return fmt.Errorf("cache directory contains non-cache file %q - refusing to delete for safety", name)
		}
	}

	return os.RemoveAll(c.dir)
}

// cachePath returns the file path for a cache key
func (c *Cache) cachePath(key string) string {
	return filepath.Join(c.dir, key+entryExt)
}

// Helper functions

func writeString(w io.Writer, s string) error {
	// Null byte delimiter prevents "ab"+"c" colliding with "a"+"bc"
	_, err := w.Write([]byte(s + "\x00"))
	return err
}

func writeInt(w io.Writer, i int) error {
	_, err := fmt.Fprintf(w, "%d\x00", i)
	return err
}

func writeFloat(w io.Writer, f float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	_, err := w.Write(buf[:])
	return err
}

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BlobCache stores opaque snapshots keyed by a digest, one <key>.json file
// per entry. Used for data that must survive an unreachable upstream.
type BlobCache struct {
	Dir         string
	StrictPerms bool
}

func (c *BlobCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	return ensureDir(c.Dir, c.StrictPerms)
}

// KeyFrom builds a cache key from a namespace and the parts that scope it.
func KeyFrom(namespace string, parts ...string) string {
	h := sha256.Sum256([]byte(namespace + "\n\n" + strings.Join(parts, "\n")))
	return hex.EncodeToString(h[:])
}

func (c *BlobCache) pathFor(key string) string {
	return filepath.Join(c.Dir, key+".json")
}

// Get returns cached bytes if present. A missing entry is not an error.
func (c *BlobCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := c.ensureDir(); err != nil {
		return nil, false, err
	}
	p := c.pathFor(key)
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return b, true, nil
}

// Save writes bytes atomically.
func (c *BlobCache) Save(_ context.Context, key string, data []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	p := c.pathFor(key)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, fileMode(c.StrictPerms)); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

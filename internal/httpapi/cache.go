package httpapi

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/geodata"
)

// RegionCache lazily loads and caches parsed regions from one geodata
// directory, tracking which are dirty (edited but not yet saved). Save
// rewrites the named region whether or not it is marked dirty.
type RegionCache struct {
	dir string

	mu     sync.Mutex
	loaded map[string]*geodata.Region
	dirty  map[string]bool
}

// NewRegionCache builds a cache rooted at dir.
func NewRegionCache(dir string) *RegionCache {
	return &RegionCache{
		dir:    dir,
		loaded: make(map[string]*geodata.Region),
		dirty:  make(map[string]bool),
	}
}

// List returns every "<rx>_<ry>.l2d" name found in the cache's directory.
func (c *RegionCache) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "httpapi.cache.list", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".l2d") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Get returns the parsed region named name, loading and caching it from
// disk on first access.
func (c *RegionCache) Get(name string) (*geodata.Region, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if region, ok := c.loaded[name]; ok {
		return region, nil
	}

	stem := strings.TrimSuffix(name, ".l2d")
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "httpapi.cache.get", err).WithContext("region", name)
	}
	region, err := geodata.Parse(stem, data)
	if err != nil {
		return nil, err
	}
	c.loaded[name] = region
	return region, nil
}

// MarkDirty flags name as having unsaved in-memory edits.
func (c *RegionCache) MarkDirty(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[name] = true
}

// Save writes name's in-memory region back to disk and clears its dirty
// flag, then evicts it from the cache so the next Get re-reads the
// just-written bytes rather than the cached pointer.
func (c *RegionCache) Save(name string) error {
	c.mu.Lock()
	region, ok := c.loaded[name]
	c.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.KindConflict, "httpapi.cache.save", "region not loaded").
			WithContext("region", name)
	}

	path := filepath.Join(c.dir, name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, region.Write(), 0o644); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "httpapi.cache.save.write", err).WithContext("region", name)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "httpapi.cache.save.rename", err).WithContext("region", name)
	}

	c.mu.Lock()
	delete(c.loaded, name)
	delete(c.dirty, name)
	c.mu.Unlock()
	return nil
}

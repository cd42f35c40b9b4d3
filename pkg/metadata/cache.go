package metadata

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goradd/maps"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"golang.org/x/sync/singleflight"

	"github.com/srodi/procwatch/pkg/collector/owner"
	"github.com/srodi/procwatch/pkg/types"
)

// Describer reads the display name and executable path of a process.
type Describer interface {
	Describe(ctx context.Context, pid uint32) (name, exe string)
}

// OwnerResolver maps a pid to the account that owns it.
type OwnerResolver interface {
	ResolveOwner(pid uint32) (string, bool)
}

// Cache stores metadata computed once per process lifetime. Entries are never
// mutated once stored; Prune is the only way they leave the cache.
type Cache struct {
	entries  maps.SafeMap[types.ProcessKey, types.Metadata]
	inflight singleflight.Group
	describe Describer
	owners   OwnerResolver
}

// NewCache builds an empty cache backed by the given collaborators.
func NewCache(describe Describer, owners OwnerResolver) *Cache {
	return &Cache{describe: describe, owners: owners}
}

// GetOrCompute returns the cached metadata for the entry's process, computing
// and storing it on first sight. Concurrent misses for one key share a single
// computation.
func (c *Cache) GetOrCompute(ctx context.Context, entry types.Entry) types.Metadata {
	key := entry.Key()
	if meta, ok := c.entries.Load(key); ok {
		return meta
	}

	v, _, _ := c.inflight.Do(flightKey(key), func() (interface{}, error) {
		// another flight may have stored it between Load and Do
		if meta, ok := c.entries.Load(key); ok {
			return meta, nil
		}
		meta := c.compute(ctx, entry.PID)
		c.entries.Set(key, meta)
		return meta, nil
	})
	return v.(types.Metadata)
}

func (c *Cache) compute(ctx context.Context, pid uint32) types.Metadata {
	name, exe := c.describe.Describe(ctx, pid)
	user, ok := c.owners.ResolveOwner(pid)
	if !ok {
		logger.L().Debug("owner unresolved, using placeholder",
			helpers.Int("pid", int(pid)),
			helpers.String("placeholder", owner.Unknown))
	}
	return types.Metadata{
		Name:  name,
		Exe:   exe,
		Owner: owner.OrUnknown(user, ok),
	}
}

// Lookup adapts the cache to the renderers' lookup signature.
func (c *Cache) Lookup(ctx context.Context) func(types.Entry) types.Metadata {
	return func(e types.Entry) types.Metadata {
		return c.GetOrCompute(ctx, e)
	}
}

// Prune evicts entries whose process lifetime is no longer live and returns how many were dropped.
func (c *Cache) Prune(live mapset.Set[types.ProcessKey]) int {
	var dead []types.ProcessKey
	c.entries.Range(func(key types.ProcessKey, _ types.Metadata) bool {
		if !live.Contains(key) {
			dead = append(dead, key)
		}
		return true
	})
	for _, key := range dead {
		c.entries.Delete(key)
	}
	return len(dead)
}

// Len reports how many process lifetimes are cached.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func flightKey(key types.ProcessKey) string {
	return fmt.Sprintf("%d/%d", key.PID, key.StartTime)
}

package service

import (
	"fmt"
	"strconv"

	"configctx/internal/domain"
	"configctx/internal/resolver"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru"
	"github.com/zeebo/xxh3"
)

// resolutionCache keeps recent renders keyed by the fingerprint of their
// inputs. It is never a source of truth: a miss just resolves again.
// A nil cache is valid and caches nothing.
type resolutionCache struct {
	arc *lru.ARCCache
}

func newResolutionCache(size int) (*resolutionCache, error) {
	if size <= 0 {
		return nil, nil
	}
	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, fmt.Errorf("create resolution cache: %w", err)
	}
	return &resolutionCache{arc: arc}, nil
}

func (c *resolutionCache) get(key xxh3.Uint128) (*Rendered, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.arc.Get(key)
	if !ok {
		cacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	cacheLookupsTotal.WithLabelValues("hit").Inc()
	return v.(*Rendered), true
}

func (c *resolutionCache) add(key xxh3.Uint128, r *Rendered) {
	if c == nil {
		return
	}
	c.arc.Add(key, r)
}

func (c *resolutionCache) purge() {
	if c == nil {
		return
	}
	c.arc.Purge()
}

func (c *resolutionCache) len() int {
	if c == nil {
		return 0
	}
	return c.arc.Len()
}

// fingerprint hashes everything a resolution depends on
func fingerprint(target *domain.Target, snap resolver.Snapshot, policy resolver.MergePolicy) (xxh3.Uint128, error) {
	h := xxh3.New()
	sep := []byte{0}

	_, _ = h.Write([]byte(policy.Fingerprint()))
	_, _ = h.Write(sep)
	_, _ = h.Write([]byte(target.ID))
	_, _ = h.Write(sep)
	if target.LocalContext != nil {
		local, err := json.Marshal(target.LocalContext)
		if err != nil {
			return xxh3.Uint128{}, err
		}
		_, _ = h.Write(local)
	}

	for i := range snap.Records {
		rec := &snap.Records[i]
		_, _ = h.Write(sep)
		data, err := json.Marshal(rec)
		if err != nil {
			return xxh3.Uint128{}, err
		}
		_, _ = h.Write(data)
		for _, ref := range rec.Groups {
			_, _ = h.Write([]byte(strconv.FormatBool(snap.Groups == nil || snap.Groups.Contains(ref))))
		}
	}
	for _, ref := range target.Memberships {
		_, _ = h.Write(sep)
		_, _ = h.Write([]byte(ref.String()))
	}

	return h.Sum128(), nil
}

// etag derives a strong HTTP entity tag from rendered output
func etag(data []byte) string {
	sum := xxh3.Hash128(data)
	return fmt.Sprintf(`"%016x%016x"`, sum.Hi, sum.Lo)
}

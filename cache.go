package einops

import (
	"strconv"
	"strings"

	"github.com/gomlx/einops/types/xslices"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

// DefaultCacheSize is the capacity of the package-level recipe cache.
const DefaultCacheSize = 1024

// Transformer parses and plans patterns, memoizing the structural part of the work in a
// bounded LRU cache. The structural recipe of a pattern depends only on the pattern text,
// the calling operation, the input rank and the size hints, so repeated calls with
// different concrete dimensions reuse the cached entry and only re-resolve sizes.
//
// A Transformer is safe for concurrent use. Most callers use the package-level functions,
// which share a default Transformer; create one explicitly to isolate or size the cache.
type Transformer struct {
	recipes *lru.Cache[string, *recipe]
}

// NewTransformer creates a Transformer with its own recipe cache of the given capacity.
func NewTransformer(cacheSize int) (*Transformer, error) {
	recipes, err := lru.New[string, *recipe](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Transformer{recipes: recipes}, nil
}

// Reset drops every cached recipe.
func (t *Transformer) Reset() {
	t.recipes.Purge()
}

// defaultTransformer backs the package-level Rearrange, Reduce, Repeat and ReduceWith.
var defaultTransformer = must.M1(NewTransformer(DefaultCacheSize))

func cacheKey(pattern string, kind callKind, rank int, hints map[string]int) string {
	var sb strings.Builder
	sb.WriteString(pattern)
	sb.WriteByte(0)
	sb.WriteString(strconv.Itoa(int(kind)))
	sb.WriteByte(0)
	sb.WriteString(strconv.Itoa(rank))
	if len(hints) > 0 {
		for _, name := range xslices.SortedKeys(hints) {
			sb.WriteByte(0)
			sb.WriteString(name)
			sb.WriteByte('=')
			sb.WriteString(strconv.Itoa(hints[name]))
		}
	}
	return sb.String()
}

// recipeFor returns the structural recipe for the call, from cache when possible.
func (t *Transformer) recipeFor(pattern string, kind callKind, rank int, hints map[string]int) (*recipe, error) {
	key := cacheKey(pattern, kind, rank, hints)
	if r, found := t.recipes.Get(key); found {
		return r, nil
	}
	klog.V(2).Infof("einops: recipe cache miss for %s %q (rank %d)", kind, pattern, rank)
	parsed, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	r, err := buildRecipe(parsed, kind, rank, hints)
	if err != nil {
		return nil, err
	}
	t.recipes.Add(key, r)
	return r, nil
}

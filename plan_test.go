package einops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRecipe(t *testing.T, pattern string, kind callKind, rank int, hints map[string]int) *recipe {
	t.Helper()
	p, err := parsePattern(pattern)
	require.NoError(t, err)
	r, err := buildRecipe(p, kind, rank, hints)
	require.NoError(t, err)
	return r
}

func TestBindSteps(t *testing.T) {
	t.Run("identity elides every step", func(t *testing.T) {
		r := mustRecipe(t, "a b -> a b", kindRearrange, 2, nil)
		plan, err := bind(r, []int{2, 3}, nil)
		require.NoError(t, err)
		assert.Empty(t, plan.steps)
		assert.Equal(t, []int{2, 3}, plan.outputDims)
	})

	t.Run("pure transpose", func(t *testing.T) {
		r := mustRecipe(t, "h w -> w h", kindRearrange, 2, nil)
		plan, err := bind(r, []int{2, 3}, nil)
		require.NoError(t, err)
		require.Len(t, plan.steps, 1)
		assert.Equal(t, stepTranspose, plan.steps[0].kind)
		assert.Equal(t, []int{1, 0}, plan.steps[0].perm)
		assert.Equal(t, []int{3, 2}, plan.outputDims)
	})

	t.Run("pure split reshape", func(t *testing.T) {
		hints := map[string]int{"h": 2}
		r := mustRecipe(t, "(h w) c -> h w c", kindRearrange, 2, hints)
		plan, err := bind(r, []int{6, 2}, hints)
		require.NoError(t, err)
		require.Len(t, plan.steps, 1)
		assert.Equal(t, stepReshape, plan.steps[0].kind)
		assert.Equal(t, []int{2, 3, 2}, plan.steps[0].dims)
	})

	t.Run("transpose precedes merge", func(t *testing.T) {
		r := mustRecipe(t, "b h w c -> b (c h w)", kindRearrange, 4, nil)
		plan, err := bind(r, []int{2, 3, 4, 5}, nil)
		require.NoError(t, err)
		require.Len(t, plan.steps, 2)
		assert.Equal(t, stepTranspose, plan.steps[0].kind)
		assert.Equal(t, []int{0, 3, 1, 2}, plan.steps[0].perm)
		assert.Equal(t, stepReshape, plan.steps[1].kind)
		assert.Equal(t, []int{2, 60}, plan.steps[1].dims)
	})

	t.Run("reduce on trailing axes", func(t *testing.T) {
		r := mustRecipe(t, "b h w c -> b c", kindReduce, 4, nil)
		plan, err := bind(r, []int{2, 3, 4, 5}, nil)
		require.NoError(t, err)
		require.Len(t, plan.steps, 2)
		assert.Equal(t, stepTranspose, plan.steps[0].kind)
		assert.Equal(t, []int{0, 3, 1, 2}, plan.steps[0].perm)
		assert.Equal(t, stepReduce, plan.steps[1].kind)
		assert.Equal(t, []int{2, 3}, plan.steps[1].axes)
		assert.Equal(t, []int{2, 5}, plan.outputDims)
	})

	t.Run("repeat tiles the new axis", func(t *testing.T) {
		hints := map[string]int{"c": 3}
		r := mustRecipe(t, "h w -> h c w", kindRepeat, 2, hints)
		plan, err := bind(r, []int{2, 4}, hints)
		require.NoError(t, err)
		require.Len(t, plan.steps, 1)
		assert.Equal(t, stepTile, plan.steps[0].kind)
		assert.Equal(t, 1, plan.steps[0].axis)
		assert.Equal(t, 3, plan.steps[0].size)
		assert.Equal(t, []int{2, 3, 4}, plan.outputDims)
	})

	t.Run("singleton insertion is just a reshape", func(t *testing.T) {
		r := mustRecipe(t, "b t -> b 1 t", kindRearrange, 2, nil)
		plan, err := bind(r, []int{2, 3}, nil)
		require.NoError(t, err)
		require.Len(t, plan.steps, 1)
		assert.Equal(t, stepReshape, plan.steps[0].kind)
		assert.Equal(t, []int{2, 1, 3}, plan.steps[0].dims)
	})

	t.Run("singleton on input uses no tensor axis", func(t *testing.T) {
		r := mustRecipe(t, "b 1 t -> b t", kindRearrange, 3, nil)
		plan, err := bind(r, []int{2, 1, 3}, nil)
		require.NoError(t, err)
		require.Len(t, plan.steps, 1)
		assert.Equal(t, stepReshape, plan.steps[0].kind)
		assert.Equal(t, []int{2, 3}, plan.steps[0].dims)
	})
}

func TestBindSizeResolution(t *testing.T) {
	t.Run("deduces the unknown factor", func(t *testing.T) {
		hints := map[string]int{"ph": 4, "pw": 4}
		r := mustRecipe(t, "b (h ph) (w pw) c -> b h w (ph pw c)", kindRearrange, 4, hints)
		plan, err := bind(r, []int{2, 8, 12, 3}, hints)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2, 3, 48}, plan.outputDims)
	})

	t.Run("zero sized dimension", func(t *testing.T) {
		hints := map[string]int{"h": 2}
		r := mustRecipe(t, "(h w) c -> h w c", kindRearrange, 2, hints)
		plan, err := bind(r, []int{0, 3}, hints)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 0, 3}, plan.outputDims)
	})

	for _, test := range []struct {
		name    string
		pattern string
		kind    callKind
		dims    []int
		hints   map[string]int
		want    error
	}{
		{"two unknowns in a group", "(h w) c -> h w c", kindRearrange, []int{6, 2}, nil, ErrAmbiguousAxisSize},
		{"unknown against zero known product", "(a b) -> a b", kindRearrange, []int{0}, map[string]int{"a": 0}, ErrAmbiguousAxisSize},
		{"non divisible group", "(h w) c -> h w c", kindRearrange, []int{7, 2}, map[string]int{"h": 2}, ErrNonIntegerAxisSize},
		{"hint contradicts the shape", "a b -> b a", kindRearrange, []int{2, 3}, map[string]int{"a": 5}, ErrAxisSizeConflict},
		{"fully known group mismatch", "(h w) -> h w", kindRearrange, []int{10}, map[string]int{"h": 3, "w": 4}, ErrAxisSizeConflict},
		{"literal one against larger dimension", "b 1 t -> b t", kindRearrange, []int{2, 4, 3}, nil, ErrAxisSizeConflict},
	} {
		t.Run(test.name, func(t *testing.T) {
			r := mustRecipe(t, test.pattern, test.kind, len(test.dims), test.hints)
			_, err := bind(r, test.dims, test.hints)
			require.ErrorIs(t, err, test.want)
		})
	}
}

func TestRecipeCache(t *testing.T) {
	tr, err := NewTransformer(8)
	require.NoError(t, err)

	r1, err := tr.recipeFor("a b -> b a", kindRearrange, 2, nil)
	require.NoError(t, err)
	r2, err := tr.recipeFor("a b -> b a", kindRearrange, 2, nil)
	require.NoError(t, err)
	assert.Same(t, r1, r2)

	// A different rank is a different structural problem.
	_, err = tr.recipeFor("... a -> a ...", kindRearrange, 2, nil)
	require.NoError(t, err)
	r3, err := tr.recipeFor("... a -> a ...", kindRearrange, 3, nil)
	require.NoError(t, err)
	r4, err := tr.recipeFor("... a -> a ...", kindRearrange, 2, nil)
	require.NoError(t, err)
	assert.NotSame(t, r3, r4)

	tr.Reset()
	r5, err := tr.recipeFor("a b -> b a", kindRearrange, 2, nil)
	require.NoError(t, err)
	assert.NotSame(t, r1, r5)
}

func TestCacheKey(t *testing.T) {
	// Hints participate in the key in a deterministic order.
	k1 := cacheKey("a b -> b a", kindRearrange, 2, map[string]int{"a": 1, "b": 2})
	k2 := cacheKey("a b -> b a", kindRearrange, 2, map[string]int{"b": 2, "a": 1})
	assert.Equal(t, k1, k2)
	k3 := cacheKey("a b -> b a", kindRearrange, 2, map[string]int{"a": 1, "b": 3})
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t,
		cacheKey("a b -> b a", kindRearrange, 2, nil),
		cacheKey("a b -> b a", kindReduce, 2, nil))
}

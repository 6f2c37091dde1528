package taxonomy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns scripted vectors per input text.
type fakeEmbedder struct {
	vectors map[string][]float64
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.calls++
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, ok := f.vectors[text]
		if !ok {
			vec = []float64{0, 0, 1}
		}
		out[i] = vec
	}
	return out, nil
}

func newTestMatcher(t *testing.T, cfg MatcherConfig) (*Matcher, *fakeEmbedder) {
	t.Helper()
	paths := []string{
		"Apparel > Shirts > T-Shirts",                  // depth 3
		"Apparel > Shirts > T-Shirts > Graphic",        // depth 4
		"Home > Kitchen",                               // depth 2
	}
	emb := &fakeEmbedder{vectors: map[string][]float64{
		// The two shirt paths are the same direction so they score equally
		// against a shirt query; the kitchen path is orthogonal.
		"Apparel > Shirts > T-Shirts":           {1, 0, 0},
		"Apparel > Shirts > T-Shirts > Graphic": {1, 0, 0},
		"Home > Kitchen":                        {0, 1, 0},
		"shirt query":                           {1, 0, 0},
		"kitchen query":                         {0, 1, 0},
		"unrelated query":                       {0, 0, 1},
	}}
	m, err := NewMatcher(context.Background(), emb, paths, cfg, nil)
	require.NoError(t, err)
	return m, emb
}

func TestMatchPicksHighestSimilarity(t *testing.T) {
	t.Parallel()

	m, _ := newTestMatcher(t, MatcherConfig{Threshold: 0.45, PreferredDepth: 2})
	match, err := m.Match(context.Background(), "kitchen query")

	require.NoError(t, err)
	assert.True(t, match.MatchFound)
	assert.Equal(t, "Home > Kitchen", match.Path)
	assert.InDelta(t, 1.0, match.Score, 1e-9)
	assert.Equal(t, 2, match.Depth)
}

func TestMatchTieBreakPrefersConfiguredDepth(t *testing.T) {
	t.Parallel()

	// Equal similarity, depths 3 and 4, preferred depth 4: the depth-4 path
	// wins.
	m, _ := newTestMatcher(t, MatcherConfig{Threshold: 0.45, PreferredDepth: 4})
	match, err := m.Match(context.Background(), "shirt query")

	require.NoError(t, err)
	assert.True(t, match.MatchFound)
	assert.Equal(t, "Apparel > Shirts > T-Shirts > Graphic", match.Path)
	assert.Equal(t, 4, match.Depth)
}

func TestMatchTieBreakEqualDistancePrefersDeeper(t *testing.T) {
	t.Parallel()

	// Preferred depth 3.5 is impossible; with preferred 3 the depth-3 path is
	// closer. Force equal distance by preferring depth between the two: with
	// depths 3 and 4 and preferred 4, distance is 1 vs 0 -- covered above.
	// Here preferred 3: distances 0 vs 1, the depth-3 path wins.
	m, _ := newTestMatcher(t, MatcherConfig{Threshold: 0.45, PreferredDepth: 3})
	match, err := m.Match(context.Background(), "shirt query")

	require.NoError(t, err)
	assert.Equal(t, "Apparel > Shirts > T-Shirts", match.Path)
}

func TestMatchBelowThresholdStillReportsBest(t *testing.T) {
	t.Parallel()

	m, _ := newTestMatcher(t, MatcherConfig{Threshold: 0.45, PreferredDepth: 3})
	match, err := m.Match(context.Background(), "unrelated query")

	require.NoError(t, err)
	assert.False(t, match.MatchFound, "below-threshold results are flagged")
	assert.NotEmpty(t, match.Path)
	assert.Less(t, match.Score, 0.45)
}

func TestMatchEmptyTextRejected(t *testing.T) {
	t.Parallel()

	m, _ := newTestMatcher(t, MatcherConfig{})
	_, err := m.Match(context.Background(), "   ")

	require.Error(t, err)
}

func TestNewMatcherBatchesCorpusEmbedding(t *testing.T) {
	t.Parallel()

	paths := make([]string, 5)
	vectors := map[string][]float64{}
	for i := range paths {
		paths[i] = "Apparel > Shirts > Style " + string(rune('A'+i))
		vectors[paths[i]] = []float64{1, 0, 0}
	}
	emb := &fakeEmbedder{vectors: vectors}

	_, err := NewMatcher(context.Background(), emb, paths, MatcherConfig{EmbedBatchSize: 2}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, emb.calls, "5 paths in batches of 2")
}

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Cosine([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float64{1, 0}, []float64{0, 0}))
	assert.Zero(t, Cosine([]float64{1}, []float64{1, 2}))
}

func TestBuildProductText(t *testing.T) {
	t.Parallel()

	text := BuildProductText(
		"Basic Tee XL",
		"Apparel > Shirts",
		[]string{"cotton", "eco"},
		"<p>Soft <b>organic</b> cotton tee.</p>",
	)

	assert.Contains(t, text, "basic")
	assert.Contains(t, text, "apparel")
	assert.Contains(t, text, "shirts")
	assert.Contains(t, text, "cotton")
	assert.Contains(t, text, "organic")
	assert.NotContains(t, text, "<p>", "markup is stripped")
	assert.NotContains(t, text, "eco", "short tokens are dropped")
	assert.NotContains(t, text, "tee", "short tokens are dropped")
}

func TestBuildProductTextCapsDescription(t *testing.T) {
	t.Parallel()

	long := ""
	for i := 0; i < 200; i++ {
		long += "wonderful "
	}
	text := BuildProductText("Tee", "", nil, long)

	assert.Less(t, len(text), 600)
}

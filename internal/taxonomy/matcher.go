package taxonomy

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// MatcherConfig tunes candidate selection.
type MatcherConfig struct {
	// Threshold is the minimum cosine similarity for a confident match.
	Threshold float64
	// PreferredDepth breaks ties between equally strong candidates.
	PreferredDepth int
	// EmbedBatchSize pages the corpus embedding calls.
	EmbedBatchSize int
}

// Match is the classification result for one product.
type Match struct {
	Path  string
	Score float64
	Depth int
	// MatchFound is false when no candidate reached the threshold; Path then
	// carries the best-scoring path anyway so callers can decide.
	MatchFound bool
}

// Matcher holds the embedded corpus as a static index and scores products
// against it. Build once per job run; safe for concurrent Match calls.
type Matcher struct {
	embedder Embedder
	cfg      MatcherConfig
	paths    []string
	depths   []int
	vectors  [][]float64
}

// NewMatcher embeds the corpus and returns a ready matcher.
func NewMatcher(ctx context.Context, embedder Embedder, paths []string, cfg MatcherConfig, logger *zap.Logger) (*Matcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("taxonomy corpus is empty")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.45
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	vectors := make([][]float64, 0, len(paths))
	for start := 0; start < len(paths); start += cfg.EmbedBatchSize {
		end := start + cfg.EmbedBatchSize
		if end > len(paths) {
			end = len(paths)
		}
		batch, err := embedder.Embed(ctx, paths[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed corpus paths %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	depths := make([]int, len(paths))
	for i, p := range paths {
		depths[i] = Depth(p)
	}
	logger.Info("taxonomy index built",
		zap.Int("paths", len(paths)),
		zap.Float64("threshold", cfg.Threshold),
		zap.Int("preferred_depth", cfg.PreferredDepth),
	)
	return &Matcher{
		embedder: embedder,
		cfg:      cfg,
		paths:    paths,
		depths:   depths,
		vectors:  vectors,
	}, nil
}

// Match embeds the product text and picks the best corpus path. Among
// candidates at or above the threshold the order is similarity descending,
// then distance to the preferred depth ascending, then depth descending.
func (m *Matcher) Match(ctx context.Context, text string) (Match, error) {
	if strings.TrimSpace(text) == "" {
		return Match{}, fmt.Errorf("empty product text")
	}
	embedded, err := m.embedder.Embed(ctx, []string{text})
	if err != nil {
		return Match{}, fmt.Errorf("embed product text: %w", err)
	}
	query := embedded[0]

	scores := make([]float64, len(m.vectors))
	var candidates []int
	for i, vec := range m.vectors {
		scores[i] = Cosine(query, vec)
		if scores[i] >= m.cfg.Threshold {
			candidates = append(candidates, i)
		}
	}

	if len(candidates) == 0 {
		best := 0
		for i := 1; i < len(scores); i++ {
			if scores[i] > scores[best] {
				best = i
			}
		}
		return Match{
			Path:  m.paths[best],
			Score: scores[best],
			Depth: m.depths[best],
		}, nil
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		i, j := candidates[a], candidates[b]
		if scores[i] != scores[j] {
			return scores[i] > scores[j]
		}
		di := abs(m.depths[i] - m.cfg.PreferredDepth)
		dj := abs(m.depths[j] - m.cfg.PreferredDepth)
		if di != dj {
			return di < dj
		}
		return m.depths[i] > m.depths[j]
	})

	pick := candidates[0]
	return Match{
		Path:       m.paths[pick],
		Score:      scores[pick],
		Depth:      m.depths[pick],
		MatchFound: true,
	}, nil
}

// Cosine computes the cosine similarity of two vectors; zero when either has
// no magnitude or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	nonWordPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

const (
	descriptionCap = 500
	minTokenLen    = 4
)

// BuildProductText assembles the normalized text blob matched against the
// corpus: title, product-type segments, tags, and a capped tag-stripped
// description, lowercased, punctuation removed, short tokens dropped.
func BuildProductText(title, productType string, tags []string, bodyHTML string) string {
	var parts []string
	parts = append(parts, title)
	for _, seg := range strings.FieldsFunc(productType, func(r rune) bool {
		return r == '>' || r == '/' || r == '&'
	}) {
		parts = append(parts, seg)
	}
	parts = append(parts, tags...)

	desc := htmlTagPattern.ReplaceAllString(bodyHTML, " ")
	if len(desc) > descriptionCap {
		desc = desc[:descriptionCap]
	}
	parts = append(parts, desc)

	normalized := nonWordPattern.ReplaceAllString(strings.ToLower(strings.Join(parts, " ")), " ")
	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if len(tok) >= minTokenLen {
			tokens = append(tokens, tok)
		}
	}
	return strings.Join(tokens, " ")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Package taxonomy classifies products into a fixed category-path corpus by
// text-embedding similarity.
package taxonomy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/cache"
)

// PathSeparator joins the segments of a category path.
const PathSeparator = " > "

const maxCorpusBody = 10 * 1024 * 1024

// CorpusLoader fetches the flat category-path list and normalizes it to a
// depth window. The cleaned corpus is cached keyed by the depth bounds, so a
// depth reconfiguration re-derives it while repeat runs skip the download.
type CorpusLoader struct {
	sourceURL string
	client    *http.Client
	cache     *cache.Cache
	logger    *zap.Logger
}

// NewCorpusLoader builds a loader. cache may be nil to always refetch.
func NewCorpusLoader(sourceURL string, client *http.Client, corpusCache *cache.Cache, logger *zap.Logger) *CorpusLoader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorpusLoader{sourceURL: sourceURL, client: client, cache: corpusCache, logger: logger}
}

// Load returns the deduplicated corpus cleaned to [minDepth, maxDepth]:
// shallower paths are dropped, deeper ones truncated to maxDepth segments.
func (l *CorpusLoader) Load(ctx context.Context, minDepth, maxDepth int) ([]string, error) {
	key := fmt.Sprintf("taxonomy_%d_%d", minDepth, maxDepth)

	var paths []string
	if l.cache != nil {
		hit, err := l.cache.Get(ctx, key, &paths)
		if err != nil {
			return nil, err
		}
		if hit {
			return paths, nil
		}
	}

	raw, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	paths = CleanPaths(raw, minDepth, maxDepth)
	l.logger.Info("taxonomy corpus loaded",
		zap.Int("raw_paths", len(raw)),
		zap.Int("cleaned_paths", len(paths)),
		zap.Int("min_depth", minDepth),
		zap.Int("max_depth", maxDepth),
	)

	if l.cache != nil {
		if err := l.cache.Put(ctx, key, paths, 0); err != nil {
			l.logger.Warn("cache taxonomy corpus failed", zap.Error(err))
		}
	}
	return paths, nil
}

func (l *CorpusLoader) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build corpus request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch taxonomy corpus: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch taxonomy corpus: status %d", resp.StatusCode)
	}

	var lines []string
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxCorpusBody))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read taxonomy corpus: %w", err)
	}
	return lines, nil
}

// CleanPaths applies the depth window and deduplicates, preserving first-seen
// order.
func CleanPaths(raw []string, minDepth, maxDepth int) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, path := range raw {
		segments := splitPath(path)
		if len(segments) < minDepth {
			continue
		}
		if len(segments) > maxDepth {
			segments = segments[:maxDepth]
		}
		cleaned := strings.Join(segments, PathSeparator)
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

// Depth counts the segments of a category path.
func Depth(path string) int {
	return len(splitPath(path))
}

func splitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, ">") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

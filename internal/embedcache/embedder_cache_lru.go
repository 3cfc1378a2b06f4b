package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/ai"
)

// WrapLruCacheToEmbedder caches per-text vectors in an expirable LRU. Batch
// calls are split so partial hits only re-embed the misses.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := buildCacheKey(l.next.ModelName(), taskType, text)
	if cached, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit", zap.String("task_type", taskType))
		return cloneVector(cached), nil
	}
	vec, err := l.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneVector(vec))
	return vec, nil
}

func (l *lruEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		key := buildCacheKey(l.next.ModelName(), taskType, text)
		if cached, ok := l.cache.Get(key); ok {
			results[i] = cloneVector(cached)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}
	vectors, err := l.next.EmbedBatch(ctx, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		results[idx] = vectors[j]
		l.cache.Add(buildCacheKey(l.next.ModelName(), taskType, texts[idx]), cloneVector(vectors[j]))
	}
	return results, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func buildCacheKey(model, taskType, text string) string {
	hash := sha256.Sum256([]byte(model + "|" + taskType + "|" + text))
	return hex.EncodeToString(hash[:])
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

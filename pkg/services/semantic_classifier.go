package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	_ "embed"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/shoplens-ai/shoplens-engine/pkg/llm"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

//go:embed catalog/examples.yaml
var exampleCatalogYAML []byte

// warmConcurrency bounds parallel embedding calls during warm-up.
const warmConcurrency = 4

// exampleCatalog is the on-disk shape of the embedded phrase catalogue.
type exampleCatalog struct {
	Tools map[string][]string `yaml:"tools"`
}

// exampleVector is one embedded example phrase, unit-normalized so cosine
// similarity reduces to a dot product at query time.
type exampleVector struct {
	tool   models.ToolName
	phrase string
	vector []float32
}

// SemanticClassifier matches questions against pre-computed embeddings of
// example phrases. It is the final tier before giving up: cheap per query
// once warmed, and tolerant of an unreachable embedding service (it reports
// no match instead of erroring).
type SemanticClassifier interface {
	Classifier

	// Warm embeds every catalogue example. Idempotent; safe to call
	// concurrently. Returns an error when the embedding service is
	// unreachable, in which case the tier stays cold.
	Warm(ctx context.Context) error
}

type semanticClassifier struct {
	embedder     llm.LLMClient // nil when no embedding endpoint is configured
	model        string
	threshold    float64
	defaultLimit int
	logger       *zap.Logger

	mu       sync.RWMutex
	examples []exampleVector
	warmed   bool
}

// NewSemanticClassifier creates the embedding-similarity tier. threshold is
// the minimum cosine similarity for a match; embedder may be nil, which
// leaves the tier permanently cold.
func NewSemanticClassifier(embedder llm.LLMClient, model string, threshold float64, defaultLimit int, logger *zap.Logger) SemanticClassifier {
	return &semanticClassifier{
		embedder:     embedder,
		model:        model,
		threshold:    threshold,
		defaultLimit: defaultLimit,
		logger:       logger.Named("semantic-classifier"),
	}
}

var _ SemanticClassifier = (*semanticClassifier)(nil)

func (c *semanticClassifier) Name() string { return models.MethodSemantic }

// Warm embeds the full example catalogue, one batched call per tool, fanned
// out with bounded concurrency.
func (c *semanticClassifier) Warm(ctx context.Context) error {
	if c.embedder == nil {
		return fmt.Errorf("no embedding client configured")
	}

	c.mu.RLock()
	warmed := c.warmed
	c.mu.RUnlock()
	if warmed {
		return nil
	}

	catalog, err := loadExampleCatalog()
	if err != nil {
		return err
	}

	var (
		collected sync.Mutex
		examples  []exampleVector
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)

	for toolName, phrases := range catalog.Tools {
		tool := models.ParseToolName(toolName)
		if tool == models.ToolNone {
			return fmt.Errorf("example catalogue names unknown tool %q", toolName)
		}
		phrases := phrases

		g.Go(func() error {
			vectors, err := c.embedder.CreateEmbeddings(gctx, phrases, c.model)
			if err != nil {
				return fmt.Errorf("embed examples for %s: %w", tool, err)
			}
			if len(vectors) != len(phrases) {
				return fmt.Errorf("embed examples for %s: got %d vectors for %d phrases", tool, len(vectors), len(phrases))
			}

			collected.Lock()
			defer collected.Unlock()
			for i, v := range vectors {
				examples = append(examples, exampleVector{
					tool:   tool,
					phrase: phrases[i],
					vector: normalize(v),
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	// A concurrent Warm may have won the race; keep whichever finished first.
	if !c.warmed {
		c.examples = examples
		c.warmed = true
	}
	c.mu.Unlock()

	c.logger.Info("example embeddings warmed",
		zap.Int("examples", len(examples)),
		zap.String("model", c.model))
	return nil
}

func (c *semanticClassifier) Classify(ctx context.Context, question models.Question) (models.ToolDecision, error) {
	if c.embedder == nil {
		return c.noMatch(nil), nil
	}

	c.mu.RLock()
	warmed := c.warmed
	c.mu.RUnlock()

	// Cold cache (embedding service was down at startup): retry the warm-up
	// here, and degrade to no-match rather than error if it is still down.
	if !warmed {
		if err := c.Warm(ctx); err != nil {
			c.logger.Warn("semantic tier cold, embeddings unavailable", zap.Error(err))
			return c.noMatch(nil), nil
		}
	}

	queryVec, err := c.embedder.CreateEmbedding(ctx, question.Text, c.model)
	if err != nil {
		c.logger.Warn("question embedding failed", zap.Error(err))
		return c.noMatch(nil), nil
	}
	query := normalize(queryVec)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var (
		bestTool   models.ToolName
		bestPhrase string
		bestScore  = math.Inf(-1)
		perTool    = make(map[string]float64, len(models.ValidToolNames))
	)

	for _, ex := range c.examples {
		score := dot(query, ex.vector)
		if score > perTool[string(ex.tool)] {
			perTool[string(ex.tool)] = score
		}
		if score > bestScore {
			bestScore = score
			bestTool = ex.tool
			bestPhrase = ex.phrase
		}
	}

	// The per-tool score vector is the main debugging handle for this tier:
	// silent nearest-neighbor mistakes are its dominant failure mode.
	c.logger.Debug("semantic scores",
		zap.String("best_tool", string(bestTool)),
		zap.String("best_example", bestPhrase),
		zap.Float64("best_score", bestScore),
		zap.Any("per_tool", perTool))

	if bestScore < c.threshold {
		return c.noMatch(perTool), nil
	}

	lower := strings.ToLower(question.Text)
	return models.ToolDecision{
		Tool:       bestTool,
		Params:     buildToolParams(bestTool, lower, c.defaultLimit),
		Confidence: clamp01(bestScore),
		Method:     models.MethodSemantic,
		Scores:     perTool,
	}, nil
}

func (c *semanticClassifier) noMatch(scores map[string]float64) models.ToolDecision {
	return models.ToolDecision{
		Tool:   models.ToolNone,
		Method: models.MethodSemantic,
		Scores: scores,
	}
}

func loadExampleCatalog() (*exampleCatalog, error) {
	var catalog exampleCatalog
	if err := yaml.Unmarshal(exampleCatalogYAML, &catalog); err != nil {
		return nil, fmt.Errorf("parse example catalogue: %w", err)
	}
	if len(catalog.Tools) == 0 {
		return nil, fmt.Errorf("example catalogue is empty")
	}
	// Deterministic iteration keeps warm-up logs and tests stable.
	for tool, phrases := range catalog.Tools {
		if len(phrases) == 0 {
			return nil, fmt.Errorf("example catalogue has no phrases for %s", tool)
		}
		sort.Strings(phrases)
	}
	return &catalog, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

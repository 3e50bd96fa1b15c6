package services

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// patternUnmatchedConfidence is reported when no rule fires. It sits at the
// escalation threshold so an unmatched question always moves to the next
// tier.
const patternUnmatchedConfidence = 0.3

// patternRule binds one tool to the phrasings that select it. Confidence is
// a fixed tier value per rule, not learned.
type patternRule struct {
	tool       models.ToolName
	confidence float64
	patterns   []*regexp.Regexp
}

// patternRules is evaluated top to bottom; the first satisfied pattern wins.
// Order is part of the contract: specialized rankings precede generic ones,
// counting precedes revenue so "how many sales" stays a count, and listing
// verbs come last as the weakest signal.
var patternRules = []patternRule{
	{
		tool:       models.ToolBestSellingProducts,
		confidence: 0.95,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bbest[\s-]*sell(?:ing|ers?)\b`),
			regexp.MustCompile(`\btop[\s-]*selling\b`),
			regexp.MustCompile(`\bmost\s+(?:sold|popular)\s+(?:products?|items?)\b`),
			regexp.MustCompile(`\b(?:products?|items?)\s+(?:that\s+)?(?:sell|sold)\s+(?:the\s+)?(?:best|most)\b`),
		},
	},
	{
		tool:       models.ToolTopCustomersBySpending,
		confidence: 0.95,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:top|best|biggest|highest)\s+(?:\d{1,3}\s+)?customers?\b`),
			regexp.MustCompile(`\bcustomers?\s+(?:by|with\s+the\s+(?:highest|most))\s+spend(?:ing)?\b`),
			regexp.MustCompile(`\b(?:biggest|highest|top)\s+spenders?\b`),
			regexp.MustCompile(`\bmost\s+valuable\s+customers?\b`),
		},
	},
	{
		tool:       models.ToolCountDocuments,
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bhow\s+many\b`),
			regexp.MustCompile(`\b(?:number|count)\s+of\b`),
			regexp.MustCompile(`\btotal\s+(?:number|count)\b`),
			regexp.MustCompile(`\bcount\b`),
		},
	},
	{
		tool:       models.ToolCalculateAverage,
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:average|avg|mean)\b`),
		},
	},
	{
		tool:       models.ToolCalculateSum,
		confidence: 0.95,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:total\s+)?(?:revenue|sales|earnings|income|turnover)\b`),
			regexp.MustCompile(`\bhow\s+much\s+(?:did|have|do)\s+i\b`),
			regexp.MustCompile(`\btotal\s+(?:amount|order\s+value)\b`),
			regexp.MustCompile(`\bsum\s+of\b`),
		},
	},
	{
		tool:       models.ToolGroupAndCount,
		confidence: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bbreak\s*down\b`),
			regexp.MustCompile(`\bdistribution\b`),
			regexp.MustCompile(`\bgroup(?:ed)?\s+by\b`),
			regexp.MustCompile(`\b(?:orders?|products?|customers?)\s+(?:by|per)\s+[a-z_]+`),
		},
	},
	{
		tool:       models.ToolGetDateRange,
		confidence: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:last|past|previous)\s+\d{1,3}\s+days?\b`),
			regexp.MustCompile(`\brecent\s+orders?\b`),
		},
	},
	{
		tool:       models.ToolGetTopN,
		confidence: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\btop\s+\d{1,3}\b`),
			regexp.MustCompile(`\b(?:highest|largest|biggest|most\s+expensive)\b`),
		},
	},
	{
		tool:       models.ToolFindDocuments,
		confidence: 0.7,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:show|list|display|find|view)\b`),
			regexp.MustCompile(`\bgive\s+me\b`),
			regexp.MustCompile(`\b(?:all|my)\s+(?:orders?|products?|customers?)\b`),
		},
	},
}

// patternClassifier is the first, near-zero-cost tier: a prioritized table
// of phrase rules with fixed tier confidences. Deterministic and idempotent;
// the same text always yields the same decision.
type patternClassifier struct {
	defaultLimit int
	logger       *zap.Logger
}

// NewPatternClassifier creates the rule-table tier. defaultLimit is used
// when ranking questions do not name a count.
func NewPatternClassifier(defaultLimit int, logger *zap.Logger) Classifier {
	return &patternClassifier{
		defaultLimit: defaultLimit,
		logger:       logger.Named("pattern-classifier"),
	}
}

var _ Classifier = (*patternClassifier)(nil)

func (c *patternClassifier) Name() string { return models.MethodPattern }

func (c *patternClassifier) Classify(ctx context.Context, question models.Question) (models.ToolDecision, error) {
	lower := strings.ToLower(strings.TrimSpace(question.Text))
	if lower == "" {
		return c.unmatched(), nil
	}

	for _, rule := range patternRules {
		for _, pattern := range rule.patterns {
			if !pattern.MatchString(lower) {
				continue
			}

			decision := models.ToolDecision{
				Tool:       rule.tool,
				Params:     buildToolParams(rule.tool, lower, c.defaultLimit),
				Confidence: rule.confidence,
				Method:     models.MethodPattern,
			}

			c.logger.Debug("pattern rule matched",
				zap.String("tool", string(rule.tool)),
				zap.String("pattern", pattern.String()),
				zap.Float64("confidence", rule.confidence))

			return decision, nil
		}
	}

	return c.unmatched(), nil
}

func (c *patternClassifier) unmatched() models.ToolDecision {
	return models.ToolDecision{
		Tool:       models.ToolNone,
		Confidence: patternUnmatchedConfidence,
		Method:     models.MethodPattern,
	}
}

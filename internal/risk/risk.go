// Package risk maps fraud probabilities to decisions, risk levels and actions.
package risk

import (
	"fmt"
	"math"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Recommended actions.
const (
	ActionApprove          = "approve"
	ActionStepUpAuth       = "step_up_authentication"
	ActionManualReview     = "manual_review"
	ActionBlock            = "block"
	ActionNotifyCardholder = "notify_cardholder"
)

// DefaultDecisionThreshold is the probability at or above which a transaction is fraud.
const DefaultDecisionThreshold = 0.5

// DefaultActions is the static action table keyed by risk level.
var DefaultActions = map[domain.RiskLevel][]string{
	domain.RiskLow:    {ActionApprove},
	domain.RiskMedium: {ActionStepUpAuth, ActionManualReview},
	domain.RiskHigh:   {ActionBlock, ActionManualReview, ActionNotifyCardholder},
}

// Policy configures the classifier.
type Policy struct {
	// DecisionThreshold at or above which a transaction is fraud
	DecisionThreshold float64

	// Bands ordered from lowest to highest probability
	Bands []domain.RiskBand

	// Actions recommended per level
	Actions map[domain.RiskLevel][]string
}

// DefaultPolicy returns the standard policy: LOW below 0.3, HIGH from 0.7.
func DefaultPolicy() Policy {
	return PolicyFromConfig(domain.RiskConfig{
		DecisionThreshold: DefaultDecisionThreshold,
		MediumLower:       0.3,
		HighLower:         0.7,
	})
}

// PolicyFromConfig builds a three-band policy from configuration.
func PolicyFromConfig(cfg domain.RiskConfig) Policy {
	return Policy{
		DecisionThreshold: cfg.DecisionThreshold,
		Bands: []domain.RiskBand{
			{Level: domain.RiskLow, Lower: 0, Upper: cfg.MediumLower},
			{Level: domain.RiskMedium, Lower: cfg.MediumLower, Upper: cfg.HighLower},
			{Level: domain.RiskHigh, Lower: cfg.HighLower, Upper: 1},
		},
		Actions: DefaultActions,
	}
}

// Assessment is the outcome of classifying one probability.
type Assessment struct {
	IsFraud    bool
	Level      domain.RiskLevel
	Actions    []string
	Confidence float64
}

// Classifier applies a validated policy. It is immutable and safe for concurrent use.
type Classifier struct {
	threshold float64
	bands     []domain.RiskBand
	actions   map[domain.RiskLevel][]string
}

// NewClassifier validates policy and returns a classifier.
// Bands must start at 0, be contiguous and end at 1.
func NewClassifier(policy Policy) (*Classifier, error) {
	if policy.DecisionThreshold <= 0 || policy.DecisionThreshold > 1 {
		return nil, fmt.Errorf("decision threshold must be in (0, 1], got %v", policy.DecisionThreshold)
	}
	if len(policy.Bands) == 0 {
		return nil, fmt.Errorf("risk policy has no bands")
	}

	prev := 0.0
	for i, b := range policy.Bands {
		if !b.Level.Valid() {
			return nil, fmt.Errorf("band %d has unknown level %q", i, b.Level)
		}
		if b.Lower != prev {
			return nil, fmt.Errorf("band %s starts at %v, expected %v", b.Level, b.Lower, prev)
		}
		if b.Upper <= b.Lower {
			return nil, fmt.Errorf("band %s is empty: [%v, %v)", b.Level, b.Lower, b.Upper)
		}
		prev = b.Upper
	}
	if prev != 1 {
		return nil, fmt.Errorf("risk bands end at %v, expected 1", prev)
	}

	actions := policy.Actions
	if actions == nil {
		actions = DefaultActions
	}
	for _, b := range policy.Bands {
		if _, ok := actions[b.Level]; !ok {
			return nil, fmt.Errorf("no actions configured for level %s", b.Level)
		}
	}

	return &Classifier{
		threshold: policy.DecisionThreshold,
		bands:     append([]domain.RiskBand(nil), policy.Bands...),
		actions:   actions,
	}, nil
}

// Classify maps p to a decision. p must lie in [0, 1]; values outside are clamped.
func (c *Classifier) Classify(p float64) Assessment {
	p = math.Min(math.Max(p, 0), 1)
	level := c.Level(p)

	return Assessment{
		IsFraud:    p >= c.threshold,
		Level:      level,
		Actions:    c.ActionsFor(level),
		Confidence: math.Max(p, 1-p),
	}
}

// Level returns the band containing p.
// Bands are lower inclusive, upper exclusive, except the last which includes 1.0.
func (c *Classifier) Level(p float64) domain.RiskLevel {
	last := len(c.bands) - 1
	for i, b := range c.bands {
		if p >= b.Lower && (p < b.Upper || (i == last && p <= b.Upper)) {
			return b.Level
		}
	}
	return c.bands[last].Level
}

// ActionsFor returns a copy of the actions recommended for level.
func (c *Classifier) ActionsFor(level domain.RiskLevel) []string {
	src := c.actions[level]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Threshold returns the decision threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Bands returns a copy of the configured bands.
func (c *Classifier) Bands() []domain.RiskBand {
	return append([]domain.RiskBand(nil), c.bands...)
}

// ShouldAlert returns true if the result warrants an alert.
func ShouldAlert(result *domain.ScoringResult) bool {
	return result.IsFraud || result.RiskLevel == domain.RiskHigh
}

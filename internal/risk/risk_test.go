package risk

import (
	"testing"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

func TestClassify(t *testing.T) {
	c, err := NewClassifier(DefaultPolicy())
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}

	tests := []struct {
		p       float64
		level   domain.RiskLevel
		isFraud bool
	}{
		{0.0, domain.RiskLow, false},
		{0.1, domain.RiskLow, false},
		{0.2999, domain.RiskLow, false},
		{0.3, domain.RiskMedium, false},
		{0.4999, domain.RiskMedium, false},
		{0.5, domain.RiskMedium, true},
		{0.6999, domain.RiskMedium, true},
		{0.7, domain.RiskHigh, true},
		{0.95, domain.RiskHigh, true},
		{1.0, domain.RiskHigh, true},
	}

	for _, tt := range tests {
		a := c.Classify(tt.p)
		if a.Level != tt.level {
			t.Errorf("Classify(%v).Level = %s, want %s", tt.p, a.Level, tt.level)
		}
		if a.IsFraud != tt.isFraud {
			t.Errorf("Classify(%v).IsFraud = %v, want %v", tt.p, a.IsFraud, tt.isFraud)
		}
	}
}

func TestClassifyActions(t *testing.T) {
	c, err := NewClassifier(DefaultPolicy())
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}

	t.Run("Low", func(t *testing.T) {
		a := c.Classify(0.1)
		if len(a.Actions) != 1 || a.Actions[0] != ActionApprove {
			t.Errorf("expected [approve], got %v", a.Actions)
		}
	})

	t.Run("Medium", func(t *testing.T) {
		a := c.Classify(0.5)
		want := []string{ActionStepUpAuth, ActionManualReview}
		if !equal(a.Actions, want) {
			t.Errorf("expected %v, got %v", want, a.Actions)
		}
	})

	t.Run("High", func(t *testing.T) {
		a := c.Classify(0.95)
		want := []string{ActionBlock, ActionManualReview, ActionNotifyCardholder}
		if !equal(a.Actions, want) {
			t.Errorf("expected %v, got %v", want, a.Actions)
		}
	})

	t.Run("ActionsAreCopies", func(t *testing.T) {
		a := c.Classify(0.95)
		a.Actions[0] = "tampered"

		b := c.Classify(0.95)
		if b.Actions[0] != ActionBlock {
			t.Errorf("action table was mutated: %v", b.Actions)
		}
		if DefaultActions[domain.RiskHigh][0] != ActionBlock {
			t.Errorf("default table was mutated: %v", DefaultActions[domain.RiskHigh])
		}
	})
}

func TestConfidence(t *testing.T) {
	c, _ := NewClassifier(DefaultPolicy())

	cases := map[float64]float64{
		0.0:  1.0,
		0.2:  0.8,
		0.5:  0.5,
		0.95: 0.95,
	}
	for p, want := range cases {
		if got := c.Classify(p).Confidence; got != want {
			t.Errorf("Classify(%v).Confidence = %v, want %v", p, got, want)
		}
	}
}

func TestCustomThreshold(t *testing.T) {
	policy := DefaultPolicy()
	policy.DecisionThreshold = 0.8

	c, err := NewClassifier(policy)
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}

	a := c.Classify(0.75)
	if a.IsFraud {
		t.Error("0.75 should not be fraud with threshold 0.8")
	}
	if a.Level != domain.RiskHigh {
		t.Errorf("expected HIGH, got %s", a.Level)
	}
	if c.Threshold() != 0.8 {
		t.Errorf("expected threshold 0.8, got %v", c.Threshold())
	}
}

func TestPolicyFromConfig(t *testing.T) {
	c, err := NewClassifier(PolicyFromConfig(domain.RiskConfig{
		DecisionThreshold: 0.5,
		MediumLower:       0.2,
		HighLower:         0.9,
	}))
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}

	if got := c.Level(0.25); got != domain.RiskMedium {
		t.Errorf("expected MEDIUM, got %s", got)
	}
	if got := c.Level(0.89); got != domain.RiskMedium {
		t.Errorf("expected MEDIUM, got %s", got)
	}
	if bands := c.Bands(); len(bands) != 3 || bands[2].Lower != 0.9 {
		t.Errorf("unexpected bands: %+v", bands)
	}
}

func TestNewClassifierRejectsInvalidPolicy(t *testing.T) {
	valid := DefaultPolicy()

	tests := []struct {
		name   string
		mutate func(p *Policy)
	}{
		{"ZeroThreshold", func(p *Policy) { p.DecisionThreshold = 0 }},
		{"ThresholdAboveOne", func(p *Policy) { p.DecisionThreshold = 1.2 }},
		{"NoBands", func(p *Policy) { p.Bands = nil }},
		{"Gap", func(p *Policy) {
			p.Bands = []domain.RiskBand{
				{Level: domain.RiskLow, Lower: 0, Upper: 0.3},
				{Level: domain.RiskHigh, Lower: 0.4, Upper: 1},
			}
		}},
		{"DoesNotStartAtZero", func(p *Policy) {
			p.Bands = []domain.RiskBand{{Level: domain.RiskHigh, Lower: 0.1, Upper: 1}}
		}},
		{"DoesNotReachOne", func(p *Policy) {
			p.Bands = []domain.RiskBand{{Level: domain.RiskLow, Lower: 0, Upper: 0.9}}
		}},
		{"UnknownLevel", func(p *Policy) {
			p.Bands = []domain.RiskBand{{Level: "CRITICAL", Lower: 0, Upper: 1}}
		}},
		{"MissingActions", func(p *Policy) {
			p.Actions = map[domain.RiskLevel][]string{domain.RiskLow: {ActionApprove}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			p.Bands = append([]domain.RiskBand(nil), valid.Bands...)
			tt.mutate(&p)
			if _, err := NewClassifier(p); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestShouldAlert(t *testing.T) {
	if ShouldAlert(&domain.ScoringResult{IsFraud: false, RiskLevel: domain.RiskLow}) {
		t.Error("low risk result should not alert")
	}
	if !ShouldAlert(&domain.ScoringResult{IsFraud: true, RiskLevel: domain.RiskMedium}) {
		t.Error("fraud result should alert")
	}
	if !ShouldAlert(&domain.ScoringResult{IsFraud: false, RiskLevel: domain.RiskHigh}) {
		t.Error("high risk result should alert")
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

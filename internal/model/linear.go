package model

import "fmt"

// LogisticRegression is a linear model with a logistic link.
type LogisticRegression struct {
	Intercept    float64
	Coefficients []float64
}

// NewLogisticRegression validates the coefficients.
func NewLogisticRegression(intercept float64, coefficients []float64) (*LogisticRegression, error) {
	if len(coefficients) == 0 {
		return nil, fmt.Errorf("logistic regression has no coefficients")
	}
	coef := make([]float64, len(coefficients))
	copy(coef, coefficients)
	return &LogisticRegression{Intercept: intercept, Coefficients: coef}, nil
}

func (m *LogisticRegression) PredictProba(x []float64) (float64, error) {
	if len(x) != len(m.Coefficients) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.Coefficients), len(x))
	}
	z := m.Intercept
	for i, w := range m.Coefficients {
		z += w * x[i]
	}
	return sigmoid(z), nil
}

func (m *LogisticRegression) NumFeatures() int {
	return len(m.Coefficients)
}

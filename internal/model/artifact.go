package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Artifact types.
const (
	TypeLogisticRegression = "logistic_regression"
	TypeGradientBoosting   = "gradient_boosting"
	TypeExpression         = "expression"
)

// artifact is the on-disk JSON form of a trained classifier.
type artifact struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	NFeatures int    `json:"n_features"`

	// logistic_regression
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`

	// gradient_boosting
	InitScore    float64 `json:"init_score"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []Tree  `json:"trees"`

	// expression
	FeatureNames []string `json:"feature_names"`
	Expression   string   `json:"expression"`
	Link         string   `json:"link"`
}

// Load reads a model artifact from path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	return Parse(data)
}

// Parse builds a classifier from artifact JSON.
func Parse(data []byte) (*Model, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}

	var (
		c   Classifier
		err error
	)
	switch a.Type {
	case TypeLogisticRegression:
		c, err = NewLogisticRegression(a.Intercept, a.Coefficients)
	case TypeGradientBoosting:
		c, err = NewGradientBoosting(a.NFeatures, a.InitScore, a.LearningRate, a.Trees)
	case TypeExpression:
		c, err = NewExpressionModel(a.FeatureNames, a.Expression, a.Link)
	default:
		return nil, fmt.Errorf("unsupported model type %q", a.Type)
	}
	if err != nil {
		return nil, err
	}

	if a.NFeatures > 0 && a.NFeatures != c.NumFeatures() {
		return nil, fmt.Errorf("model artifact declares %d features but %s takes %d",
			a.NFeatures, a.Type, c.NumFeatures())
	}

	return &Model{Classifier: c, Type: a.Type, Version: a.Version}, nil
}

// Package model binds trained classifiers and invokes them on feature vectors.
package model

import (
	"fmt"
	"math"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Classifier is a trained binary classifier.
type Classifier interface {
	// PredictProba returns the probability of the positive (fraud) class.
	PredictProba(x []float64) (float64, error)

	// NumFeatures returns the input dimension the classifier was trained with.
	NumFeatures() int
}

// Model is a loaded classifier together with its artifact description.
type Model struct {
	Classifier
	Type    string
	Version string
}

// PredictProbability invokes c on vec and returns a probability in [0, 1].
// It never substitutes a default value: every failure is a *domain.ModelError.
func PredictProbability(vec []float64, c Classifier) (float64, error) {
	if c == nil {
		return 0, domain.ErrModelUnavailable
	}
	if err := CheckCompatibility(len(vec), c); err != nil {
		return 0, err
	}

	p, err := c.PredictProba(vec)
	if err != nil {
		return 0, &domain.ModelError{Kind: domain.ModelErrorInference, Err: err}
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, &domain.ModelError{
			Kind: domain.ModelErrorOutput,
			Err:  fmt.Errorf("probability %v outside [0, 1]", p),
		}
	}
	return p, nil
}

// CheckCompatibility verifies that vectors of length n can be fed to c.
// A mismatch is fatal: the model and metadata were not produced together.
func CheckCompatibility(n int, c Classifier) error {
	if want := c.NumFeatures(); want != n {
		return &domain.ModelError{
			Kind:  domain.ModelErrorDimension,
			Fatal: true,
			Err:   fmt.Errorf("classifier expects %d features, vector has %d", want, n),
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}

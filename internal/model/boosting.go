package model

import (
	"fmt"
)

// GradientBoosting is an additive ensemble of regression trees producing
// log-odds, as exported from a binary gradient boosting classifier.
type GradientBoosting struct {
	InitScore    float64
	LearningRate float64
	Trees        []Tree
	nFeatures    int
}

// Tree is a flat regression tree. Node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a split or a leaf. Samples with x[Feature] <= Threshold go left.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// NewGradientBoosting validates tree structure against nFeatures.
// Children must come after their parent so evaluation always terminates.
func NewGradientBoosting(nFeatures int, initScore, learningRate float64, trees []Tree) (*GradientBoosting, error) {
	if nFeatures <= 0 {
		return nil, fmt.Errorf("gradient boosting: n_features must be positive")
	}
	if learningRate <= 0 {
		return nil, fmt.Errorf("gradient boosting: learning_rate must be positive")
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("gradient boosting: no trees")
	}

	for t, tree := range trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("gradient boosting: tree %d is empty", t)
		}
		for i, n := range tree.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= nFeatures {
				return nil, fmt.Errorf("gradient boosting: tree %d node %d splits on feature %d of %d", t, i, n.Feature, nFeatures)
			}
			for _, child := range []int{n.Left, n.Right} {
				if child <= i || child >= len(tree.Nodes) {
					return nil, fmt.Errorf("gradient boosting: tree %d node %d has invalid child %d", t, i, child)
				}
			}
		}
	}

	return &GradientBoosting{
		InitScore:    initScore,
		LearningRate: learningRate,
		Trees:        trees,
		nFeatures:    nFeatures,
	}, nil
}

func (m *GradientBoosting) PredictProba(x []float64) (float64, error) {
	if len(x) != m.nFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", m.nFeatures, len(x))
	}
	raw := m.InitScore
	for i := range m.Trees {
		raw += m.LearningRate * m.Trees[i].eval(x)
	}
	return sigmoid(raw), nil
}

func (m *GradientBoosting) NumFeatures() int {
	return m.nFeatures
}

func (t *Tree) eval(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

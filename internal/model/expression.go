package model

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Output links for expression models.
const (
	LinkIdentity = "identity"
	LinkLogistic = "logistic"
)

// ExpressionModel scores a vector with a CEL expression over named features.
// Each feature is bound as a double variable; the whole vector is bound as x.
type ExpressionModel struct {
	names   []string
	program cel.Program
	link    string
}

// NewExpressionModel compiles expr with one variable per feature name.
// With the logistic link the expression yields log-odds, otherwise a probability.
func NewExpressionModel(names []string, expr, link string) (*ExpressionModel, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("expression model: feature_names is empty")
	}
	switch link {
	case "":
		link = LinkIdentity
	case LinkIdentity, LinkLogistic:
	default:
		return nil, fmt.Errorf("expression model: unsupported link %q", link)
	}

	opts := make([]cel.EnvOption, 0, len(names)+1)
	opts = append(opts, cel.Variable("x", cel.ListType(cel.DoubleType)))
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.DoubleType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile model expression: %w", issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("model expression must return bool, int, or double, got %s", outputType)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for model expression: %w", err)
	}

	return &ExpressionModel{
		names:   append([]string(nil), names...),
		program: program,
		link:    link,
	}, nil
}

func (m *ExpressionModel) PredictProba(x []float64) (float64, error) {
	if len(x) != len(m.names) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.names), len(x))
	}

	activation := make(map[string]any, len(m.names)+1)
	activation["x"] = x
	for i, name := range m.names {
		activation[name] = x[i]
	}

	out, _, err := m.program.Eval(activation)
	if err != nil {
		return 0, fmt.Errorf("expression evaluation failed: %w", err)
	}

	score, err := toScore(out)
	if err != nil {
		return 0, err
	}
	if m.link == LinkLogistic {
		return sigmoid(score), nil
	}
	return score, nil
}

func (m *ExpressionModel) NumFeatures() int {
	return len(m.names)
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) (float64, error) {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	case types.Double:
		return float64(v), nil
	case types.Int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("model expression returned %s, expected bool, int, or double", val.Type().TypeName())
	}
}

// Package rules evaluates configurable movement classification rules with CEL.
package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/valuation"
)

// Default rules: invoice-sourced movements are fiscal, manual ones physical.
const (
	DefaultFiscalRule   = `source == "invoice"`
	DefaultPhysicalRule = `source == "manual"`
)

// CELClassifier assigns movements to reconciliation views using two boolean
// CEL expressions. Variables available to the expressions:
//
//	source, kind, direction, document_ref  string
//	quantity                               double
type CELClassifier struct {
	fiscal   cel.Program
	physical cel.Program
}

var _ valuation.Classifier = (*CELClassifier)(nil)

// NewCELClassifier compiles both rules. Empty rules fall back to the defaults.
func NewCELClassifier(fiscalRule, physicalRule string) (*CELClassifier, error) {
	if fiscalRule == "" {
		fiscalRule = DefaultFiscalRule
	}
	if physicalRule == "" {
		physicalRule = DefaultPhysicalRule
	}

	env, err := cel.NewEnv(
		cel.Variable("source", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("direction", cel.StringType),
		cel.Variable("document_ref", cel.StringType),
		cel.Variable("quantity", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	fiscal, err := compile(env, fiscalRule)
	if err != nil {
		return nil, fmt.Errorf("fiscal rule: %w", err)
	}
	physical, err := compile(env, physicalRule)
	if err != nil {
		return nil, fmt.Errorf("physical rule: %w", err)
	}
	return &CELClassifier{fiscal: fiscal, physical: physical}, nil
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return prg, nil
}

// Classify implements valuation.Classifier.
func (c *CELClassifier) Classify(m *entity.Movement) (valuation.Class, error) {
	vars := map[string]any{
		"source":       string(m.Source),
		"kind":         string(m.Kind),
		"direction":    string(m.Direction),
		"document_ref": m.DocumentRef,
		"quantity":     m.Quantity.Float64(),
	}

	fiscal, err := eval(c.fiscal, vars)
	if err != nil {
		return valuation.Class{}, fmt.Errorf("fiscal rule: %w", err)
	}
	physical, err := eval(c.physical, vars)
	if err != nil {
		return valuation.Class{}, fmt.Errorf("physical rule: %w", err)
	}
	return valuation.Class{Fiscal: fiscal, Physical: physical}, nil
}

func eval(prg cel.Program, vars map[string]any) (bool, error) {
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule returned %T, want bool", out.Value())
	}
	return b, nil
}

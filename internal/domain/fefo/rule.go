package fefo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/domain/inventory"
)

// Rule is a compiled CEL predicate applied to each candidate batch after the
// base eligibility filter. Available variables:
//
//	days_to_expiry int     whole days until expiry, -1 when undated
//	has_expiry     bool
//	available      double  available quantity in units
//	lot_no         string
//	sku            string
//
// Example: !has_expiry || days_to_expiry >= 3
type Rule struct {
	expr string
	prg  cel.Program
}

// CompileRule parses and type-checks expr. An empty expr yields a nil rule,
// which accepts everything.
func CompileRule(expr string) (*Rule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("days_to_expiry", cel.IntType),
		cel.Variable("has_expiry", cel.BoolType),
		cel.Variable("available", cel.DoubleType),
		cel.Variable("lot_no", cel.StringType),
		cel.Variable("sku", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewValidation("invalid eligibility rule").
			WithDetail("rule", expr).
			WithDetail("error", iss.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apperror.NewValidation("eligibility rule must evaluate to bool").
			WithDetail("rule", expr).
			WithDetail("type", ast.OutputType().String())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build cel program: %w", err)
	}
	return &Rule{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (r *Rule) String() string {
	if r == nil {
		return ""
	}
	return r.expr
}

// Accept evaluates the rule for b.
func (r *Rule) Accept(b *inventory.Batch, sku string, now time.Time) (bool, error) {
	if r == nil {
		return true, nil
	}
	out, _, err := r.prg.Eval(map[string]any{
		"days_to_expiry": int64(b.DaysToExpiry(now)),
		"has_expiry":     b.ExpiryDate != nil,
		"available":      b.AvailableQty.Float64(),
		"lot_no":         b.LotNo,
		"sku":            sku,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate eligibility rule for batch %s: %w", b.ID, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("eligibility rule returned %T", out.Value())
	}
	return ok, nil
}

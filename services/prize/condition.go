package prize

import (
	"fmt"
	"sync"

	"smallbiznis-gamification/services/scoring"

	"github.com/google/cel-go/cel"
)

// Variables visible to a prize condition expression.
const (
	VarPoints                = "points"
	VarRank                  = "rank"
	VarDeliverablesCompleted = "deliverables_completed"
	VarDeliverablesOnTime    = "deliverables_on_time"
	VarTotalViews            = "total_views"
	VarTotalSales            = "total_sales"
)

// Evaluator compiles condition expressions once and keeps the programs.
type Evaluator struct {
	env      *cel.Env
	programs sync.Map
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarPoints, cel.IntType),
		cel.Variable(VarRank, cel.IntType),
		cel.Variable(VarDeliverablesCompleted, cel.IntType),
		cel.Variable(VarDeliverablesOnTime, cel.IntType),
		cel.Variable(VarTotalViews, cel.IntType),
		cel.Variable(VarTotalSales, cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &Evaluator{env: env}, nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	if p, ok := e.programs.Load(expr); ok {
		return p.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return a boolean, got %s", ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	e.programs.Store(expr, prg)
	return prg, nil
}

// Validate reports whether expr compiles to a boolean expression.
func (e *Evaluator) Validate(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := e.compile(expr)
	return err
}

// Eligible evaluates expr against the creator's standing. An empty
// expression always passes.
func (e *Evaluator) Eligible(expr string, vars map[string]any) (bool, error) {
	if expr == "" {
		return true, nil
	}
	prg, err := e.compile(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("expression must return a boolean, got %T", out.Value())
	}
	return ok, nil
}

// ConditionVars builds the variable set for one creator. stats may be nil for
// a creator without a stats row.
func ConditionVars(points int64, rank int, stats *scoring.CampaignCreatorStats) map[string]any {
	vars := map[string]any{
		VarPoints:                points,
		VarRank:                  int64(rank),
		VarDeliverablesCompleted: int64(0),
		VarDeliverablesOnTime:    int64(0),
		VarTotalViews:            int64(0),
		VarTotalSales:            int64(0),
	}
	if stats != nil {
		vars[VarDeliverablesCompleted] = stats.DeliverablesCompleted
		vars[VarDeliverablesOnTime] = stats.DeliverablesOnTime
		vars[VarTotalViews] = stats.TotalViews
		vars[VarTotalSales] = stats.TotalSales
	}
	return vars
}

// Package decision implements the C3 decision engine: selecting the
// best-matching DecisionConfig for a set of computed Signals (spec §4.3).
package decision

import (
	"github.com/cortexrouter/semantic-proxy/internal/logging"
	"github.com/cortexrouter/semantic-proxy/internal/metrics"
	"github.com/cortexrouter/semantic-proxy/internal/routerconfig"
)

var decisionLog = logging.WithComponent("decision")

// MatchedCondition describes one rule that was evaluated against the
// signal set, for observability and for building the DecisionResult.
type MatchedCondition struct {
	Condition routerconfig.Condition
	Matched   bool
}

// Result is the outcome of evaluating one DecisionConfig.
type Result struct {
	Decision   routerconfig.DecisionConfig
	Confidence float64
	Matched    []MatchedCondition
}

// Engine selects the highest-confidence passing DecisionConfig for a given
// set of signals, falling back to "no decision" when none pass.
type Engine struct {
	Decisions []routerconfig.DecisionConfig
}

// NewEngine builds an Engine over a fixed, ordered decision list. Order is
// significant: Select breaks confidence ties by earlier declaration order.
func NewEngine(decisions []routerconfig.DecisionConfig) *Engine {
	return &Engine{Decisions: decisions}
}

// Select evaluates every configured DecisionConfig against signals (keyed
// by SignalType) and returns the highest-confidence passing one. Ties are
// broken by earlier position in the configured decision list. ok is false
// when no DecisionConfig passes, in which case the caller falls back to
// the RouterConfig's default Model.
func (e *Engine) Select(signals map[routerconfig.SignalType]routerconfig.Signal) (Result, bool) {
	var (
		best  Result
		found bool
	)

	for _, d := range e.Decisions {
		res := evaluate(d, signals)

		if !passes(d, res.Matched) {
			continue
		}

		res.Confidence = confidence(res.Matched)

		if !found || res.Confidence > best.Confidence {
			best = res
			found = true
		}
	}

	if found {
		metrics.DecisionSelectedTotal.WithLabelValues(best.Decision.Name).Inc()
		decisionLog.Info("decision selected", "decision", best.Decision.Name, "confidence", best.Confidence)
	} else {
		decisionLog.Info("decision selected", "decision", "", "confidence", 0.0)
	}

	return best, found
}

// evaluate checks every rule in d against signals and records which ones
// matched, without yet deciding pass/fail (that depends on d.Operator).
func evaluate(d routerconfig.DecisionConfig, signals map[routerconfig.SignalType]routerconfig.Signal) Result {
	matched := make([]MatchedCondition, len(d.Rules))

	for i, cond := range d.Rules {
		matched[i] = MatchedCondition{
			Condition: cond,
			Matched:   conditionMatches(cond, signals),
		}
	}

	return Result{Decision: d, Matched: matched}
}

// conditionMatches compares the *runtime* Signal's own type against the
// Condition's expected signal type, then applies the operator to the
// matching signal's value. A Condition whose expected signal type has no
// corresponding runtime Signal never matches.
func conditionMatches(cond routerconfig.Condition, signals map[routerconfig.SignalType]routerconfig.Signal) bool {
	sig, ok := signals[cond.Expected.SignalType]
	if !ok {
		return false
	}

	if sig.SignalType() != cond.Expected.SignalType {
		return false
	}

	switch s := sig.(type) {
	case routerconfig.ComplexitySignal:
		return applyNumericOperator(cond.Operator, s.Score, cond.Expected.NumericValue)
	case routerconfig.UseCaseSignal:
		return applyLabelOperator(cond.Operator, s.Label, cond.Expected.Label)
	default:
		return false
	}
}

func applyNumericOperator(op routerconfig.Operator, actual, expected float64) bool {
	switch op {
	case routerconfig.OpEQ:
		return actual == expected
	case routerconfig.OpNE:
		return actual != expected
	case routerconfig.OpGT:
		return actual > expected
	case routerconfig.OpLT:
		return actual < expected
	default:
		return false
	}
}

func applyLabelOperator(op routerconfig.Operator, actual, expected string) bool {
	switch op {
	case routerconfig.OpEQ:
		return actual == expected
	case routerconfig.OpNE:
		return actual != expected
	default:
		// GT/LT are not defined over labels; config validation rejects this
		// combination before it ever reaches evaluation.
		return false
	}
}

// passes applies the DecisionConfig's rule-combination operator: AND
// requires every rule to match, OR requires at least one. A DecisionConfig
// with zero rules therefore passes under AND (with confidence 0, so any
// other passing decision outranks it) and never passes under OR.
func passes(d routerconfig.DecisionConfig, matched []MatchedCondition) bool {
	switch d.Operator {
	case routerconfig.RuleOR:
		for _, m := range matched {
			if m.Matched {
				return true
			}
		}

		return false
	default: // RuleAND
		for _, m := range matched {
			if !m.Matched {
				return false
			}
		}

		return true
	}
}

// confidence is the matched-rule fraction m/k, 0 when there are no rules.
func confidence(matched []MatchedCondition) float64 {
	if len(matched) == 0 {
		return 0
	}

	m := 0

	for _, c := range matched {
		if c.Matched {
			m++
		}
	}

	return float64(m) / float64(len(matched))
}

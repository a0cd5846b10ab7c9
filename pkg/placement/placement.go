// Package placement implements PlacementPolicy (spec §4.4): a pure
// select(executors, options) that filters executors by a set of boolean
// requirement expressions and ranks survivors by a scalar rank expression.
//
// Expression evaluation must be sandboxed (spec §9's design note rejects
// the source's full-interpreter-access model as a security hazard): this
// package evaluates expressions with github.com/PaesslerAG/gval rather than
// a general-purpose scripting engine. gval.Evaluable only ever sees the
// fixed variable bindings passed to Evaluate — it has no access to the
// Go process, the filesystem, or anything outside its parameter map, and
// the custom Language below adds exactly two extra operators (in, glob)
// on top of gval's arithmetic/comparison/boolean core.
package placement

import (
	"path"
	"sort"

	"github.com/PaesslerAG/gval"
	"github.com/fleetform/fleetsched/pkg/types"
)

// language is the sandboxed expression grammar used for both requirement
// and rank expressions: gval's base arithmetic/comparison/boolean
// operators, plus set-membership (`in`) and glob matching (`glob(...)`),
// which are the idioms spec §9 calls out as sufficient for the source's
// expected usage.
var language = gval.NewLanguage(
	gval.Base(),
	gval.InfixOperator("in", func(a, b interface{}) (interface{}, error) {
		needle, ok := a.(string)
		if !ok {
			return false, nil
		}
		list, ok := b.([]interface{})
		if !ok {
			if strs, ok := b.([]string); ok {
				for _, s := range strs {
					if s == needle {
						return true, nil
					}
				}
				return false, nil
			}
			return false, nil
		}
		for _, item := range list {
			if s, ok := item.(string); ok && s == needle {
				return true, nil
			}
		}
		return false, nil
	}),
	gval.Function("glob", func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return false, nil
		}
		subject, ok1 := args[0].(string)
		pattern, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return false, nil
		}
		matched, err := path.Match(pattern, subject)
		if err != nil {
			return false, nil
		}
		return matched, nil
	}),
)

// Select evaluates options against executors and returns the top-ranked
// survivor, or (nil, false) when no executor satisfies every requirement.
// Select is pure: it performs no I/O and mutates neither executors nor
// options.
func Select(executors []types.Executor, options types.PlacementOptions) (*types.Executor, bool) {
	survivors := filter(executors, options.Requirements)
	if len(survivors) == 0 {
		return nil, false
	}
	ranked := rank(survivors, options.Rank)
	return &ranked[0], true
}

func filter(executors []types.Executor, requirements []string) []types.Executor {
	var out []types.Executor
	for _, ex := range executors {
		if satisfiesAll(ex, requirements) {
			out = append(out, ex)
		}
	}
	return out
}

// satisfiesAll evaluates every requirement against ex's bindings.
// Unparsable or non-boolean expressions are treated as failing
// requirements (spec §4.4: "callers treat unparsable expressions as 'no
// executors match'"), so a single bad requirement filters the executor
// out rather than aborting selection.
func satisfiesAll(ex types.Executor, requirements []string) bool {
	tags := make([]string, 0, len(ex.Tags))
	for t := range ex.Tags {
		tags = append(tags, t)
	}
	bindings := map[string]interface{}{
		"tags":   tags,
		"host":   ex.Host,
		"domain": ex.Domain,
	}
	for _, req := range requirements {
		result, err := language.Evaluate(req, bindings)
		if err != nil {
			return false
		}
		val, isBool := result.(bool)
		if !isBool || !val {
			return false
		}
	}
	return true
}

// scored pairs one survivor with its rank score, keeping them together
// through the sort so stability can be judged on original input order.
type scored struct {
	executor types.Executor
	score    float64
}

// rank orders survivors by the rank expression, stable over input order
// for ties (spec §4.4). An unset or unparsable rank expression falls back
// to the default: minimize container count.
func rank(survivors []types.Executor, rankExpr string) []types.Executor {
	pairs := make([]scored, len(survivors))
	for i, ex := range survivors {
		pairs[i] = scored{executor: ex, score: rankScore(ex, rankExpr)}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].score > pairs[j].score
	})
	out := make([]types.Executor, len(pairs))
	for i, p := range pairs {
		out[i] = p.executor
	}
	return out
}

func rankScore(ex types.Executor, rankExpr string) float64 {
	ncont := float64(len(ex.Containers()))
	if rankExpr == "" {
		return -ncont
	}
	result, err := language.Evaluate(rankExpr, map[string]interface{}{"ncont": ncont})
	if err != nil {
		return -ncont
	}
	switch v := result.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return -ncont
	}
}

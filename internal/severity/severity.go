// Package severity classifies detected changes using an ordered rule table.
//
// Rule predicates are CUE expressions evaluated against the event context
// only (e.g. "loss > 50", "hop_changed && loss > 0"). The evaluator is
// hermetic: a predicate can reference nothing beyond the named context
// fields, and a malformed predicate is treated as non-matching.
package severity

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Rule maps a predicate to a classification tag and log level.
type Rule struct {
	Match string
	Tag   string
	Level string
}

// Context is the set of named values a predicate may reference.
type Context map[string]any

// Engine evaluates rules in declared order; the first match wins.
type Engine struct {
	rules []Rule
	cctx  *cue.Context
}

// NewEngine builds an engine over the given ordered rule list.
func NewEngine(rules []Rule) *Engine {
	return &Engine{rules: rules, cctx: cuecontext.New()}
}

// Evaluate returns the first matching rule's (tag, level). When no rule
// matches, ok is false and the caller applies its own default level.
// Predicates that fail to compile or do not yield a boolean are skipped.
func (e *Engine) Evaluate(ctx Context) (tag, level string, ok bool) {
	if len(e.rules) == 0 {
		return "", "", false
	}
	scope := e.cctx.Encode(map[string]any(ctx))
	if scope.Err() != nil {
		return "", "", false
	}
	for _, r := range e.rules {
		if r.Match == "" {
			continue
		}
		v := e.cctx.CompileString(r.Match, cue.Scope(scope))
		if v.Err() != nil {
			continue
		}
		matched, err := v.Bool()
		if err != nil {
			continue
		}
		if matched {
			return r.Tag, r.Level, true
		}
	}
	return "", "", false
}

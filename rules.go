package condcache

import (
	"context"
	"net/http"
)

// Next invokes the remainder of the rule chain and, at the innermost position,
// the storage lookup and origin continuation.
type Next func(ctx context.Context) Verdict

// Rule is one link of the evaluation chain. Request-phase rules inspect the
// exchange and may veto by returning Miss without calling next; response-phase
// rules call next first and act on the verdict coming back up. Rules never
// return errors: anything unparseable fails open.
type Rule interface {
	// Name identifies the rule in logs and metrics.
	Name() string

	// Apply evaluates the rule for ex. next runs the rest of the chain.
	Apply(ctx context.Context, ex *Exchange, next Next) Verdict
}

// Exchange carries the per-evaluation state threaded through the rule chain.
type Exchange struct {
	engine    *Engine
	worker    Worker
	req       *http.Request
	vals      *Validators
	fromCache bool
}

// Request returns the immutable request under evaluation.
func (ex *Exchange) Request() *http.Request { return ex.req }

// Validators returns the parsed conditional headers of the request.
func (ex *Exchange) Validators() *Validators { return ex.vals }

// FromCache reports whether the verdict travelling up the chain was served
// from the store rather than the origin continuation. Only meaningful inside
// response-phase rules.
func (ex *Exchange) FromCache() bool { return ex.fromCache }

// veto records a rule veto and returns Miss.
func (ex *Exchange) veto(rule Rule) Verdict {
	e := ex.engine
	e.collector.RecordRuleVeto(e.name, rule.Name())
	e.log().Debug("rule vetoed caching",
		"rule", rule.Name(),
		"method", ex.req.Method,
		"url", ex.req.URL.String())
	return Miss()
}

// defaultRules returns the engine's rule chain in registration order. The
// chain is folded right to left, so the first rules run first on the way in
// and last on the way out: the credential and cache-control rules gate the
// request, and among the response rules earlier registration means higher
// precedence, matching RFC 9110 Section 13.2.2.
func defaultRules(e *Engine) []Rule {
	return []Rule{
		credentialRule{headers: e.credentialHeaders},
		cacheControlRule{},
		ifMatchRule{},
		ifNoneMatchRule{},
		lastModifiedRule{},
		rangeRule{},
	}
}

// buildChain folds rules right to left around terminal, producing the single
// continuation that Evaluate runs. The rule list is data: reordering it
// reorders precedence.
func buildChain(rules []Rule, ex *Exchange, terminal Next) Next {
	next := terminal
	for i := len(rules) - 1; i >= 0; i-- {
		rule := rules[i]
		inner := next
		next = func(ctx context.Context) Verdict {
			return rule.Apply(ctx, ex, inner)
		}
	}
	return next
}

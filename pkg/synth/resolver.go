package synth

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Environment is the per-trace, per-span variable scope a template is
// resolved against: scenario-level vars (resolved once), the resolved
// attributes of the immediate parent span, and the context_key chosen by
// this span's own export_context_as, once resolved.
type Environment struct {
	Rng              *rand.Rand
	Vars             map[string]any
	ParentAttributes map[string]any
	ContextKeyValue  any
	ContextKeySet    bool
}

// childEnv returns a new Environment for a child span: same RNG stream and
// scenario vars, parent attributes taken from this span's own resolved
// attributes, context_key reset (each span resolves its own).
func (e *Environment) childEnv(resolvedAttrs map[string]any) *Environment {
	return &Environment{
		Rng:              e.Rng,
		Vars:             e.Vars,
		ParentAttributes: resolvedAttrs,
	}
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
	"curl/8.4.0",
	"python-requests/2.31.0",
}

func (n funcCallNode) eval(env *Environment) (any, error) {
	switch n.name {
	case "time.iso":
		return time.Now().UTC().Format(time.RFC3339Nano), nil
	case "random.uuid":
		return uuid.New().String(), nil
	case "random.ipv4":
		return fmt.Sprintf("%d.%d.%d.%d", env.Rng.IntN(256), env.Rng.IntN(256), env.Rng.IntN(256), env.Rng.IntN(256)), nil
	case "random.user_agent":
		return userAgents[env.Rng.IntN(len(userAgents))], nil
	case "random.int":
		lo, hi, err := intArgs(env, n.args)
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return nil, fmt.Errorf("random.int: hi %d < lo %d", hi, lo)
		}
		return lo + env.Rng.IntN(hi-lo+1), nil
	case "random.float":
		lo, hi, err := floatArgs(env, n.args)
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return nil, fmt.Errorf("random.float: hi %v < lo %v", hi, lo)
		}
		return lo + env.Rng.Float64()*(hi-lo), nil
	case "random.choice":
		if len(n.args) != 1 {
			return nil, fmt.Errorf("random.choice: expected one list argument")
		}
		v, err := n.args[0].eval(env)
		if err != nil {
			return nil, err
		}
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("random.choice: argument must be a non-empty list")
		}
		return list[env.Rng.IntN(len(list))], nil
	default:
		return nil, fmt.Errorf("unknown function %q", n.name)
	}
}

func intArgs(env *Environment, args []exprNode) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("expected 2 arguments, got %d", len(args))
	}
	lo, err := evalInt(env, args[0])
	if err != nil {
		return 0, 0, err
	}
	hi, err := evalInt(env, args[1])
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func evalInt(env *Environment, n exprNode) (int, error) {
	v, err := n.eval(env)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case float64:
		return int(x), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func floatArgs(env *Environment, args []exprNode) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("expected 2 arguments, got %d", len(args))
	}
	lo, err := evalFloat(env, args[0])
	if err != nil {
		return 0, 0, err
	}
	hi, err := evalFloat(env, args[1])
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func evalFloat(env *Environment, n exprNode) (float64, error) {
	v, err := n.eval(env)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// Resolver performs fixed-point resolution of a parsed template against an
// Environment, bounded by MaxIterations.
type Resolver struct {
	MaxIterations int
}

// Resolve evaluates t against env, repeatedly re-parsing any resulting
// string that itself still contains "{{" until no placeholders remain or
// MaxIterations is exhausted. A template with a single, bare {{expr}}
// segment (no surrounding literal text) yields its native type; any other
// shape is coerced to string via concatenation.
func (r *Resolver) Resolve(t *template, env *Environment) (any, error) {
	cur := t
	iterations := r.MaxIterations
	if iterations <= 0 {
		iterations = 10
	}
	for i := 0; i < iterations; i++ {
		val, err := evalOnce(cur, env)
		if err != nil {
			return nil, &UnresolvedTemplateError{Template: cur.raw, Reason: err.Error()}
		}
		s, isStr := val.(string)
		if !isStr || !strings.Contains(s, "{{") {
			return val, nil
		}
		next, err := parseTemplate(s)
		if err != nil {
			return nil, &UnresolvedTemplateError{Template: s, Reason: err.Error()}
		}
		cur = next
	}
	return nil, &UnresolvedTemplateError{
		Template: t.raw,
		Reason:   fmt.Sprintf("did not converge after %d iterations", iterations),
	}
}

// ResolveString is a convenience wrapper for callers that always want a
// string (export_context_as keys).
func (r *Resolver) ResolveString(t *template, env *Environment) (string, error) {
	v, err := r.Resolve(t, env)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func evalOnce(t *template, env *Environment) (any, error) {
	if len(t.segments) == 1 && t.segments[0].node != nil {
		return t.segments[0].node.eval(env)
	}
	var sb strings.Builder
	for _, seg := range t.segments {
		if seg.node == nil {
			sb.WriteString(seg.text)
			continue
		}
		v, err := seg.node.eval(env)
		if err != nil {
			return nil, err
		}
		sb.WriteString(fmt.Sprint(v))
	}
	return sb.String(), nil
}

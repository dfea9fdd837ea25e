package http

import (
	"fmt"

	"carelog/internal/shared/errors"

	"github.com/google/cel-go/cel"
)

// DefaultRule lets a signed-in user touch only the documents under their own user document.
const DefaultRule = `auth != null && auth.uid == owner`

// Access describes one request as the policy sees it.
type Access struct {
	UserID     string // empty when anonymous
	Email      string
	Method     string
	Owner      string
	Collection string
	DocumentID string
}

// Policy is a compiled CEL rule. The rule sees auth (null or {uid, email}), owner,
// collection, document and method, and must evaluate to a bool.
type Policy struct {
	rule    string
	program cel.Program
}

func newPolicyEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("auth", cel.DynType),
		cel.Variable("owner", cel.StringType),
		cel.Variable("collection", cel.StringType),
		cel.Variable("document", cel.StringType),
		cel.Variable("method", cel.StringType),
	)
}

// NewPolicy compiles rule, falling back to DefaultRule when it is empty.
func NewPolicy(rule string) (*Policy, error) {
	if rule == "" {
		rule = DefaultRule
	}
	env, err := newPolicyEnv()
	if err != nil {
		return nil, errors.NewConfigurationError("failed to create policy environment").WithCause(err)
	}
	ast, issues := env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, errors.NewConfigurationError("invalid access rule").
			WithDetail("rule", rule).
			WithCause(issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, errors.NewConfigurationError("access rule must evaluate to a bool").WithDetail("rule", rule)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to build access rule").WithCause(err)
	}
	return &Policy{rule: rule, program: program}, nil
}

// Rule returns the source expression.
func (p *Policy) Rule() string { return p.rule }

// Allow evaluates the rule for a.
func (p *Policy) Allow(a Access) (bool, error) {
	var auth interface{}
	if a.UserID != "" {
		auth = map[string]interface{}{"uid": a.UserID, "email": a.Email}
	}
	out, _, err := p.program.Eval(map[string]interface{}{
		"auth":       auth,
		"owner":      a.Owner,
		"collection": a.Collection,
		"document":   a.DocumentID,
		"method":     a.Method,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate access rule: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("access rule returned %T, want bool", out.Value())
	}
	return allowed, nil
}

// Check is Allow as an error: nil when allowed, an authorization error otherwise. A rule
// that fails to evaluate denies.
func (p *Policy) Check(a Access) error {
	allowed, err := p.Allow(a)
	if err != nil || !allowed {
		denied := errors.NewAuthorizationError("permission denied").
			WithDetail("collection", a.Collection).
			WithCause(errors.ErrForbidden)
		if err != nil {
			denied.WithDetail("reason", err.Error())
		}
		return denied
	}
	return nil
}

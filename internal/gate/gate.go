// Package gate decides whether a protected view may render and, when it may,
// fetches the view's resource exactly once with the caller's credential.
package gate

import (
	"context"

	"go.uber.org/zap"

	"github.com/Bradawan/sqtracker/internal/auth"
	"github.com/Bradawan/sqtracker/internal/rbac"
)

type Decision int

const (
	// DecisionAllow renders the protected view.
	DecisionAllow Decision = iota
	// DecisionDenied renders the static permission-denied view.
	DecisionDenied
	// DecisionSignIn redirects to the sign-in page.
	DecisionSignIn
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionDenied:
		return "denied"
	case DecisionSignIn:
		return "sign-in"
	default:
		return "unknown"
	}
}

// Outcome is what the gate hands to the view.
type Outcome[T any] struct {
	Decision   Decision
	Claims     auth.Claims
	Credential string
	Resource   T
	// Found is false when the resource fetch failed; the view renders empty.
	Found    bool
	FetchErr error
}

type Gate struct {
	secret []byte
	logger *zap.Logger
}

func New(secret []byte, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{secret: secret, logger: logger}
}

// Resolve verifies rawToken; it never fails loudly.
func (g *Gate) Resolve(rawToken string) (auth.Claims, bool) {
	return auth.ResolveSession(g.secret, rawToken)
}

// Protect runs the gate for one view. fetch loads the resource with the
// verified credential; it may be nil for views without a resource and is
// never called unless the caller is authorized.
func Protect[T any](ctx context.Context, g *Gate, rawToken string, required rbac.Role, fetch func(ctx context.Context, credential string) (T, error)) Outcome[T] {
	claims, ok := g.Resolve(rawToken)
	if !ok {
		if required == rbac.RoleAuthenticated {
			return Outcome[T]{Decision: DecisionSignIn}
		}
		return Outcome[T]{Decision: DecisionDenied}
	}
	if !rbac.Authorize(&claims, required) {
		g.logger.Info("access denied",
			zap.String("subject", claims.SubjectID()),
			zap.String("role", claims.Role),
			zap.String("required", string(required)))
		return Outcome[T]{Decision: DecisionDenied}
	}

	out := Outcome[T]{
		Decision:   DecisionAllow,
		Claims:     claims,
		Credential: rawToken,
		Found:      true,
	}
	if fetch == nil {
		return out
	}

	resource, err := fetch(ctx, rawToken)
	if err != nil {
		g.logger.Warn("protected resource fetch failed",
			zap.String("subject", claims.SubjectID()), zap.Error(err))
		out.Found = false
		out.FetchErr = err
		return out
	}
	out.Resource = resource
	return out
}

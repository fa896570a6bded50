package testutil

import (
	"context"
	"sync"

	"github.com/pocket-telemetry/backend/internal/models"
)

// MockGateway implements the token issuer and query runner for testing.
// Unset funcs return a fixed JWT and an empty latest-signals result.
type MockGateway struct {
	IssueFunc func(ctx context.Context, creds models.Credentials) (*models.TokenGrant, error)
	RunFunc   func(ctx context.Context, jwt, queryText string) (map[string]interface{}, error)

	mu         sync.Mutex
	issueCalls []models.Credentials
	runCalls   []RunCall
}

// RunCall records one RunQuery invocation.
type RunCall struct {
	JWT   string
	Query string
}

// NewMockGateway creates a gateway with default responses.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (g *MockGateway) IssueToken(ctx context.Context, creds models.Credentials) (*models.TokenGrant, error) {
	g.mu.Lock()
	g.issueCalls = append(g.issueCalls, creds)
	g.mu.Unlock()

	if g.IssueFunc != nil {
		return g.IssueFunc(ctx, creds)
	}
	return &models.TokenGrant{VehicleJWT: "test-jwt", ExpiresIn: 600}, nil
}

func (g *MockGateway) RunQuery(ctx context.Context, jwt, queryText string) (map[string]interface{}, error) {
	g.mu.Lock()
	g.runCalls = append(g.runCalls, RunCall{JWT: jwt, Query: queryText})
	g.mu.Unlock()

	if g.RunFunc != nil {
		return g.RunFunc(ctx, jwt, queryText)
	}
	return map[string]interface{}{
		"data": map[string]interface{}{
			"signalsLatest": map[string]interface{}{},
		},
	}, nil
}

// IssueCalls returns the credentials passed to IssueToken so far.
func (g *MockGateway) IssueCalls() []models.Credentials {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Credentials(nil), g.issueCalls...)
}

// RunCalls returns the RunQuery invocations so far.
func (g *MockGateway) RunCalls() []RunCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RunCall(nil), g.runCalls...)
}

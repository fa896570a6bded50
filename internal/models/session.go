package models

// ActionStatus represents what a workspace is currently waiting on.
type ActionStatus string

const (
	ActionStatusIdle      ActionStatus = "idle"
	ActionStatusIssuing   ActionStatus = "issuing"
	ActionStatusExecuting ActionStatus = "executing"
)

// WorkspaceView is the JSON view of an explorer workspace returned after
// every state change. Query is re-rendered from Spec on each view.
type WorkspaceView struct {
	ID          string       `json:"id"`
	Status      ActionStatus `json:"status"`
	Spec        QuerySpec    `json:"spec"`
	Query       string       `json:"query"`
	Credentials Credentials  `json:"credentials"`
	Token       TokenStatus  `json:"token"`
	LastError   string       `json:"lastError,omitempty"`
	HasResult   bool         `json:"hasResult"`
	CreatedAt   int64        `json:"createdAt"` // Unix ms
}

package tool

import (
	"errors"
	"strings"
)

// Context is the per-request security boundary for tool execution. It is
// constructed exactly once per request from the authenticated identity and
// request parameters, and every executor in a Registry closes over the same
// instance. Nothing in it is ever rebuilt from content the model can
// influence: tool argument schemas carry no identity or tenant fields.
type Context struct {
	UserID     string
	BusinessID string
	ProjectID  string
	SessionID  string
}

var ErrIncompleteContext = errors.New("tool context requires user and business ids")

// NewContext validates and normalizes the identity binding. ProjectID and
// SessionID are optional; a session-less request simply starts from an empty
// state.
func NewContext(userID, businessID, projectID, sessionID string) (Context, error) {
	tc := Context{
		UserID:     strings.TrimSpace(userID),
		BusinessID: strings.TrimSpace(businessID),
		ProjectID:  strings.TrimSpace(projectID),
		SessionID:  strings.TrimSpace(sessionID),
	}
	if tc.UserID == "" || tc.BusinessID == "" {
		return Context{}, ErrIncompleteContext
	}
	return tc, nil
}

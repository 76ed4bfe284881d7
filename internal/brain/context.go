package brain

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Context is an immutable per-session value. Mutation returns a copy, so
// a Context handed to concurrent operations never changes underneath
// them.
type Context struct {
	sessionID  uuid.UUID
	startedAt  time.Time
	attributes map[string]string
}

// NewContext creates a session context with a fresh ID.
func NewContext() Context {
	return Context{
		sessionID:  uuid.New(),
		startedAt:  time.Now().UTC(),
		attributes: map[string]string{},
	}
}

// SessionID returns the unique session identifier.
func (c Context) SessionID() uuid.UUID { return c.sessionID }

// StartedAt returns when the session began.
func (c Context) StartedAt() time.Time { return c.startedAt }

// Attribute returns a session attribute, empty if unset.
func (c Context) Attribute(key string) string { return c.attributes[key] }

// WithAttribute returns a copy of the context with one attribute set.
func (c Context) WithAttribute(key, value string) Context {
	attrs := make(map[string]string, len(c.attributes)+1)
	maps.Copy(attrs, c.attributes)
	attrs[key] = value
	c.attributes = attrs
	return c
}

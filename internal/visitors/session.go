// Package visitors derives viewer identity fields: session ids, viewer type
// and anonymized aliases.
package visitors

import (
	"strings"

	"github.com/google/uuid"
)

// ViewerType tells authenticated viewers apart from anonymous ones.
type ViewerType string

const (
	ViewerAuthenticated ViewerType = "authenticated"
	ViewerAnonymous     ViewerType = "anonymous"
)

// NewSessionID returns a random v4 UUID.
func NewSessionID() string {
	return uuid.NewString()
}

// SessionIDOrNew keeps a client supplied session id, or generates one.
func SessionIDOrNew(sessionID string) string {
	if s := strings.TrimSpace(sessionID); s != "" {
		return s
	}
	return NewSessionID()
}

// ViewerTypeFor derives the viewer type from the presence of a viewer id.
func ViewerTypeFor(viewerID string) ViewerType {
	if strings.TrimSpace(viewerID) == "" {
		return ViewerAnonymous
	}
	return ViewerAuthenticated
}

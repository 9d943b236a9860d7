package repository

import (
	"context"

	"github.com/m-mizutani/culprit/pkg/model"
)

// Repository defines the interface for session metadata persistence. Conversation contents
// are not stored here.
type Repository interface {
	// PutSession creates or overwrites a session
	PutSession(ctx context.Context, session *model.Session) error

	// GetSession retrieves a session by ID. Returns model.ErrNotFound if absent.
	GetSession(ctx context.Context, id model.SessionID) (*model.Session, error)

	// ListSessions retrieves sessions, newest first
	ListSessions(ctx context.Context, offset, limit int) ([]*model.Session, error)
}

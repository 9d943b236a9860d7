package diagnose

import (
	"context"
	"encoding/json"
	"io"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// SessionStore keeps session metadata in the repository and the conversation contents in
// blob storage.
type SessionStore struct {
	repo    repository.Repository
	storage adapter.Storage
}

func NewSessionStore(repo repository.Repository, storage adapter.Storage) *SessionStore {
	return &SessionStore{repo: repo, storage: storage}
}

func contentsKey(id model.SessionID) string {
	return "sessions/" + string(id) + ".json"
}

// Save writes contents first so that metadata never points at missing contents.
func (x *SessionStore) Save(ctx context.Context, session *model.Session) error {
	writer, err := x.storage.Put(ctx, contentsKey(session.ID))
	if err != nil {
		return goerr.Wrap(err, "failed to create storage writer")
	}
	defer writer.Close()

	data, err := json.Marshal(session.Contents)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal session contents")
	}

	if _, err := writer.Write(data); err != nil {
		return goerr.Wrap(err, "failed to write session to storage")
	}

	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer")
	}

	if err := x.repo.PutSession(ctx, session); err != nil {
		return goerr.Wrap(err, "failed to put session to repository")
	}

	return nil
}

func (x *SessionStore) Load(ctx context.Context, id model.SessionID) (*model.Session, error) {
	session, err := x.repo.GetSession(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session from repository", goerr.V("session_id", id))
	}

	reader, err := x.storage.Get(ctx, contentsKey(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session from storage", goerr.V("session_id", id))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read session data")
	}

	var contents []*genai.Content
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal session contents")
	}

	session.Contents = contents
	return session, nil
}

func (x *SessionStore) List(ctx context.Context, offset, limit int) ([]*model.Session, error) {
	sessions, err := x.repo.ListSessions(ctx, offset, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sessions")
	}
	return sessions, nil
}

package change_test

import (
	"context"

	"github.com/m-mizutani/culprit/pkg/adapter"
)

type mockGitHub struct {
	listPullRequests   func(ctx context.Context, input adapter.ListPullRequestsInput) (*adapter.PullRequestPage, error)
	getCommitMessage   func(ctx context.Context, owner, repo, sha string) (string, error)
	getPullRequestDiff func(ctx context.Context, owner, repo string, number int) (string, error)
}

func (m *mockGitHub) ListPullRequests(ctx context.Context, input adapter.ListPullRequestsInput) (*adapter.PullRequestPage, error) {
	return m.listPullRequests(ctx, input)
}

func (m *mockGitHub) GetCommitMessage(ctx context.Context, owner, repo, sha string) (string, error) {
	return m.getCommitMessage(ctx, owner, repo, sha)
}

func (m *mockGitHub) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	return m.getPullRequestDiff(ctx, owner, repo, number)
}

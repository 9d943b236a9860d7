package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

var ErrInvalidChangeState = goerr.New("invalid change state")

// ChangeID is the pull request number assigned by the source host.
type ChangeID int64

func (x ChangeID) String() string {
	return strconv.FormatInt(int64(x), 10)
}

// ParseChangeID parses a pull request number such as "102" or "#102".
func ParseChangeID(s string) (ChangeID, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, goerr.New("invalid change id", goerr.V("id", s))
	}
	return ChangeID(n), nil
}

type ChangeState string

const (
	ChangeStateOpen   ChangeState = "open"
	ChangeStateClosed ChangeState = "closed"
	ChangeStateMerged ChangeState = "merged"
)

// Validate checks if the state is valid
func (s ChangeState) Validate() error {
	switch s {
	case ChangeStateOpen, ChangeStateClosed, ChangeStateMerged:
		return nil
	default:
		return goerr.Wrap(ErrInvalidChangeState, "unexpected state", goerr.V("state", s))
	}
}

// ChangeRecord is a merged pull request retrieved from the source host.
type ChangeRecord struct {
	ID             ChangeID    `json:"id"`
	Title          string      `json:"title"`
	Body           string      `json:"body"`
	State          ChangeState `json:"state"`
	UpdatedAt      time.Time   `json:"updated_at"`
	URL            string      `json:"url"`
	MergeCommitSHA string      `json:"merge_commit_sha,omitempty"`
	MergeMessage   string      `json:"merge_message,omitempty"`
}

// EmbeddingText is the text that represents the record in the vector index.
func (x *ChangeRecord) EmbeddingText() string {
	return fmt.Sprintf("Title: %s. Description: %s. Merge Description: %s.", x.Title, x.Body, x.MergeMessage)
}

// Metadata returns the payload stored alongside the record's vector.
func (x *ChangeRecord) Metadata() ChangeMetadata {
	return ChangeMetadata{
		Title:     x.Title,
		State:     x.State,
		UpdatedAt: x.UpdatedAt.Unix(),
		URL:       x.URL,
	}
}

// ChangeMetadata is the payload kept in the vector index. UpdatedAt is unix seconds so that
// range filters can be applied on the server side.
type ChangeMetadata struct {
	Title     string      `json:"title"`
	State     ChangeState `json:"state"`
	UpdatedAt int64       `json:"updated_at"`
	URL       string      `json:"url"`
}

type EmbeddingVector struct {
	ID       ChangeID
	Values   []float32
	Metadata ChangeMetadata
}

type SearchResult struct {
	ID       ChangeID       `json:"id"`
	Score    float32        `json:"score"`
	Metadata ChangeMetadata `json:"metadata"`
}

// DiffRecord holds the raw unified diff of a change. It is not persisted.
type DiffRecord struct {
	ID   ChangeID
	Text string
}

// Candidate is a change presented to the judge together with its annotated diff.
type Candidate struct {
	ID   ChangeID
	URL  string
	Diff string
}

// Verdict is the judge's free-form answer. Its content is not validated.
type Verdict string

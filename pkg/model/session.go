package model

import (
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

type SessionStatus string

const (
	SessionStatusRunning      SessionStatus = "running"
	SessionStatusConcluded    SessionStatus = "concluded"
	SessionStatusInconclusive SessionStatus = "inconclusive"
	SessionStatusFailed       SessionStatus = "failed"
)

// Session is the conversation state of one diagnosis run.
type Session struct {
	ID           SessionID     `json:"id" yaml:"id"`
	Issue        string        `json:"issue" yaml:"issue"`
	SystemPrompt string        `json:"-" yaml:"-" firestore:"-"`
	Status       SessionStatus `json:"status" yaml:"status"`
	Iterations   int           `json:"iterations" yaml:"iterations"`
	CreatedAt    time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" yaml:"updated_at"`

	// Contents are kept in blob storage, not in the metadata store
	Contents []*genai.Content `json:"-" yaml:"-" firestore:"-"`
}

// Diagnosis is the outcome of a diagnosis run.
type Diagnosis struct {
	SessionID  SessionID     `json:"session_id"`
	Text       string        `json:"text"`
	Status     SessionStatus `json:"status"`
	Iterations int           `json:"iterations"`
}

// WebResult is a single web search hit.
type WebResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

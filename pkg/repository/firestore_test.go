package repository_test

import (
	"os"
	"testing"

	"github.com/m-mizutani/culprit/pkg/repository"
	"github.com/m-mizutani/gt"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.New(projectID, databaseID)
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestFirestore(t *testing.T) {
	testRepository(t, setupFirestore(t))
}

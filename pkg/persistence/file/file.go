// Package file provides file-based persistence for execution and step records.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/ottoflow/otto/pkg/persistence"
)

// Persistence implements persistence.ExecutionRepository on the file system.
// Intended for local development and tests; one JSON file per record.
type Persistence struct {
	root          string
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new instance rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		executionRepo: NewExecutionRepository(cleanRoot),
	}
}

var _ persistence.ExecutionRepository = (*Persistence)(nil)

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

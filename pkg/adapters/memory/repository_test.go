package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunetree/tunetree/pkg/adapters/memory"
	"github.com/tunetree/tunetree/pkg/ports"
	"github.com/tunetree/tunetree/pkg/ports/tests"
)

func TestRepositoryContract(t *testing.T) {
	tests.RepositoryContractTest(t, func(t *testing.T) ports.Repository {
		return memory.New(memory.WithLogDir(t.TempDir()))
	})
}

func TestRepositoryIsNotParallelSafe(t *testing.T) {
	assert.False(t, memory.New().ParallelSafe())
}

package memory_test

import (
	"testing"

	"github.com/ordesk/ordesk/pkg/adapters/memory"
	"github.com/ordesk/ordesk/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, memory.NewStore())
}

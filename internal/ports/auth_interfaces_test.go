package ports_test

import (
	"testing"

	mocks "github.com/dhanmatrix/dhanmatrix/internal/mocks/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthProvider = (*mocks.MockAuthProvider)(nil)
	var _ ports.SessionStore = (*mocks.MemorySessionStore)(nil)
	var _ ports.SuperAdminPolicy = (*mocks.StaticSuperAdmins)(nil)
	var _ ports.DocumentStore = (*mocks.MemoryDocumentStore)(nil)
	var _ ports.SessionSource = (*mocks.ManualSessionSource)(nil)
	var _ ports.SessionHintStore = (*mocks.MemoryHintStore)(nil)
}

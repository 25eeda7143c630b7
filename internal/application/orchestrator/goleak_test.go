package orchestrator

import (
	"testing"

	"go.uber.org/goleak"
)

// TestPackageLeaks runs goleak verification for the entire package
func TestPackageLeaks(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

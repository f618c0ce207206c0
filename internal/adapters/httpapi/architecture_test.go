package httpapi

import (
	"testing"

	"statefacts/testutil"
)

func TestHandlersDoNotReachDrivers(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, ".", testutil.InfraImport, "handlers reach storage through the Service only")
}

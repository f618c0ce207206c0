package domain

import (
	"testing"

	"statefacts/testutil"
)

// Every adapter, store and command depends on these types, so they stay on
// the standard library.
func TestDomainImportsStandardLibraryOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.NonStdlibImport, "pkg/domain is a leaf package")
}

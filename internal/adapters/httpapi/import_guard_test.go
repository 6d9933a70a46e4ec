package httpapi

import (
	"testing"

	"prodigymun/testutil"
)

func TestNoBackendImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.BackendImportForbidden, "the HTTP layer reaches storage through core")
}

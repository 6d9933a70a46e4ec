package memory

import (
	"testing"

	"prodigymun/testutil"
)

func TestOnlyBlobCoreImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.OnlyModuleImports("prodigymun/internal/blob/core"), "backends depend on the blob contract only")
}

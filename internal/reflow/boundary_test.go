package reflow

import (
	"testing"

	"binmap/testutil"
)

func TestReflowIsPure(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportForbidden, "reflow works on plain rectangles")
}

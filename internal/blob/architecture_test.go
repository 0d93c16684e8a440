package blob

import (
	"testing"

	"chemcore/testutil"
)

func TestBlobStaysIndependentOfDomain(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.DomainImportForbidden, "blob storage does not know about dispensers")
	testutil.AssertNoDirectImports(t, "./core", testutil.DomainImportForbidden, "blob storage does not know about dispensers")
}

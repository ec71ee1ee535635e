package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/netaudit/internal/device"
)

func TestRunVendors_Seed(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "vendors.db.gz")
	var buf bytes.Buffer

	require.NoError(t, RunVendors(&buf, VendorsOptions{Out: out}))
	assert.Contains(t, buf.String(), "Saved to "+out)

	db, err := device.LoadVendorFile(out)
	require.NoError(t, err)
	assert.Len(t, db.Entries, len(seedVendorDB().Entries))
	assert.Equal(t, "Raspberry Pi Foundation", db.Lookup("b8:27:eb:12:34:56"))
}

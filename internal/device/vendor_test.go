package device

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/netaudit/internal/gateway"
)

func testVendorDB() *VendorDB {
	return &VendorDB{
		Entries: map[string]VendorEntry{
			"001122":    {Manufacturer: "Broadcom (OUI-24)"},
			"0011223":   {Manufacturer: "Chipset X (OUI-28)"},
			"001122334": {Manufacturer: "Device Y (OUI-36)"},
			"B8BBCC":    {Manufacturer: "Vendor B"},
		},
	}
}

func TestVendorLookup_LongestPrefix(t *testing.T) {
	db := testVendorDB()

	tests := []struct {
		mac  string
		want string
	}{
		{"00:11:22:AA:BB:CC", "Broadcom (OUI-24)"},
		{"00:11:22:30:00:00", "Chipset X (OUI-28)"},
		{"00:11:22:33:4F:FF", "Device Y (OUI-36)"},
		{"b8-bb-cc-dd-ee-ff", "Vendor B"},
		{"00:11:22", "Broadcom (OUI-24)"},
		{"00:11:2", ""},
		{"00:99:99:00:00:00", ""},
		{"", ""},
		{"02:00:00:00:00:01", RandomMAC},
		{"AA:AA:AA:AA:AA:AA", RandomMAC},
	}
	for _, tt := range tests {
		t.Run(tt.mac, func(t *testing.T) {
			assert.Equal(t, tt.want, db.Lookup(tt.mac))
		})
	}

	var nilDB *VendorDB
	assert.Empty(t, nilDB.Lookup("00:11:22:33:44:55"))
}

func TestVendorDB_RoundTrip(t *testing.T) {
	db := testVendorDB()
	path := filepath.Join(t.TempDir(), "vendors.db.gz")
	require.NoError(t, db.Save(path))

	loaded, err := LoadVendorFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Vendor B", loaded.Lookup("B8:BB:CC:00:00:01"))

	_, err = LoadVendorDB(bytes.NewReader([]byte("not gzip")))
	assert.Error(t, err)
}

func TestParseRegistry(t *testing.T) {
	listing := `
OUI/MA-L                                                    Organization
company_id                                                  Organization
                                                            Address

00-00-5E   (hex)		USC INFORMATION SCIENCES INST
00005E     (base 16)		USC INFORMATION SCIENCES INST
00-55-DA-9     (hex)		Chipset Works
`
	db := &VendorDB{Entries: map[string]VendorEntry{}}
	require.NoError(t, ParseRegistry(strings.NewReader(listing), db))

	assert.Len(t, db.Entries, 2)
	assert.Equal(t, "USC INFORMATION SCIENCES INST", db.Entries["00005E"].Manufacturer)
	assert.Equal(t, "Chipset Works", db.Entries["0055DA9"].Manufacturer)
}

func TestBuildVendorDB(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("00-11-22   (hex)		Broadcom\n"))
	}))
	defer srv.Close()

	db, err := BuildVendorDB(context.Background(), srv.Client(), []string{srv.URL + "/oui.txt"})
	require.NoError(t, err)
	assert.Equal(t, "Broadcom", db.Lookup("00:11:22:33:44:55"))

	_, err = BuildVendorDB(context.Background(), srv.Client(), []string{srv.URL + "/missing"})
	assert.ErrorContains(t, err, "bad status")
}

func TestGatewayInventory_EnrichesVendors(t *testing.T) {
	local := gateway.NewLocal()
	require.NoError(t, local.Handle("get_devices", func(context.Context, json.RawMessage) (any, error) {
		return []Target{
			{IP: "10.0.0.1", MAC: "00:11:22:33:44:55", IsGateway: true},
			{IP: "10.0.0.2", MAC: "00:11:22:33:44:56", Vendor: "Reported"},
		}, nil
	}))

	devices, err := NewGatewayInventory(local, "get_devices").WithVendors(testVendorDB()).Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Device Y (OUI-36)", devices[0].Vendor)
	assert.Equal(t, "Reported", devices[1].Vendor, "backend vendor is kept")
}

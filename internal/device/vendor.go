package device

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// RandomMAC is reported for locally administered addresses.
const RandomMAC = "Random MAC"

// VendorDB maps hardware address prefixes to manufacturers. Keys are raw
// upper-case hex of 6, 7 or 9 digits (MA-L, MA-M and MA-S registries).
type VendorDB struct {
	Entries map[string]VendorEntry
	Updated time.Time
}

// VendorEntry is one registry assignment.
type VendorEntry struct {
	Manufacturer string
	Country      string
}

// LoadVendorDB decodes a gzipped gob database.
func LoadVendorDB(r io.Reader) (*VendorDB, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("vendor db: %w", err)
	}
	defer zr.Close()

	var db VendorDB
	if err := gob.NewDecoder(zr).Decode(&db); err != nil {
		return nil, fmt.Errorf("vendor db: %w", err)
	}
	if db.Entries == nil {
		db.Entries = make(map[string]VendorEntry)
	}
	return &db, nil
}

// LoadVendorFile reads a database written by Save.
func LoadVendorFile(path string) (*VendorDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadVendorDB(f)
}

// Write encodes db as gzipped gob.
func (db *VendorDB) Write(w io.Writer) error {
	zw := gzip.NewWriter(w)
	if err := gob.NewEncoder(zw).Encode(db); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Save writes db to path.
func (db *VendorDB) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := db.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Lookup returns the manufacturer for mac using the longest matching prefix.
func (db *VendorDB) Lookup(mac string) string {
	if db == nil {
		return ""
	}

	raw := strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac)
	if len(raw) < 6 {
		return ""
	}
	raw = strings.ToUpper(raw)

	// Locally administered bit set in the first octet
	switch raw[1] {
	case '2', '6', 'A', 'E':
		return RandomMAC
	}

	for _, n := range []int{9, 7, 6} {
		if len(raw) >= n {
			if e, ok := db.Entries[raw[:n]]; ok {
				return e.Manufacturer
			}
		}
	}
	return ""
}

// Enrich fills the Vendor of every target that has none.
func (db *VendorDB) Enrich(targets []Target) {
	if db == nil {
		return
	}
	for i := range targets {
		if targets[i].Vendor == "" {
			targets[i].Vendor = db.Lookup(targets[i].MAC)
		}
	}
}

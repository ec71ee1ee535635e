package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"grimm.is/netaudit/internal/brand"
)

// IEEE registry sources.
const (
	IEEEOUISource = "https://standards-oui.ieee.org/oui/oui.txt"
	IEEEMAMSource = "https://standards-oui.ieee.org/oui28/mam.txt"
	IEEEMASSource = "https://standards-oui.ieee.org/oui36/oui36.txt"
	IEEEIABSource = "https://standards-oui.ieee.org/iab/iab.txt"
)

// DefaultVendorSources lists every registry BuildVendorDB reads.
var DefaultVendorSources = []string{IEEEOUISource, IEEEMAMSource, IEEEMASSource, IEEEIABSource}

// 00-00-5E   (hex)		USC INFORMATION SCIENCES INST
var hexLineRegex = regexp.MustCompile(`^([0-9A-F]{2})-([0-9A-F]{2})-([0-9A-F]{2})([-0-9A-F]*)\s+\(hex\)\s+(.+)$`)

// BuildVendorDB downloads and parses the IEEE registries.
func BuildVendorDB(ctx context.Context, client *http.Client, sources []string) (*VendorDB, error) {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	db := &VendorDB{
		Entries: make(map[string]VendorEntry),
		Updated: time.Now(),
	}

	for _, url := range sources {
		if err := fetchRegistry(ctx, client, url, db); err != nil {
			return nil, fmt.Errorf("failed to process %s: %w", url, err)
		}
	}
	return db, nil
}

func fetchRegistry(ctx context.Context, client *http.Client, url string, db *VendorDB) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	// IEEE blocks requests without a User-Agent
	req.Header.Set("User-Agent", brand.UserAgent(brand.Version))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}
	return ParseRegistry(resp.Body, db)
}

// ParseRegistry adds the "(hex)" lines of an IEEE registry listing to db.
func ParseRegistry(r io.Reader, db *VendorDB) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// MA-M and MA-S lines carry extra nibbles: "00-55-DA-9  (hex)  Name"
		m := hexLineRegex.FindStringSubmatch(line)
		if len(m) != 6 {
			continue
		}
		prefix := m[1] + m[2] + m[3] + strings.ReplaceAll(m[4], "-", "")
		db.Entries[prefix] = VendorEntry{Manufacturer: strings.TrimSpace(m[5])}
	}
	return scanner.Err()
}

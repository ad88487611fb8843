// Package catalog holds the static product catalog: which granule products
// exist per mission and instrument, their CMR collection concept IDs, and the
// validity window inside which granules can be searched.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed products.yaml
var embeddedCatalog []byte

// Date is a calendar date (UTC midnight) serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// UnmarshalYAML parses a YYYY-MM-DD scalar. Empty or null means open-ended.
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" || s == "~" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// MarshalYAML renders the date back as YYYY-MM-DD, or null when unset.
func (d Date) MarshalYAML() (interface{}, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Format(dateLayout), nil
}

// Product describes one granule product of an instrument.
type Product struct {
	ID          string   `yaml:"id"`          // e.g. "OCI-L1B"
	ShortName   string   `yaml:"shortname"`   // CMR collection short name
	ConceptID   string   `yaml:"concept_id"`  // CMR collection concept ID
	Description string   `yaml:"description"` //
	StartDate   Date     `yaml:"start_date"`  // first day with data
	EndDate     Date     `yaml:"end_date"`    // last day with data; zero = ongoing
	Formats     []string `yaml:"formats"`     // accepted file extensions, e.g. [".nc"]
	Source      string   `yaml:"source"`      // archive or DAAC URL
}

// Level returns the processing-level part of the product ID ("OCI-L1B" → "L1B").
func (p Product) Level() string {
	if i := strings.Index(p.ID, "-"); i >= 0 {
		return p.ID[i+1:]
	}
	return p.ID
}

// Covers reports whether the given date range overlaps the product's
// validity window. A zero end date means the product is still producing.
func (p Product) Covers(start, end time.Time) bool {
	if !start.IsZero() && !p.EndDate.IsZero() && start.After(p.EndDate.Time) {
		return false
	}
	if !end.IsZero() && !p.StartDate.IsZero() && end.Before(p.StartDate.Time) {
		return false
	}
	return true
}

// Catalog maps mission → instrument → products.
type Catalog struct {
	Missions map[string]map[string][]Product `yaml:"missions"`
}

// Load returns the embedded default catalog.
func Load() (*Catalog, error) {
	return parse(embeddedCatalog)
}

// LoadFile reads a catalog from an external YAML file, for overriding the
// embedded one.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Missions) == 0 {
		return nil, fmt.Errorf("catalog has no missions")
	}
	for mission, instruments := range c.Missions {
		for instrument, products := range instruments {
			for _, p := range products {
				if p.ID == "" || p.ConceptID == "" {
					return nil, fmt.Errorf("catalog entry %s/%s has product without id or concept_id", mission, instrument)
				}
			}
		}
	}
	return &c, nil
}

// MissionNames lists the known mission names, sorted.
func (c *Catalog) MissionNames() []string {
	names := make([]string, 0, len(c.Missions))
	for name := range c.Missions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Products returns all products for a mission/instrument pair.
func (c *Catalog) Products(mission, instrument string) ([]Product, error) {
	instruments, ok := c.Missions[strings.ToLower(mission)]
	if !ok {
		return nil, fmt.Errorf("unknown mission %q", mission)
	}
	products, ok := instruments[strings.ToLower(instrument)]
	if !ok {
		return nil, fmt.Errorf("unknown instrument %q for mission %q", instrument, mission)
	}
	return products, nil
}

// Lookup finds the product with the given level ("L1B") for a
// mission/instrument pair.
func (c *Catalog) Lookup(mission, instrument, level string) (Product, error) {
	products, err := c.Products(mission, instrument)
	if err != nil {
		return Product{}, err
	}
	for _, p := range products {
		if strings.EqualFold(p.Level(), level) {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("no product %s-%s for mission %q", instrument, level, mission)
}

// Window returns the union of validity windows across a mission/instrument's
// products: the earliest start date and the latest end date. A zero end
// means at least one product is still producing.
func (c *Catalog) Window(mission, instrument string) (start, end Date, err error) {
	products, err := c.Products(mission, instrument)
	if err != nil {
		return Date{}, Date{}, err
	}
	ongoing := false
	for _, p := range products {
		if !p.StartDate.IsZero() && (start.IsZero() || p.StartDate.Before(start.Time)) {
			start = p.StartDate
		}
		if p.EndDate.IsZero() {
			ongoing = true
		} else if p.EndDate.After(end.Time) {
			end = p.EndDate
		}
	}
	if ongoing {
		end = Date{}
	}
	return start, end, nil
}

// ResolveRange fills missing start or end dates (YYYY-MM-DD) from the
// mission/instrument's validity window: the earliest catalog start date and
// the latest end date. An open-ended window resolves the end to now.
func (c *Catalog) ResolveRange(mission, instrument, start, end string, now time.Time) (string, string, error) {
	if start != "" && end != "" {
		return start, end, nil
	}
	wStart, wEnd, err := c.Window(mission, instrument)
	if err != nil {
		return "", "", err
	}
	if start == "" {
		if wStart.IsZero() {
			return "", "", fmt.Errorf("no start date given and %s/%s has no catalog start date", mission, instrument)
		}
		start = wStart.Format(dateLayout)
	}
	if end == "" {
		if wEnd.IsZero() {
			end = now.UTC().Format(dateLayout)
		} else {
			end = wEnd.Format(dateLayout)
		}
	}
	return start, end, nil
}

// ConceptID resolves the CMR collection concept ID for a product whose
// validity window overlaps the requested date range.
func (c *Catalog) ConceptID(mission, instrument, level string, start, end time.Time) (string, error) {
	p, err := c.Lookup(mission, instrument, level)
	if err != nil {
		return "", err
	}
	if !p.Covers(start, end) {
		return "", fmt.Errorf("product %s has no data in the requested range (valid %s to %s)",
			p.ID, formatDate(p.StartDate), formatDate(p.EndDate))
	}
	return p.ConceptID, nil
}

func formatDate(d Date) string {
	if d.IsZero() {
		return "present"
	}
	return d.Format(dateLayout)
}

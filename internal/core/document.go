package core

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// DocumentVersion is bumped whenever the persisted shape changes.
const DocumentVersion = 1

// Document is the whole persisted state. It is always written as one
// snapshot so a failed write can never leave totals half-updated.
type Document struct {
	Version    int                            `json:"version"`
	Months     map[MonthKey]*MonthBucket      `json:"months"`
	Categories []Category                     `json:"categories"`
	Budgets    map[MonthKey]MonthBudget       `json:"budgets"`
	Overrides  map[MonthKey]map[string]string `json:"overrides"`
	Rules      []Rule                         `json:"rules"`
	Income     IncomeSettings                 `json:"income"`
}

// NewDocument returns an empty document seeded with the given categories.
func NewDocument(categories []Category) *Document {
	doc := &Document{
		Version:    DocumentVersion,
		Categories: slices.Clone(categories),
	}
	doc.ensureMaps()
	return doc
}

func (d *Document) ensureMaps() {
	if d.Months == nil {
		d.Months = make(map[MonthKey]*MonthBucket)
	}
	if d.Budgets == nil {
		d.Budgets = make(map[MonthKey]MonthBudget)
	}
	if d.Overrides == nil {
		d.Overrides = make(map[MonthKey]map[string]string)
	}
}

// Clone returns a deep copy. Mutations are applied to a clone and swapped in
// only after the snapshot has been persisted.
func (d *Document) Clone() *Document {
	b, err := json.Marshal(d)
	if err != nil {
		// Every field is plain data; marshalling cannot fail.
		panic(fmt.Sprintf("clone document: %v", err))
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("clone document: %v", err))
	}
	out.ensureMaps()
	return &out
}

// DecodeDocument parses a persisted snapshot. Anything unparseable is
// reported as ErrResetRequired rather than repaired.
func DecodeDocument(b []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResetRequired, err)
	}
	if doc.Version == 0 || doc.Version > DocumentVersion {
		return nil, fmt.Errorf("%w: unsupported document version %d", ErrResetRequired, doc.Version)
	}
	doc.ensureMaps()
	return &doc, nil
}

// EncodeDocument serializes the snapshot as indented JSON.
func EncodeDocument(d *Document) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// MonthKeys returns bucket keys in ascending order.
func (d *Document) MonthKeys() []MonthKey {
	keys := make([]MonthKey, 0, len(d.Months))
	for k := range d.Months {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Bucket returns the bucket for key, creating it lazily.
func (d *Document) Bucket(key MonthKey) *MonthBucket {
	d.ensureMaps()
	b, ok := d.Months[key]
	if !ok {
		b = &MonthBucket{Key: key, Label: key.Label()}
		d.Months[key] = b
	}
	return b
}

// Category looks up a category by name.
func (d *Document) Category(name string) (Category, bool) {
	for _, c := range d.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// CategoryNames returns names in configured order.
func (d *Document) CategoryNames() []string {
	names := make([]string, len(d.Categories))
	for i, c := range d.Categories {
		names[i] = c.Name
	}
	return names
}

// FindTransaction locates a transaction by id inside one bucket.
func (d *Document) FindTransaction(month MonthKey, id string) (int, *Transaction) {
	b, ok := d.Months[month]
	if !ok {
		return -1, nil
	}
	for i := range b.Transactions {
		if b.Transactions[i].ID == id {
			return i, &b.Transactions[i]
		}
	}
	return -1, nil
}

// Package catalog is the registry of tools a plan may call.
package catalog

import (
	"slices"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"
)

// Catalog holds tool entries by name. Register all entries before
// sharing the catalog; lookups are read-only afterwards.
type Catalog struct {
	entries map[string]*Entry
}

// New creates a catalog from the given entries.
func New(entries ...*Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make(map[string]*Entry, len(entries)),
	}
	for _, e := range entries {
		if err := c.Register(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a tool entry, rejecting duplicates and invalid entries.
func (c *Catalog) Register(e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, ok := c.entries[e.Name]; ok {
		return errors.Errorf("tool already registered: %s", e.Name)
	}
	c.entries[e.Name] = e
	return nil
}

// Entry returns the named tool, or nil when unknown.
func (c *Catalog) Entry(name string) *Entry {
	return c.entries[name]
}

// Has reports whether the named tool is registered.
func (c *Catalog) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Names returns the registered tool names, sorted.
func (c *Catalog) Names() []string {
	names := maps.Keys(c.entries)
	slices.Sort(names)
	return names
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	return len(c.entries)
}

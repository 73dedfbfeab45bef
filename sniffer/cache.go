package sniffer

import "slices"

// tableCache holds the last fetched table list.
type tableCache struct {
	tables []string
	valid  bool
}

func (c *tableCache) get() ([]string, bool) {
	if !c.valid {
		return nil, false
	}
	return slices.Clone(c.tables), true
}

func (c *tableCache) set(tables []string) {
	c.tables = slices.Clone(tables)
	c.valid = true
}

func (c *tableCache) invalidate() {
	c.tables = nil
	c.valid = false
}

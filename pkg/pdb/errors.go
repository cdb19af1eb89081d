package pdb

import "fmt"

// InvalidSymbolError reports a symbol table entry that cannot be
// represented: an empty name, no ranges, or ranges that are empty,
// unsorted or overlapping.
type InvalidSymbolError struct {
	Index  int    // Position in SymbolTable.Functions
	Name   string // Symbol name, possibly empty
	Reason string
}

func (e *InvalidSymbolError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("pdb: function %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("pdb: function %d (%s): %s", e.Index, e.Name, e.Reason)
}

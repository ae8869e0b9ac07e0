package catalog

// Bootstrap returns a tiny synthetic catalog at version 0 for a
// from-scratch start where neither the primary nor the backup snapshot
// exists (spec.md §4.5 Startup, step 3).
//
// The real synthetic-catalog generator is an external collaborator and
// explicitly out of this system's core (spec.md §1 Non-goals); this is
// only a minimal stand-in so a brand-new site has something to serve.
func Bootstrap() *Catalog {
	c := New()
	c.Books["L0001"] = &Book{
		Code: "L0001", Title: "Cien años de soledad", Author: "Gabriel García Márquez",
		TotalCopies: 3, AvailableCopies: 3, Loans: make(map[string]*Loan),
	}
	c.Books["L0002"] = &Book{
		Code: "L0002", Title: "El Aleph", Author: "Jorge Luis Borges",
		TotalCopies: 2, AvailableCopies: 2, Loans: make(map[string]*Loan),
	}
	c.Books["L0003"] = &Book{
		Code: "L0003", Title: "Rayuela", Author: "Julio Cortázar",
		TotalCopies: 1, AvailableCopies: 1, Loans: make(map[string]*Loan),
	}
	return c
}

package convindex

// DocSet is a set of allowed document ids for restricted search.
// A nil DocSet means unrestricted; an empty non-nil DocSet allows nothing.
type DocSet map[string]struct{}

// NewDocSet returns a non-nil set containing ids. Blank ids are ignored.
func NewDocSet(ids ...string) DocSet {
	s := make(DocSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Contains reports whether id is allowed. Entries without a document id are never allowed.
func (s DocSet) Contains(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s[id]
	return ok
}

func (s DocSet) filter() func(string) bool {
	if s == nil {
		return nil
	}
	return s.Contains
}

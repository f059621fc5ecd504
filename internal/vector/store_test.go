package vector

import (
	"errors"
	"math"
	"testing"
)

func mustStore(t *testing.T, entries ...Entry) *Store {
	t.Helper()
	s, err := NewStore().Append(entries)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func texts(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Text
	}
	return out
}

func TestStore_AppendSearch(t *testing.T) {
	s := mustStore(t,
		Entry{Text: "a", DocID: "d1", Vector: []float32{1, 0, 0}},
		Entry{Text: "b", DocID: "d1", Vector: []float32{0.9, 0.1, 0}},
		Entry{Text: "c", DocID: "d2", Vector: []float32{0, 1, 0}},
	)
	if s.Len() != 3 || s.Dimension() != 3 {
		t.Fatalf("Len=%d Dimension=%d", s.Len(), s.Dimension())
	}

	hits, err := s.Search([]float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := texts(hits)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v", got)
	}
	if math.Abs(hits[0].Score-1) > 1e-9 {
		t.Errorf("top score = %v", hits[0].Score)
	}
}

func TestStore_AppendDoesNotMutateReceiver(t *testing.T) {
	s := mustStore(t, Entry{Text: "a", Vector: []float32{1, 0}})
	vec := []float32{0, 1}
	next, err := s.Append([]Entry{{Text: "b", Vector: vec}})
	if err != nil {
		t.Fatal(err)
	}
	vec[0] = 42
	if s.Len() != 1 || next.Len() != 2 {
		t.Errorf("Len: old=%d new=%d", s.Len(), next.Len())
	}
	if next.Entries()[1].Vector[0] != 0 {
		t.Error("Append must copy vectors")
	}
}

func TestStore_DimensionMismatch(t *testing.T) {
	s := mustStore(t, Entry{Text: "a", Vector: []float32{1, 0, 0}})

	tests := []struct {
		name    string
		entries []Entry
	}{
		{"shorter", []Entry{{Text: "x", Vector: []float32{1, 0}}}},
		{"longer", []Entry{{Text: "x", Vector: []float32{1, 0, 0, 0}}}},
		{"second of batch", []Entry{{Text: "x", Vector: []float32{1, 0, 0}}, {Text: "y", Vector: []float32{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := s.Append(tt.entries)
			if !errors.Is(err, ErrDimensionMismatch) {
				t.Fatalf("err = %v", err)
			}
			if next != nil {
				t.Error("expected nil store on error")
			}
			if s.Len() != 1 {
				t.Errorf("receiver changed: Len=%d", s.Len())
			}
		})
	}

	if _, err := NewStore().Append([]Entry{{Text: "x"}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("empty vector: err = %v", err)
	}
	if _, err := s.Search([]float32{1, 0}, 1, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("query: err = %v", err)
	}
}

func TestStore_WithoutDocument(t *testing.T) {
	s := mustStore(t,
		Entry{Text: "a", DocID: "d1", Vector: []float32{1, 0}},
		Entry{Text: "b", DocID: "d2", Vector: []float32{0, 1}},
		Entry{Text: "c", DocID: "d1", Vector: []float32{1, 1}},
		Entry{Text: "d", Vector: []float32{1, 1}},
	)

	next, removed := s.WithoutDocument("d1")
	if removed != 2 || next.Len() != 2 {
		t.Fatalf("removed=%d Len=%d", removed, next.Len())
	}
	if e := next.Entries(); e[0].Text != "b" || e[1].Text != "d" {
		t.Errorf("order not preserved: %v", e)
	}
	if &next.Entries()[0].Vector[0] != &s.Entries()[1].Vector[0] {
		t.Error("surviving entries should keep their original vectors")
	}
	if s.Len() != 4 {
		t.Error("receiver changed")
	}

	same, removed := s.WithoutDocument("missing")
	if removed != 0 || same != s {
		t.Errorf("no-op removal: removed=%d", removed)
	}
}

func TestStore_DocumentIDs(t *testing.T) {
	s := mustStore(t,
		Entry{Text: "a", DocID: "d2", Vector: []float32{1}},
		Entry{Text: "b", Vector: []float32{1}},
		Entry{Text: "c", DocID: "d1", Vector: []float32{1}},
		Entry{Text: "d", DocID: "d2", Vector: []float32{1}},
	)
	ids := s.DocumentIDs()
	if len(ids) != 2 || ids[0] != "d2" || ids[1] != "d1" {
		t.Errorf("DocumentIDs = %v", ids)
	}
}

func TestStore_SearchTopKAndEmpty(t *testing.T) {
	var nilStore *Store
	if hits, err := nilStore.Search([]float32{1}, 3, nil); err != nil || hits != nil {
		t.Errorf("nil store: %v %v", hits, err)
	}

	s := mustStore(t,
		Entry{Text: "a", Vector: []float32{1, 0}},
		Entry{Text: "b", Vector: []float32{0, 1}},
	)
	for _, k := range []int{0, -1} {
		if hits, _ := s.Search([]float32{1, 0}, k, nil); len(hits) != 0 {
			t.Errorf("k=%d: got %d hits", k, len(hits))
		}
	}
	hits, _ := s.Search([]float32{1, 0}, 10, nil)
	if len(hits) != 2 {
		t.Errorf("k beyond size: got %d hits", len(hits))
	}
}

func TestStore_SearchStableTies(t *testing.T) {
	s := mustStore(t,
		Entry{Text: "first", Vector: []float32{1, 0}},
		Entry{Text: "other", Vector: []float32{0, 1}},
		Entry{Text: "second", Vector: []float32{2, 0}},
		Entry{Text: "third", Vector: []float32{0.5, 0}},
	)
	for i := 0; i < 5; i++ {
		hits, err := s.Search([]float32{1, 0}, 3, nil)
		if err != nil {
			t.Fatal(err)
		}
		got := texts(hits)
		if got[0] != "first" || got[1] != "second" || got[2] != "third" {
			t.Fatalf("tie order = %v", got)
		}
	}
}

func TestStore_SearchFilterAfterRanking(t *testing.T) {
	s := mustStore(t,
		Entry{Text: "x1", DocID: "X", Vector: []float32{1, 0}},
		Entry{Text: "x2", DocID: "X", Vector: []float32{0.99, 0.01}},
		Entry{Text: "x3", DocID: "X", Vector: []float32{0.98, 0.02}},
		Entry{Text: "y1", DocID: "Y", Vector: []float32{0.1, 0.9}},
		Entry{Text: "y2", DocID: "Y", Vector: []float32{0, 1}},
	)
	allowY := func(id string) bool { return id == "Y" }

	hits, err := s.Search([]float32{1, 0}, 2, allowY)
	if err != nil {
		t.Fatal(err)
	}
	got := texts(hits)
	if len(got) != 2 || got[0] != "y1" || got[1] != "y2" {
		t.Errorf("restricted search = %v", got)
	}

	none := func(string) bool { return false }
	if hits, _ := s.Search([]float32{1, 0}, 2, none); len(hits) != 0 {
		t.Errorf("empty allow-set returned %d hits", len(hits))
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.IsNaN(got) || math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_ZeroQuery(t *testing.T) {
	s := mustStore(t,
		Entry{Text: "a", Vector: []float32{1, 0}},
		Entry{Text: "zero", Vector: []float32{0, 0}},
	)
	hits, err := s.Search([]float32{0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if math.IsNaN(h.Score) || h.Score != 0 {
			t.Errorf("score for %q = %v", h.Text, h.Score)
		}
	}
	if hits[0].Text != "a" {
		t.Errorf("ties should keep insertion order, got %v", texts(hits))
	}
}

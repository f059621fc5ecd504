package utils

import (
	"math"
	"reflect"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	for _, tt := range []struct {
		in   string
		max  int
		want string
	}{
		{"héllo", 2, "h..."},
		{"héllo", 3, "hé..."},
		{"日本語", 4, "日..."},
		{"日本語", 1, "..."},
	} {
		got := Truncate(tt.in, tt.max)
		if got != tt.want || !utf8.ValidString(got) {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestCleanTexts(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"all blank", []string{"", "   ", "\n\t"}, nil},
		{"trims and keeps order", []string{"  b ", "", "a"}, []string{"b", "a"}},
		{"duplicates kept", []string{"x", "x"}, []string{"x", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanTexts(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CleanTexts(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("got %v", v)
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
	if L2Norm([]float32{3, 4}) != 5 {
		t.Errorf("L2Norm = %v", L2Norm([]float32{3, 4}))
	}
}

func TestWords(t *testing.T) {
	got := Words("Cats, DOGS & 42 mammals!")
	want := []string{"cats", "dogs", "42", "mammals"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
	if Words("?! ") != nil {
		t.Error("punctuation only should return nil")
	}
}

package voice

import (
	"reflect"
	"testing"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{
			name: "sentences",
			text: "Stay calm. Move uphill now! Are you alone?",
			want: []string{"Stay calm.", "Move uphill now!", "Are you alone?"},
		},
		{
			name: "abbreviations",
			text: "Dr. Smith is on Main St. near you. Go.",
			want: []string{"Dr. Smith is on Main St. near you.", "Go."},
		},
		{
			name: "numbered lines",
			text: "Nearby places:\n1. Cooley Dickinson — 30 Locust St\n2. Town Hall — 4 Boltwood Ave",
			want: []string{"Nearby places:", "1. Cooley Dickinson — 30 Locust St", "2. Town Hall — 4 Boltwood Ave"},
		},
		{
			name: "decimal",
			text: "It is 3.5 miles away.",
			want: []string{"It is 3.5 miles away."},
		},
		{
			name: "cap at whitespace",
			text: "aaaa bbbb cccc",
			max:  10,
			want: []string{"aaaa bbbb", "cccc"},
		},
		{
			name: "cap without whitespace",
			text: "abcdefghijkl",
			max:  5,
			want: []string{"abcde", "fghij", "kl"},
		},
		{
			name: "empty",
			text: "  \n ",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitChunks(tt.text, tt.max)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("SplitChunks(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSplitChunks_RuneAware(t *testing.T) {
	got := SplitChunks("ñññññ ññ", 5)
	want := []string{"ñññññ", "ññ"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

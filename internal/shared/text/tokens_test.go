package text

import (
	"math"
	"reflect"
	"testing"
)

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"parseHTTPRequest", []string{"parse", "HTTP", "Request"}},
		{"user_repository", []string{"user", "repository"}},
		{"UserService", []string{"User", "Service"}},
		{"kebab-case-name", []string{"kebab", "case", "name"}},
		{"internal/api/handler.go", []string{"internal", "api", "handler", "go"}},
		{"v2Client", []string{"v", "2", "Client"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SplitIdentifier(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitIdentifier(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWordsDropsStopWordsAndSingles(t *testing.T) {
	got := Words("GetTheUser_a_ofRecord")
	want := []string{"get", "user", "record"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words() = %v, want %v", got, want)
	}
}

func TestTokensStem(t *testing.T) {
	a := Tokens("authenticateUsers")
	b := Tokens("authentication_user")
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("unexpected tokens %v %v", a, b)
	}
	if a[1] != b[1] {
		t.Errorf("expected users and user to share a stem, got %q and %q", a[1], b[1])
	}
}

func TestTokenSet(t *testing.T) {
	set := TokenSet("userRepository", "repository")
	if set[Stem("repository")] != 2 {
		t.Errorf("expected repository counted twice, got %v", set)
	}
}

func TestCosine(t *testing.T) {
	a := map[string]int{"user": 1, "repo": 1}
	if got := Cosine(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("Cosine(a, a) = %v, want 1", got)
	}
	if got := Cosine(a, map[string]int{"cache": 2}); got != 0 {
		t.Errorf("disjoint vectors should score 0, got %v", got)
	}
	if got := Cosine(a, nil); got != 0 {
		t.Errorf("empty vector should score 0, got %v", got)
	}
}

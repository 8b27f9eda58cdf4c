package merchant

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Netflix", "netflix"},
		{"NETFLIX", "netflix"},
		{"  Netflix  ", "netflix"},
		{"NETFLIX.COM", "netflixcom"},
		{"Spotify  USA*", "spotify usa"},
		{"AMZN Mktp US*2K3", "amzn mktp us2k3"},
		{"Café  Nero", "café nero"},
		{"***", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDisplay(t *testing.T) {
	got := Display([]string{"NETFLIX", "Netflix", "Netflix", "netflix"})
	if got != "Netflix" {
		t.Errorf("Display = %q, want %q", got, "Netflix")
	}

	// tie: lexical order wins
	got = Display([]string{"b", "a"})
	if got != "a" {
		t.Errorf("Display tie = %q, want %q", got, "a")
	}

	if Display(nil) != "" {
		t.Error("Display(nil) should be empty")
	}
}

func TestSame(t *testing.T) {
	if !Same("Hulu", "HULU ") {
		t.Error("expected Hulu and HULU to match")
	}
	if Same("", "") {
		t.Error("empty names must never match")
	}
}

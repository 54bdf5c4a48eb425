package arena

import "testing"

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		meta   Metadata
		rule   RuleType
		target string
		want   bool
	}{
		{"genre match ignores case", Metadata{Genres: []string{"Drama", "Horror"}}, RuleGenre, "horror", true},
		{"genre miss", Metadata{Genres: []string{"drama"}}, RuleGenre, "horror", false},
		{"genre missing field", Metadata{}, RuleGenre, "horror", false},

		{"decade lower bound", Metadata{Year: intp(1990)}, RuleDecade, "1990s", true},
		{"decade upper bound", Metadata{Year: intp(1999)}, RuleDecade, "1990s", true},
		{"decade outside", Metadata{Year: intp(2000)}, RuleDecade, "1990s", false},
		{"decade missing year", Metadata{}, RuleDecade, "1990s", false},
		{"decade zero year", Metadata{Year: intp(0)}, RuleDecade, "1990s", false},
		{"decade bad target", Metadata{Year: intp(1995)}, RuleDecade, "nineties", false},

		{"rating equal target is inclusive", Metadata{Rating: floatp(8.0)}, RuleRating, "8.0", true},
		{"rating below", Metadata{Rating: floatp(7.9)}, RuleRating, "8.0", false},
		{"rating missing", Metadata{}, RuleRating, "8.0", false},

		{"runtime equal target is exclusive", Metadata{Runtime: intp(90)}, RuleRuntime, "90", false},
		{"runtime under", Metadata{Runtime: intp(89)}, RuleRuntime, "90", true},
		{"runtime missing", Metadata{}, RuleRuntime, "90", false},

		{"classic before", Metadata{Year: intp(1969)}, RuleClassic, "1970", true},
		{"classic equal", Metadata{Year: intp(1970)}, RuleClassic, "1970", false},

		{"non-english matches other code", Metadata{Language: "ja"}, RuleLanguage, NonEnglish, true},
		{"non-english rejects en", Metadata{Language: "en"}, RuleLanguage, NonEnglish, false},
		{"non-english rejects empty", Metadata{}, RuleLanguage, NonEnglish, false},
		{"exact language", Metadata{Language: "fr"}, RuleLanguage, "fr", true},
		{"exact language miss", Metadata{Language: "de"}, RuleLanguage, "fr", false},

		{"obscure under", Metadata{Votes: intp(4999)}, RuleObscure, "5000", true},
		{"obscure equal", Metadata{Votes: intp(5000)}, RuleObscure, "5000", false},
		{"obscure missing", Metadata{}, RuleObscure, "5000", false},
		{"obscure non-numeric target", Metadata{Votes: intp(1)}, RuleObscure, "few", false},

		{"unknown rule type", Metadata{Year: intp(1990)}, RuleType("mood"), "happy", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Challenge{RuleType: tt.rule, RuleTarget: tt.target}
			if got := Evaluate(tt.meta, c); got != tt.want {
				t.Fatalf("Evaluate(%+v, %s=%q): want %v, got %v", tt.meta, tt.rule, tt.target, tt.want, got)
			}
		})
	}
}

func TestParseRule_Typed(t *testing.T) {
	r, err := ParseRule(RuleDecade, "1980s")
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	d, ok := r.(DecadeRule)
	if !ok || d.Start != 1980 {
		t.Fatalf("want DecadeRule{1980}, got %#v", r)
	}
	if r.Type() != RuleDecade {
		t.Fatalf("want type %s, got %s", RuleDecade, r.Type())
	}

	if _, err := ParseRule(RuleRating, ""); err == nil {
		t.Fatal("expected error for empty target")
	}
	if _, err := ParseRule(RuleRuntime, "ninety"); err == nil {
		t.Fatal("expected error for non-numeric runtime")
	}
}

func TestMetadataExtended(t *testing.T) {
	if (Metadata{Year: intp(2001)}).Extended() {
		t.Fatal("year alone is not extended data")
	}
	if !(Metadata{Votes: intp(3)}).Extended() {
		t.Fatal("votes count as extended data")
	}
}

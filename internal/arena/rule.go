package arena

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleType names the kind of predicate a challenge applies.
type RuleType string

const (
	RuleGenre    RuleType = "genre"
	RuleDecade   RuleType = "decade"
	RuleRating   RuleType = "rating"
	RuleRuntime  RuleType = "runtime"
	RuleClassic  RuleType = "classic"
	RuleLanguage RuleType = "language"
	RuleObscure  RuleType = "obscure"
)

// NonEnglish is the language target that matches anything but English.
const NonEnglish = "non-english"

// Metadata describes a movie for rule evaluation. Nil numeric fields are
// unknown and never satisfy a rule.
type Metadata struct {
	Genres   []string `json:"genres,omitempty"`
	Year     *int     `json:"year,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Runtime  *int     `json:"runtime,omitempty"`
	Language string   `json:"language,omitempty"`
	Votes    *int     `json:"votes,omitempty"`
}

// Extended reports whether the metadata carries any of the fields rules look
// at beyond the title and year.
func (m Metadata) Extended() bool {
	return len(m.Genres) > 0 || m.Rating != nil || m.Runtime != nil || m.Language != "" || m.Votes != nil
}

func (m Metadata) year() (int, bool) {
	if m.Year == nil || *m.Year <= 0 {
		return 0, false
	}
	return *m.Year, true
}

// Rule is a predicate over movie metadata.
type Rule interface {
	Type() RuleType
	Matches(m Metadata) bool
}

// GenreRule matches a genre, case-insensitively.
type GenreRule struct{ Genre string }

func (GenreRule) Type() RuleType { return RuleGenre }

func (r GenreRule) Matches(m Metadata) bool {
	for _, g := range m.Genres {
		if strings.EqualFold(g, r.Genre) {
			return true
		}
	}
	return false
}

// DecadeRule matches years in [Start, Start+9].
type DecadeRule struct{ Start int }

func (DecadeRule) Type() RuleType { return RuleDecade }

func (r DecadeRule) Matches(m Metadata) bool {
	year, ok := m.year()
	return ok && year >= r.Start && year <= r.Start+9
}

// RatingRule matches ratings at or above Min.
type RatingRule struct{ Min float64 }

func (RatingRule) Type() RuleType { return RuleRating }

func (r RatingRule) Matches(m Metadata) bool {
	return m.Rating != nil && *m.Rating >= r.Min
}

// RuntimeRule matches movies strictly shorter than Under minutes.
type RuntimeRule struct{ Under int }

func (RuntimeRule) Type() RuleType { return RuleRuntime }

func (r RuntimeRule) Matches(m Metadata) bool {
	return m.Runtime != nil && *m.Runtime > 0 && *m.Runtime < r.Under
}

// ClassicRule matches movies released before Before.
type ClassicRule struct{ Before int }

func (ClassicRule) Type() RuleType { return RuleClassic }

func (r ClassicRule) Matches(m Metadata) bool {
	year, ok := m.year()
	return ok && year < r.Before
}

// LanguageRule matches a language code, or any non-English code when Code is
// NonEnglish.
type LanguageRule struct{ Code string }

func (LanguageRule) Type() RuleType { return RuleLanguage }

func (r LanguageRule) Matches(m Metadata) bool {
	lang := strings.ToLower(strings.TrimSpace(m.Language))
	if strings.EqualFold(r.Code, NonEnglish) {
		return lang != "" && lang != "en"
	}
	return lang != "" && lang == strings.ToLower(r.Code)
}

// ObscureRule matches movies with fewer than Votes votes.
type ObscureRule struct{ Votes int }

func (ObscureRule) Type() RuleType { return RuleObscure }

func (r ObscureRule) Matches(m Metadata) bool {
	return m.Votes != nil && *m.Votes >= 0 && *m.Votes < r.Votes
}

// ParseRule builds the typed rule for a rule type and its textual target.
func ParseRule(ruleType RuleType, target string) (Rule, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("empty target for %s rule", ruleType)
	}

	switch ruleType {
	case RuleGenre:
		return GenreRule{Genre: target}, nil
	case RuleDecade:
		start, err := parseDecade(target)
		if err != nil {
			return nil, err
		}
		return DecadeRule{Start: start}, nil
	case RuleRating:
		v, err := strconv.ParseFloat(target, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rating target %q: %w", target, err)
		}
		return RatingRule{Min: v}, nil
	case RuleRuntime:
		v, err := strconv.Atoi(target)
		if err != nil {
			return nil, fmt.Errorf("invalid runtime target %q: %w", target, err)
		}
		return RuntimeRule{Under: v}, nil
	case RuleClassic:
		v, err := strconv.Atoi(target)
		if err != nil {
			return nil, fmt.Errorf("invalid classic target %q: %w", target, err)
		}
		return ClassicRule{Before: v}, nil
	case RuleLanguage:
		return LanguageRule{Code: target}, nil
	case RuleObscure:
		v, err := strconv.Atoi(target)
		if err != nil {
			return nil, fmt.Errorf("invalid obscure target %q: %w", target, err)
		}
		return ObscureRule{Votes: v}, nil
	default:
		return nil, fmt.Errorf("unknown rule type %q", ruleType)
	}
}

// parseDecade turns "1990s" into 1990.
func parseDecade(target string) (int, error) {
	digits, ok := strings.CutSuffix(strings.ToLower(target), "s")
	if !ok || len(digits) != 4 || digits[3] != '0' {
		return 0, fmt.Errorf("invalid decade target %q", target)
	}
	start, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("invalid decade target %q: %w", target, err)
	}
	return start, nil
}

// Evaluate applies a challenge's rule to metadata. Unparseable rules never match.
func Evaluate(m Metadata, c Challenge) bool {
	rule, err := c.Rule()
	if err != nil {
		return false
	}
	return rule.Matches(m)
}

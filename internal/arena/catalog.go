package arena

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Template is a challenge definition that can be activated many times.
type Template struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	RewardPoints uint     `yaml:"reward_points"`
	RuleType     RuleType `yaml:"rule_type"`
	RuleTarget   string   `yaml:"rule_target"`
}

// Activate creates a challenge instance running from now for d.
func (t Template) Activate(now time.Time, d time.Duration) Challenge {
	return Challenge{
		Name:         t.Name,
		Description:  t.Description,
		RewardPoints: t.RewardPoints,
		RuleType:     t.RuleType,
		RuleTarget:   t.RuleTarget,
		StartedAt:    now.Unix(),
		EndTime:      now.Add(d).Unix(),
	}
}

// Catalog is the static list of challenge templates.
type Catalog struct {
	templates []Template
}

type catalogFile struct {
	Challenges []Template `yaml:"challenges"`
}

// DefaultCatalog returns the built-in templates.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads templates from a YAML file. An empty path yields the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates YAML templates.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return NewCatalog(file.Challenges)
}

// NewCatalog validates templates and builds a catalog.
func NewCatalog(templates []Template) (*Catalog, error) {
	if len(templates) == 0 {
		return nil, ErrEmptyCatalog
	}

	seen := make(map[string]bool, len(templates))
	for _, t := range templates {
		if t.Name == "" {
			return nil, fmt.Errorf("catalog template without a name")
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("duplicate catalog template %q", t.Name)
		}
		seen[t.Name] = true

		if _, err := ParseRule(t.RuleType, t.RuleTarget); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
	}

	return &Catalog{templates: append([]Template(nil), templates...)}, nil
}

// Templates returns a copy of all templates.
func (c *Catalog) Templates() []Template {
	return append([]Template(nil), c.templates...)
}

// Len returns the number of templates.
func (c *Catalog) Len() int {
	return len(c.templates)
}

// Pick returns a template chosen uniformly at random.
func (c *Catalog) Pick(rng *rand.Rand) Template {
	return c.templates[rng.IntN(len(c.templates))]
}

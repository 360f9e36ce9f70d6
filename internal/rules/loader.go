package rules

import (
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// LoadFile reads business rules from a YAML file with a top-level "rules"
// list. Rules without an id get a stable one derived from their name, and
// rules without an "enabled" key are enabled.
func LoadFile(path string) ([]models.BusinessRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read file %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML rule document.
func Parse(data []byte) ([]models.BusinessRule, error) {
	var doc struct {
		Rules []models.BusinessRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "rules: parse file")
	}

	// Second pass to tell an absent "enabled" key from an explicit false.
	var flags struct {
		Rules []struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &flags); err != nil {
		return nil, eris.Wrap(err, "rules: parse file")
	}

	for i := range doc.Rules {
		r := &doc.Rules[i]
		if r.Name == "" {
			return nil, eris.Errorf("rules: rule %d has no name", i)
		}
		if r.ID == uuid.Nil {
			r.ID = ruleID(r.Name)
		}
		if flags.Rules[i].Enabled == nil {
			r.Enabled = true
		}
		if r.Version == 0 {
			r.Version = 1
		}
	}
	return doc.Rules, nil
}

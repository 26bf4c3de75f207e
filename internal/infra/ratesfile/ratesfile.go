// internal/infra/ratesfile/ratesfile.go
package ratesfile

import (
	"context"
	"fmt"
	"os"

	"payment_reminder/internal/domain/billing"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type tierEntry struct {
	BelowHours string `yaml:"below_hours"` // empty for the open-ended tier
	Rate       string `yaml:"rate"`
}

type rowEntry struct {
	Name         string      `yaml:"name"`
	DocLink      string      `yaml:"doc_link"`
	StandardRate string      `yaml:"standard_rate"`
	Tiers        []tierEntry `yaml:"tiers"`
	Recipients   []string    `yaml:"recipients"`
}

type file struct {
	Rates []rowEntry `yaml:"rates"`
}

// Table is a rate table kept in a local YAML file. The file is re-read on
// every Load so edits apply to the next run.
type Table struct {
	path string
}

func New(path string) *Table {
	return &Table{path: path}
}

func (t *Table) Load(ctx context.Context) ([]billing.RateRow, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("read rates file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML rate table. Unlike the sheet, a malformed row fails the
// whole file since it is edited by hand next to the deployment.
func Parse(data []byte) ([]billing.RateRow, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rates file: %w", err)
	}
	rows := make([]billing.RateRow, 0, len(f.Rates))
	for i, e := range f.Rates {
		if e.Name == "" {
			return nil, fmt.Errorf("rates[%d]: name is required", i)
		}
		row := billing.RateRow{Name: e.Name, DocLink: e.DocLink, Recipients: e.Recipients}
		if e.StandardRate != "" {
			v, err := decimal.NewFromString(e.StandardRate)
			if err != nil {
				return nil, fmt.Errorf("rates[%d] %s: standard_rate: %w", i, e.Name, err)
			}
			row.StandardRate = v
		}
		for j, te := range e.Tiers {
			var tier billing.Tier
			var err error
			if te.BelowHours != "" {
				if tier.BelowHours, err = decimal.NewFromString(te.BelowHours); err != nil {
					return nil, fmt.Errorf("rates[%d] %s: tiers[%d].below_hours: %w", i, e.Name, j, err)
				}
			}
			if tier.Rate, err = decimal.NewFromString(te.Rate); err != nil {
				return nil, fmt.Errorf("rates[%d] %s: tiers[%d].rate: %w", i, e.Name, j, err)
			}
			if j > 0 && !row.Tiers[j-1].Open() && !tier.Open() && !tier.BelowHours.GreaterThan(row.Tiers[j-1].BelowHours) {
				return nil, fmt.Errorf("rates[%d] %s: tiers must be ascending", i, e.Name)
			}
			if j > 0 && row.Tiers[j-1].Open() {
				return nil, fmt.Errorf("rates[%d] %s: only the last tier may be open-ended", i, e.Name)
			}
			row.Tiers = append(row.Tiers, tier)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

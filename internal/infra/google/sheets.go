// internal/infra/google/sheets.go
package google

import (
	"context"
	"fmt"
	"strings"

	"payment_reminder/internal/domain/billing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Weekly sheet columns (0-based): A name, B doc link, C..I phones,
// J standard rate, K..O tier 1..5 rates.
const (
	colName         = 0
	colDocLink      = 1
	colStandardRate = 9
	colFirstTier    = 10
	weeklyMinCols   = 15
)

// SheetsRateTable loads rate rows from a spreadsheet range.
type SheetsRateTable struct {
	svc           *sheets.Service
	spreadsheetID string
	readRange     string
	variant       billing.Variant
	phoneColumns  []int
	logger        *logrus.Entry
}

func NewSheetsRateTable(
	ctx context.Context,
	credentialsJSON []byte,
	spreadsheetID, readRange string,
	variant billing.Variant,
	phoneColumns []int,
	logger *logrus.Entry,
	opts ...option.ClientOption,
) (*SheetsRateTable, error) {
	if len(opts) == 0 {
		opts = []option.ClientOption{
			option.WithCredentialsJSON(credentialsJSON),
			option.WithScopes(sheets.SpreadsheetsReadonlyScope),
		}
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetsRateTable{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
		variant:       variant,
		phoneColumns:  phoneColumns,
		logger:        logger.WithField("component", "sheets_rate_table"),
	}, nil
}

func (t *SheetsRateTable) Load(ctx context.Context) ([]billing.RateRow, error) {
	resp, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, t.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read rate sheet: %w", err)
	}
	rows, skipped := ParseRateRows(resp.Values, t.variant, t.phoneColumns)
	if skipped > 0 {
		t.logger.Warnf("Skipped %d malformed rate rows", skipped)
	}
	return rows, nil
}

// ParseRateRows converts sheet values (header row first) into rate rows. Rows
// that cannot be parsed are skipped and counted.
func ParseRateRows(values [][]interface{}, variant billing.Variant, phoneColumns []int) ([]billing.RateRow, int) {
	if len(values) < 2 {
		return nil, 0
	}
	rows := make([]billing.RateRow, 0, len(values)-1)
	skipped := 0
	for _, raw := range values[1:] {
		cells := make([]string, len(raw))
		for i, v := range raw {
			cells[i] = strings.TrimSpace(fmt.Sprint(v))
		}
		if len(cells) == 0 || cells[colName] == "" {
			skipped++
			continue
		}

		row := billing.RateRow{Name: cells[colName], Recipients: recipients(cells, phoneColumns)}
		if len(cells) > colDocLink {
			row.DocLink = cells[colDocLink]
		}

		if variant == billing.VariantWeekly {
			if err := parseWeeklyRates(cells, &row); err != nil {
				skipped++
				continue
			}
		}
		rows = append(rows, row)
	}
	return rows, skipped
}

func parseWeeklyRates(cells []string, row *billing.RateRow) error {
	if len(cells) < weeklyMinCols {
		return fmt.Errorf("row %q has %d columns, need %d", row.Name, len(cells), weeklyMinCols)
	}
	standard, err := decimal.NewFromString(cells[colStandardRate])
	if err != nil {
		return fmt.Errorf("standard rate for %q: %w", row.Name, err)
	}
	var tiers [5]decimal.Decimal
	for i := range tiers {
		tiers[i], err = decimal.NewFromString(cells[colFirstTier+i])
		if err != nil {
			return fmt.Errorf("tier %d rate for %q: %w", i+1, row.Name, err)
		}
	}
	row.StandardRate = standard
	row.Tiers = billing.StandardTiers(tiers)
	return nil
}

func recipients(cells []string, columns []int) []string {
	var out []string
	for _, c := range columns {
		if c < len(cells) && cells[c] != "" {
			out = append(out, cells[c])
		}
	}
	return out
}

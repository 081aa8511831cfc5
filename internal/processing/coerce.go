package processing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/invoiceflow/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	dateLayouts = []string{
		"2006-01-02",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006/01/02",
		"01/02/2006",
		"02/01/2006",
		"02.01.2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2 Jan 2006",
		"2 January 2006",
	}

	currencyReplacer = strings.NewReplacer(
		",", "",
		" ", "",
		"$", "",
		"€", "",
		"£", "",
		"¥", "",
		"USD", "",
		"EUR", "",
		"GBP", "",
	)
)

// coerceString renders a raw value as trimmed text. Blank values are null.
func coerceString(column string, raw any, maxLength int) (*string, error) {
	var s string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		s = v.String()
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if maxLength > 0 && len([]rune(s)) > maxLength {
		return nil, fmt.Errorf("value %q for %s exceeds %d characters", s, column, maxLength)
	}
	return &s, nil
}

func coerceDate(column string, raw any) (*time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		d := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		return &d, nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return coerceDate(column, *v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				d := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
				return &d, nil
			}
		}
		return nil, fmt.Errorf("unable to coerce %q to date for %s", v, column)
	default:
		return nil, fmt.Errorf("unable to coerce %v (%T) to date for %s", raw, raw, column)
	}
}

func coerceDecimal(column string, raw any) (decimal.NullDecimal, error) {
	switch v := raw.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case decimal.Decimal:
		return decimal.NewNullDecimal(v), nil
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(v)), nil
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v))), nil
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(v)), nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("unable to coerce %q to decimal for %s", v, column)
		}
		return decimal.NewNullDecimal(d), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.NullDecimal{}, nil
		}
		neg := false
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			neg = true
			s = s[1 : len(s)-1]
		}
		s = currencyReplacer.Replace(s)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("unable to coerce %q to decimal for %s", v, column)
		}
		if neg {
			d = d.Neg()
		}
		return decimal.NewNullDecimal(d), nil
	default:
		return decimal.NullDecimal{}, fmt.Errorf("unable to coerce %v (%T) to decimal for %s", raw, raw, column)
	}
}

// coerceInteger accepts whole numbers that fit a Postgres INTEGER column.
func coerceInteger(column string, raw any) (*int64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case int:
		return boundedInteger(column, int64(v))
	case int64:
		return boundedInteger(column, v)
	case float64:
		if math.Mod(v, 1) != 0 || v > math.MaxInt32 || v < math.MinInt32 {
			return nil, fmt.Errorf("unable to coerce %v to integer for %s", v, column)
		}
		return boundedInteger(column, int64(v))
	case json.Number:
		return coerceInteger(column, v.String())
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if s == "" {
			return nil, nil
		}
		if i, err := strconv.ParseInt(s, 10, 32); err == nil {
			return &i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && math.Mod(f, 1) == 0 && f <= math.MaxInt32 && f >= math.MinInt32 {
			i := int64(f)
			return &i, nil
		}
		return nil, fmt.Errorf("unable to coerce %q to integer for %s", v, column)
	default:
		return nil, fmt.Errorf("unable to coerce %v (%T) to integer for %s", raw, raw, column)
	}
}

func boundedInteger(column string, v int64) (*int64, error) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return nil, fmt.Errorf("unable to coerce %d to integer for %s", v, column)
	}
	return &v, nil
}

// columnReader coerces the columns of one group and keeps the first failure.
type columnReader struct {
	schema domain.TableSchema
	values domain.ColumnValues
	first  error
}

func newColumnReader(table domain.TargetTable, values domain.ColumnValues) *columnReader {
	schema, _ := domain.SchemaFor(table)
	return &columnReader{schema: schema, values: values}
}

func (c *columnReader) fail(err error) {
	if c.first == nil {
		c.first = err
	}
}

func (c *columnReader) err() error {
	return c.first
}

func (c *columnReader) str(column string) *string {
	maxLength := 0
	if col, ok := c.schema.Column(column); ok {
		maxLength = col.MaxLength
	}
	v, err := coerceString(column, c.values[column], maxLength)
	if err != nil {
		c.fail(err)
	}
	return v
}

func (c *columnReader) date(column string) *time.Time {
	v, err := coerceDate(column, c.values[column])
	if err != nil {
		c.fail(err)
	}
	return v
}

func (c *columnReader) decimal(column string) decimal.NullDecimal {
	v, err := coerceDecimal(column, c.values[column])
	if err != nil {
		c.fail(err)
	}
	return v
}

func (c *columnReader) integer(column string) *int64 {
	v, err := coerceInteger(column, c.values[column])
	if err != nil {
		c.fail(err)
	}
	return v
}

package validate

import (
	"strings"

	"github.com/shopspring/decimal"
)

type ErrField struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

type Errs []ErrField

func (e Errs) Error() string {
	var b strings.Builder
	for i, ef := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ef.Field + ": " + ef.Msg)
	}
	return b.String()
}

// Collect drops nil checks and returns nil when nothing failed.
func Collect(checks ...*ErrField) error {
	var out Errs
	for _, c := range checks {
		if c != nil {
			out = append(out, *c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func Required(field, value string) *ErrField {
	if strings.TrimSpace(value) == "" {
		return &ErrField{Field: field, Msg: "required"}
	}
	return nil
}

func OneOf(field, value string, allowed ...string) *ErrField {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ErrField{Field: field, Msg: "must be one of " + strings.Join(allowed, ", ")}
}

// Decimal parses a money or quantity string.
func Decimal(field, value string) (decimal.Decimal, *ErrField) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, &ErrField{Field: field, Msg: "required"}
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &ErrField{Field: field, Msg: "must be a decimal number"}
	}
	return d, nil
}

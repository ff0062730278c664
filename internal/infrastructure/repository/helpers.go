package repository

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lothammer/auction-backend/internal/domain/values"
)

// Numeric columns are selected with ::text casts and parsed here, so scanning
// is independent of the wire format pgx negotiates.

func parseMoney(s string) (values.Money, error) {
	return values.NewMoneyFromString(s, values.USD)
}

func parseNullMoney(s *string) (*values.Money, error) {
	if s == nil {
		return nil, nil
	}
	m, err := parseMoney(*s)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func parseDecimal(s *string) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*s)
}

func parseTiers(s *string) (values.TierTable, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var tt values.TierTable
	if err := json.Unmarshal([]byte(*s), &tt); err != nil {
		return nil, fmt.Errorf("parsing tier table: %w", err)
	}
	return tt, nil
}

// Param helpers. jsonb and numeric parameters travel as text with an explicit
// cast in the statement.

func moneyParam(m values.Money) string {
	return m.Amount().StringFixed(2)
}

func nullMoneyParam(m *values.Money) any {
	if m == nil {
		return nil
	}
	return moneyParam(*m)
}

func decimalParam(d decimal.Decimal) string {
	return d.String()
}

func tiersParam(tt values.TierTable) any {
	if len(tt) == 0 {
		return nil
	}
	b, err := json.Marshal(tt)
	if err != nil {
		return nil
	}
	return string(b)
}

func jsonParam(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier is one band of an ordered tier table. Max is nil for an open-ended
// band. Step carries the bid increment for increment tables and the premium
// rate for premium tables; the first matching tier in list order wins.
type Tier struct {
	Min  Money  `json:"min"`
	Max  *Money `json:"max,omitempty"`
	Step Money  `json:"step"`
}

// Contains reports whether amount falls in [Min, Max).
func (t Tier) Contains(amount Money) bool {
	if amount.Compare(t.Min) < 0 {
		return false
	}
	return t.Max == nil || amount.Compare(*t.Max) < 0
}

// TierTable is an ordered list of tiers.
type TierTable []Tier

// Lookup returns the first tier containing amount, or false when no tier
// matches.
func (tt TierTable) Lookup(amount Money) (Tier, bool) {
	for _, t := range tt {
		if t.Contains(amount) {
			return t, true
		}
	}
	return Tier{}, false
}

// Validate checks ordering and non-negative steps.
func (tt TierTable) Validate() error {
	for i, t := range tt {
		if t.Step.IsNegative() {
			return fmt.Errorf("tier %d: negative step", i)
		}
		if t.Max != nil && t.Max.Compare(t.Min) <= 0 {
			return fmt.Errorf("tier %d: max must exceed min", i)
		}
	}
	return nil
}

// jsonTier is the storage shape: plain decimal strings, null max for the
// open-ended band.
type jsonTier struct {
	Min  string  `json:"min"`
	Max  *string `json:"max"`
	Step string  `json:"step"`
}

// MarshalJSON stores tiers as decimal strings.
func (tt TierTable) MarshalJSON() ([]byte, error) {
	out := make([]jsonTier, len(tt))
	for i, t := range tt {
		out[i] = jsonTier{Min: t.Min.Amount().StringFixed(2), Step: t.Step.Amount().String()}
		if t.Max != nil {
			s := t.Max.Amount().StringFixed(2)
			out[i].Max = &s
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the storage shape.
func (tt *TierTable) UnmarshalJSON(data []byte) error {
	var raw []jsonTier
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(TierTable, len(raw))
	for i, jt := range raw {
		min, err := NewMoneyFromString(jt.Min, USD)
		if err != nil {
			return fmt.Errorf("tier %d min: %w", i, err)
		}
		step, err := NewMoneyFromString(jt.Step, USD)
		if err != nil {
			return fmt.Errorf("tier %d step: %w", i, err)
		}
		out[i] = Tier{Min: min, Step: step}
		if jt.Max != nil {
			max, err := NewMoneyFromString(*jt.Max, USD)
			if err != nil {
				return fmt.Errorf("tier %d max: %w", i, err)
			}
			out[i].Max = &max
		}
	}
	*tt = out
	return nil
}

// Scan implements sql.Scanner for JSONB columns.
func (tt *TierTable) Scan(value interface{}) error {
	if value == nil {
		*tt = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return tt.UnmarshalJSON(v)
	case string:
		return tt.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into TierTable", value)
	}
}

// Value implements driver.Valuer.
func (tt TierTable) Value() (driver.Value, error) {
	if tt == nil {
		return nil, nil
	}
	return json.Marshal(tt)
}

// NewTier builds a tier from decimal strings; empty max means open-ended.
func NewTier(min, max, step string) Tier {
	t := Tier{Min: MustMoneyFromString(min), Step: MustMoneyFromString(step)}
	if max != "" {
		m := MustMoneyFromString(max)
		t.Max = &m
	}
	return t
}

// RateTier builds a premium tier whose step is a rate (e.g. "0.15" = 15%).
func RateTier(min, max, rate string) Tier {
	t := Tier{Min: MustMoneyFromString(min)}
	if max != "" {
		m := MustMoneyFromString(max)
		t.Max = &m
	}
	t.Step = Money{amount: mustDecimal(rate), currency: USD}
	return t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

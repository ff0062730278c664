package values

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoneyValidation(t *testing.T) {
	_, err := NewMoney(decimal.NewFromInt(10), "")
	assert.Error(t, err)
	_, err = NewMoney(decimal.NewFromInt(10), "US")
	assert.Error(t, err)
	m, err := NewMoney(decimal.NewFromInt(10), USD)
	require.NoError(t, err)
	assert.Equal(t, "10.00 USD", m.String())
}

func TestRoundHalfUpCents(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"37.5825", "37.58"},
		{"4.9995", "5.00"},
		{"3.0664", "3.07"},
		{"1.005", "1.01"},
		{"1.004", "1.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := MustMoneyFromString(tt.in).RoundHalfUpCents()
			assert.True(t, got.Equal(MustMoneyFromString(tt.want)), "got %s", got)
		})
	}
}

func TestCompareRejectsCurrencyMismatch(t *testing.T) {
	usd := MustMoneyFromString("10")
	eur := MustMoney(decimal.NewFromInt(10), "EUR")
	assert.Panics(t, func() { usd.Compare(eur) })
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	m := MustMoneyFromString("123.45")
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"123.45","currency":"USD"}`, string(raw))

	var back Money
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, m.Equal(back))

	// Bare decimal strings are accepted on input.
	require.NoError(t, json.Unmarshal([]byte(`"55.10"`), &back))
	assert.True(t, back.Equal(MustMoneyFromString("55.10")))
}

func TestMoneyScanValue(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan("250.55"))
	assert.True(t, m.Equal(MustMoneyFromString("250.55")))

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "250.55", v)
}

func TestTierTableJSONRoundTrip(t *testing.T) {
	tt := TierTable{
		NewTier("0", "100", "5"),
		NewTier("100", "", "10"),
	}
	raw, err := json.Marshal(tt)
	require.NoError(t, err)

	var back TierTable
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back, 2)
	assert.True(t, back[0].Max.Equal(MustMoneyFromString("100")))
	assert.Nil(t, back[1].Max)
	assert.True(t, back[1].Step.Equal(MustMoneyFromString("10")))
}

func TestTierTableValidate(t *testing.T) {
	bad := TierTable{NewTier("100", "50", "5")}
	assert.Error(t, bad.Validate())
	good := TierTable{NewTier("0", "100", "5"), NewTier("100", "", "10")}
	assert.NoError(t, good.Validate())
}

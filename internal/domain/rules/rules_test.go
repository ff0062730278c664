package rules

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lothammer/auction-backend/internal/domain/values"
)

func money(s string) values.Money { return values.MustMoneyFromString(s) }

func TestIncrementDefaultTiers(t *testing.T) {
	tiers := DefaultIncrementTiers()
	tests := []struct {
		current string
		want    string
	}{
		{"0", "5"},
		{"99.99", "5"},
		{"100", "10"},
		{"499.99", "10"},
		{"500", "25"},
		{"10000", "25"},
	}
	for _, tt := range tests {
		t.Run(tt.current, func(t *testing.T) {
			assert.True(t, Increment(money(tt.current), tiers).Equal(money(tt.want)))
		})
	}
}

func TestIncrementEmptyTableFallsBack(t *testing.T) {
	assert.True(t, Increment(money("50"), nil).Equal(money("5")))
}

func TestMinNextBid(t *testing.T) {
	tiers := DefaultIncrementTiers()

	// Unbid lot: the floor is the starting bid itself.
	assert.True(t, MinNextBid(money("0"), money("100"), tiers).Equal(money("100")))

	// Bid lot: current plus the tier step.
	assert.True(t, MinNextBid(money("100"), money("100"), tiers).Equal(money("110")))
	assert.True(t, MinNextBid(money("50"), money("10"), tiers).Equal(money("55")))
}

func TestPremiumRounding(t *testing.T) {
	tiers := values.TierTable{values.RateTier("0", "", "0.15")}

	assert.True(t, Premium(money("100.00"), tiers).Equal(money("15.00")))
	// 250.55 x 0.15 = 37.5825, half up to 37.58.
	assert.True(t, Premium(money("250.55"), tiers).Equal(money("37.58")))
	// 33.33 x 0.15 = 4.9995, half up to 5.00.
	assert.True(t, Premium(money("33.33"), tiers).Equal(money("5.00")))
}

func TestPremiumNoMatchingTier(t *testing.T) {
	tiers := values.TierTable{values.RateTier("100", "", "0.15")}
	assert.True(t, Premium(money("50"), tiers).IsZero())
}

func TestParseImageFilename(t *testing.T) {
	tests := []struct {
		name  string
		lot   int
		order int
		ok    bool
	}{
		{"12-1.jpg", 12, 1, true},
		{"12-1.JPEG", 12, 1, true},
		{"lot_12_2.PNG", 12, 2, true},
		{"lot-12-2.png", 12, 2, true},
		{"LOT12_5.gif", 12, 5, true},
		{"12_3.webp", 12, 3, true},
		{"12.3.webp", 12, 3, true},
		{"3.1.heic", 3, 1, true},
		{"foo.jpg", 0, 0, false},
		{"12-1.tiff", 0, 0, false},
		{"-1.jpg", 0, 0, false},
		{"12-.png", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lot, order, ok := ParseImageFilename(tt.name)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.lot, lot)
				assert.Equal(t, tt.order, order)
			}
		})
	}
}

func TestParseImageFilenameRoundTrip(t *testing.T) {
	for lotNumber := 1; lotNumber <= 50; lotNumber += 7 {
		for order := 1; order <= 12; order += 3 {
			name := FormatImageFilename(lotNumber, order)
			t.Run(name, func(t *testing.T) {
				gotLot, gotOrder, ok := ParseImageFilename(name)
				require.True(t, ok)
				assert.Equal(t, lotNumber, gotLot)
				assert.Equal(t, order, gotOrder)
			})
		}
	}
}

func TestTierFirstMatchWins(t *testing.T) {
	// Overlapping tiers: list order decides.
	tiers := values.TierTable{
		values.NewTier("0", "200", "5"),
		values.NewTier("100", "", "50"),
	}
	assert.True(t, Increment(money("150"), tiers).Equal(money("5")))
	assert.True(t, Increment(money("250"), tiers).Equal(money("50")))
}

func TestTierBoundariesHalfOpen(t *testing.T) {
	tiers := DefaultIncrementTiers()
	for _, boundary := range []string{"100", "500"} {
		t.Run(fmt.Sprintf("at %s", boundary), func(t *testing.T) {
			below := money(boundary).Amount().Sub(values.MustMoneyFromString("0.01").Amount())
			lower, err := values.NewMoney(below, values.USD)
			require.NoError(t, err)
			lowStep := Increment(lower, tiers)
			highStep := Increment(money(boundary), tiers)
			assert.False(t, lowStep.Equal(highStep), "the boundary belongs to the upper tier")
		})
	}
}

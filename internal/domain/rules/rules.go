// Package rules holds the pure bidding arithmetic: increment tiers, buyer's
// premium, and the image filename grammar. Every function is total,
// deterministic, and free of side effects.
package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lothammer/auction-backend/internal/domain/values"
)

// DefaultIncrementTiers is used when neither the auction nor the lot carries
// an override: $5 steps under $100, $10 to $500, $25 above.
func DefaultIncrementTiers() values.TierTable {
	return values.TierTable{
		values.NewTier("0", "100", "5"),
		values.NewTier("100", "500", "10"),
		values.NewTier("500", "", "25"),
	}
}

// Increment returns the bid step for the current price. Falls back to the
// last tier's step when the table has a gap, and to the default table when
// the table is empty.
func Increment(current values.Money, tiers values.TierTable) values.Money {
	if len(tiers) == 0 {
		tiers = DefaultIncrementTiers()
	}
	if t, ok := tiers.Lookup(current); ok {
		return t.Step
	}
	return tiers[len(tiers)-1].Step
}

// MinNextBid returns the lowest acceptable bid: the starting bid on an unbid
// lot, otherwise current plus the tier step.
func MinNextBid(current, starting values.Money, tiers values.TierTable) values.Money {
	if current.IsZero() {
		return starting
	}
	return current.MustAdd(Increment(current, tiers))
}

// Premium computes the buyer's premium fee for a winning amount. The matched
// tier's step is a rate; the fee is amount x rate rounded half-up to cents.
// No matching tier means no premium.
func Premium(amount values.Money, tiers values.TierTable) values.Money {
	t, ok := tiers.Lookup(amount)
	if !ok {
		return values.Zero(amount.Currency())
	}
	return amount.Mul(t.Step.Amount()).RoundHalfUpCents()
}

// PremiumRate returns the premium rate tier matched for amount, or zero.
func PremiumRate(amount values.Money, tiers values.TierTable) values.Money {
	if t, ok := tiers.Lookup(amount); ok {
		return t.Step
	}
	return values.Zero(amount.Currency())
}

var imageExtensions = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|heic)$`)

// Filename patterns tried in order; first match wins.
var filenamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d+)-(\d+)$`),
	regexp.MustCompile(`(?i)^lot[_-]?(\d+)[_-](\d+)$`),
	regexp.MustCompile(`^(\d+)_(\d+)$`),
	regexp.MustCompile(`^(\d+)\.(\d+)$`),
}

// ParseImageFilename extracts (lot number, photo order) from an uploaded
// image filename. Returns ok=false when the name does not match the grammar.
func ParseImageFilename(name string) (lotNumber, photoOrder int, ok bool) {
	base := imageExtensions.ReplaceAllString(strings.TrimSpace(name), "")
	for _, re := range filenamePatterns {
		m := re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		lot, err1 := strconv.Atoi(m[1])
		order, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		return lot, order, true
	}
	return 0, 0, false
}

// FormatImageFilename renders the canonical "<lot>-<order>.jpg" form of the
// grammar; ParseImageFilename round-trips it.
func FormatImageFilename(lotNumber, photoOrder int) string {
	return strconv.Itoa(lotNumber) + "-" + strconv.Itoa(photoOrder) + ".jpg"
}

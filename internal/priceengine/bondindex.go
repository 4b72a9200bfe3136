package priceengine

import (
	"time"

	"github.com/sawpanic/marketsim/internal/engerr"
	"github.com/sawpanic/marketsim/internal/refdata"
)

// yieldCurveRate is a coarse, deterministic function of calendar year and
// credit rating (spec §3 Bond: "prevailing yield curve ... a simple
// function of simulated date and credit rating"). It reuses the same
// fed-funds baseline the post-anchor stock path compounds against, so
// bond pricing moves with the same macro regime stocks do.
func yieldCurveRate(t time.Time, rating string) float64 {
	base := baselineEconForYear(t.Year()).FedFundsRate + 0.015 // term premium over cash rate
	switch rating {
	case "AAA", "AA":
		return base + 0.002
	case "A":
		return base + 0.008
	case "BBB":
		return base + 0.018
	case "BB", "B":
		return base + 0.045
	default:
		return base + 0.01
	}
}

// BondPrice values a bond at t from its face value, coupon rate, and time
// to maturity against the prevailing yield curve (spec §3). Treasuries
// and munis follow the same discounting; the credit-rating spread is
// already folded into yieldCurveRate. Matured or not-yet-issued bonds are
// Unavailable.
func BondPrice(b refdata.Bond, t time.Time) (Quote, error) {
	if t.Before(b.IssueDate) || !t.Before(b.MaturityDate) {
		return Quote{}, engerr.New(engerr.NotListedYet, b.Symbol)
	}
	yield := yieldCurveRate(t, b.CreditRating)
	yearsToMaturity := b.MaturityDate.Sub(t).Hours() / 24 / 365.25
	if yearsToMaturity < 0.01 {
		yearsToMaturity = 0.01
	}
	// Simple annuity-plus-principal present value: coupon stream at the
	// bond's fixed rate, discounted at the prevailing yield, plus the
	// discounted face value at maturity.
	annualCoupon := b.Face * b.CouponRate
	var pvCoupons float64
	periods := int(yearsToMaturity*2) + 1
	for i := 1; i <= periods; i++ {
		years := float64(i) / 2
		if years > yearsToMaturity {
			break
		}
		pvCoupons += (annualCoupon / 2) / pow1p(yield/2, i)
	}
	pvFace := b.Face / pow1p(yield/2, periods)
	price := pvCoupons + pvFace
	if price < 0.01 {
		price = 0.01
	}
	return Quote{Price: price}, nil
}

func pow1p(rate float64, n int) float64 {
	out := 1.0
	base := 1 + rate
	for i := 0; i < n; i++ {
		out *= base
	}
	return out
}

// IndexPrice aggregates constituent prices per the fund's weighting
// scheme, normalized to a per-fund divisor fixed at inception so the
// index reads ~100 at its first trading day (spec §3 IndexFund). priceOf
// is the underlying price lookup (normally Engine.Price) so this stays
// decoupled from any one Engine instance.
func IndexPrice(fund refdata.IndexFund, t time.Time, priceOf func(symbol string, t time.Time) (Quote, error)) (Quote, error) {
	if t.Before(fund.Inception) {
		return Quote{}, engerr.New(engerr.NotListedYet, fund.Symbol)
	}
	raw, err := indexRawValue(fund, t, priceOf)
	if err != nil {
		return Quote{}, err
	}
	divisor := indexDivisor(fund, priceOf)
	price := raw / divisor * 100
	if price < 0.01 {
		price = 0.01
	}

	prevDay := t.AddDate(0, 0, -1)
	change := 0.0
	if !prevDay.Before(fund.Inception) {
		if prevRaw, err := indexRawValue(fund, prevDay, priceOf); err == nil && prevRaw > 0 {
			change = raw/prevRaw - 1
		}
	}
	return Quote{Price: price, ChangePct: change}, nil
}

// indexRawValue sums (equal) or weights (price/mcap-proxied-by-price)
// constituent prices into one aggregate value at t.
func indexRawValue(fund refdata.IndexFund, t time.Time, priceOf func(string, time.Time) (Quote, error)) (float64, error) {
	var sum float64
	var n int
	for _, symbol := range fund.Constituents {
		q, err := priceOf(symbol, t)
		if err != nil {
			continue
		}
		switch fund.Weighting {
		case refdata.WeightEqual:
			sum += q.Price
		case refdata.WeightPrice:
			sum += q.Price
		case refdata.WeightMcap:
			// Market cap requires shares outstanding, which the price
			// engine has no access to (that lives in availability); price
			// weighting is used as the nearest proxy available at this
			// layer, same as WeightPrice.
			sum += q.Price
		default:
			sum += q.Price
		}
		n++
	}
	if n == 0 {
		return 0, engerr.New(engerr.NotFound, "no constituent prices available for "+fund.Symbol)
	}
	if fund.Weighting == refdata.WeightEqual {
		return sum / float64(n), nil
	}
	return sum, nil
}

// indexDivisor fixes the normalization constant at inception: the raw
// aggregate value on the fund's first trading day, so Price(fund,
// inception) == 100.
func indexDivisor(fund refdata.IndexFund, priceOf func(string, time.Time) (Quote, error)) float64 {
	raw, err := indexRawValue(fund, fund.Inception, priceOf)
	if err != nil || raw <= 0 {
		return 1
	}
	return raw
}

package priceengine

import "time"

// econIndicators is a stationary, year-keyed economic-indicator model
// (spec §4.3.2): fed-funds rate, GDP growth, inflation, unemployment, and
// a QE flag, each a piecewise-constant deterministic function of calendar
// year (a step table by era); no stochastic component is added. These
// feed annualGrowthRate, the post-anchor compounding driver.
type econIndicators struct {
	FedFundsRate   float64
	GDPGrowth      float64
	Inflation      float64
	Unemployment   float64
	QEActive       bool
}

// baselineEconForYear returns the deterministic, pre-noise economic
// baseline for a given calendar year. The curve is a coarse approximation
// of post-war US macro history: high inflation and elevated rates before
// 1980 giving way to Volcker-era high rates, a long moderation,
// zero rates after 2008 and 2020, and a return to higher rates in the
// 2020s — enough qualitative texture to drive per-sector growth biases
// without claiming historical accuracy (spec's non-goal).
func baselineEconForYear(year int) econIndicators {
	switch {
	case year < 1980:
		return econIndicators{FedFundsRate: 0.08, GDPGrowth: 0.035, Inflation: 0.07, Unemployment: 0.06}
	case year < 1990:
		return econIndicators{FedFundsRate: 0.10, GDPGrowth: 0.03, Inflation: 0.05, Unemployment: 0.07}
	case year < 2000:
		return econIndicators{FedFundsRate: 0.055, GDPGrowth: 0.035, Inflation: 0.03, Unemployment: 0.055}
	case year < 2008:
		return econIndicators{FedFundsRate: 0.04, GDPGrowth: 0.028, Inflation: 0.025, Unemployment: 0.05}
	case year < 2015:
		return econIndicators{FedFundsRate: 0.005, GDPGrowth: 0.02, Inflation: 0.018, Unemployment: 0.07, QEActive: true}
	case year < 2020:
		return econIndicators{FedFundsRate: 0.02, GDPGrowth: 0.025, Inflation: 0.02, Unemployment: 0.045}
	case year < 2022:
		return econIndicators{FedFundsRate: 0.002, GDPGrowth: 0.0, Inflation: 0.03, Unemployment: 0.06, QEActive: true}
	default:
		return econIndicators{FedFundsRate: 0.05, GDPGrowth: 0.022, Inflation: 0.035, Unemployment: 0.042}
	}
}

// sectorEra is one entry of sectorGrowthTable, the fixed per-sector,
// per-era bias table spec
// §4.3.1 calls for (e.g. tech uplift 1995-2000, finance drawdown 2008).
type sectorEra struct {
	sector   string
	from, to time.Time
	annual   float64
}

var sectorGrowthTable = []sectorEra{
	{"tech", date(1995, 1, 1), date(2000, 12, 31), 0.35},
	{"tech", date(2001, 1, 1), date(2002, 12, 31), -0.40},
	{"finance", date(2008, 1, 1), date(2009, 12, 31), -0.45},
	{"finance", date(2010, 1, 1), date(2012, 12, 31), -0.05},
	{"energy", date(2014, 6, 1), date(2016, 6, 1), -0.25},
	{"tech", date(2009, 1, 1), date(2021, 12, 31), 0.18},
	{"crypto", date(2017, 1, 1), date(2018, 12, 31), 0.80},
	{"crypto", date(2022, 1, 1), date(2022, 12, 31), -0.60},
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sectorEraAnnualBias sums every matching table entry's annual bias for
// the given sector/date (spec §4.3.4: overlapping impacts apply
// additively).
func sectorEraAnnualBias(sector string, t time.Time) float64 {
	total := 0.0
	for _, e := range sectorGrowthTable {
		if e.sector == sector && !t.Before(e.from) && !t.After(e.to) {
			total += e.annual
		}
	}
	return total
}

// annualGrowthRate is the post-anchor compounding driver (spec §4.3.2):
// economic-indicator baseline for the symbol's sector/year, plus the
// fixed sector/era tilt.
func annualGrowthRate(sector string, t time.Time) float64 {
	econ := baselineEconForYear(t.Year())
	base := econ.GDPGrowth - 0.3*econ.Inflation + 0.02
	if econ.QEActive {
		base += 0.015
	}
	return base + sectorEraAnnualBias(sector, t)
}

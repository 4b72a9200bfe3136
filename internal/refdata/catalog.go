package refdata

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/marketsim/internal/clock"
)

// Catalog is the loaded, read-only bundle of every reference-data table.
// It is safe for unsynchronized concurrent reads once Load returns; the
// engine never mutates it at steady state (spec §4.2).
type Catalog struct {
	Securities map[string]SecurityMeta
	Anchors    map[string][]Anchor
	Events     []CorporateEvent
	Crashes    []CrashScenario
	Halts      []HaltWindow
	Lenders    []LoanLender
	Bonds      map[string]Bond
	Indices    map[string]IndexFund
	Companies  map[string]Company
	News       []NewsItem
	Emails     []EmailItem
	Dividends  map[string][]DividendRate
	SectorEra  []SectorEraAdjustment
}

// catalogFile mirrors the on-disk YAML shape for a single combined
// catalog document (spec §4.2's "catalogs loaded at startup").
type catalogFile struct {
	Securities []SecurityMeta `yaml:"securities"`
	Anchors    []struct {
		Symbol  string   `yaml:"symbol"`
		Samples []Anchor `yaml:"samples"`
	} `yaml:"anchors"`
	Events    []CorporateEvent      `yaml:"events"`
	Crashes   []CrashScenario       `yaml:"crashes"`
	Halts     []HaltWindow          `yaml:"halts"`
	Lenders   []LoanLender          `yaml:"lenders"`
	Bonds     []Bond                `yaml:"bonds"`
	Indices   []IndexFund           `yaml:"indices"`
	Companies []Company             `yaml:"companies"`
	News      []NewsItem            `yaml:"news"`
	Emails    []EmailItem           `yaml:"emails"`
	Dividends []DividendRate        `yaml:"dividends"`
	SectorEra []SectorEraAdjustment `yaml:"sector_era"`
}

// Load reads and parses a single combined YAML catalog file. It is the
// catalog entry point the default configuration (internal/config) uses.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("refdata: read catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("refdata: parse catalog %s: %w", path, err)
	}
	return build(f)
}

func build(f catalogFile) (*Catalog, error) {
	cat := &Catalog{
		Securities: make(map[string]SecurityMeta, len(f.Securities)),
		Anchors:    make(map[string][]Anchor),
		Bonds:      make(map[string]Bond, len(f.Bonds)),
		Indices:    make(map[string]IndexFund, len(f.Indices)),
		Companies:  make(map[string]Company, len(f.Companies)),
		Dividends:  make(map[string][]DividendRate),
	}
	for _, s := range f.Securities {
		cat.Securities[s.Symbol] = s
	}
	for _, a := range f.Anchors {
		samples := append([]Anchor(nil), a.Samples...)
		sort.Slice(samples, func(i, j int) bool { return samples[i].Instant.Before(samples[j].Instant) })
		cat.Anchors[a.Symbol] = samples
	}
	for _, e := range f.Events {
		e.Status = StatusPending
		cat.Events = append(cat.Events, e)
	}
	sort.Slice(cat.Events, func(i, j int) bool {
		return cat.Events[i].EffectiveInstant.Before(cat.Events[j].EffectiveInstant)
	})

	for _, c := range f.Crashes {
		c.Status = CrashPending
		cat.Crashes = append(cat.Crashes, c)
	}
	sort.Slice(cat.Crashes, func(i, j int) bool { return cat.Crashes[i].Start.Before(cat.Crashes[j].Start) })

	cat.Halts = append(cat.Halts, f.Halts...)
	sort.Slice(cat.Halts, func(i, j int) bool { return cat.Halts[i].Start.Before(cat.Halts[j].Start) })

	cat.Lenders = append(cat.Lenders, f.Lenders...)
	for _, b := range f.Bonds {
		cat.Bonds[b.Symbol] = b
	}
	for _, ix := range f.Indices {
		cat.Indices[ix.Symbol] = ix
	}
	for _, c := range f.Companies {
		cat.Companies[c.Symbol] = c
	}
	cat.News = append(cat.News, f.News...)
	sort.Slice(cat.News, func(i, j int) bool { return cat.News[i].Instant.Before(cat.News[j].Instant) })
	cat.Emails = append(cat.Emails, f.Emails...)
	sort.Slice(cat.Emails, func(i, j int) bool { return cat.Emails[i].Instant.Before(cat.Emails[j].Instant) })
	for _, d := range f.Dividends {
		cat.Dividends[d.Symbol] = append(cat.Dividends[d.Symbol], d)
	}
	cat.SectorEra = append(cat.SectorEra, f.SectorEra...)

	return cat, nil
}

// AddCrash appends a dynamically triggered crash scenario (spec §6
// "POST /api/crash/trigger"). Mutation is the caller's (internal/engine's)
// responsibility to serialize under the single mutation lock — Catalog
// itself holds no lock, matching every other write path into it
// (corpevents, cashevents already mutate Catalog-adjacent engine state
// only while holding that lock).
func (c *Catalog) AddCrash(scenario CrashScenario) {
	scenario.Status = CrashPending
	c.Crashes = append(c.Crashes, scenario)
	sort.Slice(c.Crashes, func(i, j int) bool { return c.Crashes[i].Start.Before(c.Crashes[j].Start) })
}

// DeactivateCrash truncates scenario id's effect at `at` by setting its
// End and zeroing any cascades/recovery duration past that point, so the
// price engine's crashOverlayAt stops applying it forward of `at` (spec §6
// "POST /api/crash/deactivate/:id"). Returns false if id is not found.
func (c *Catalog) DeactivateCrash(id string, at time.Time) bool {
	for i := range c.Crashes {
		if c.Crashes[i].ID != id {
			continue
		}
		end := at
		c.Crashes[i].End = &end
		c.Crashes[i].Status = CrashCompleted
		daysSinceStart := int(at.Sub(c.Crashes[i].Start).Hours() / 24)
		if daysSinceStart < 0 {
			daysSinceStart = 0
		}
		c.Crashes[i].Recovery.DurationDays = daysSinceStart
		var kept []Cascade
		for _, cs := range c.Crashes[i].Cascades {
			if cs.DelayDays <= daysSinceStart {
				kept = append(kept, cs)
			}
		}
		c.Crashes[i].Cascades = kept
		return true
	}
	return false
}

// ActiveAt implements clock.HaltSchedule.
func (c *Catalog) ActiveAt(t time.Time) (clock.Halt, bool) {
	for _, h := range c.Halts {
		if !t.Before(h.Start) && t.Before(h.End) {
			return clock.Halt{
				ID:      h.ID,
				Start:   h.Start,
				End:     h.End,
				Full:    h.Scope == HaltFull,
				Symbols: symbolSet(h.Symbols),
				Reason:  h.Reason,
			}, true
		}
	}
	return clock.Halt{}, false
}

func symbolSet(syms []string) map[string]bool {
	m := make(map[string]bool, len(syms))
	for _, s := range syms {
		m[s] = true
	}
	return m
}

// DividendRateFor returns the dividend rate applicable for symbol in year,
// or false if the symbol pays no dividend in that year.
func (c *Catalog) DividendRateFor(symbol string, year int) (float64, bool) {
	var best DividendRate
	found := false
	for _, d := range c.Dividends[symbol] {
		if d.Year <= year && (!found || d.Year > best.Year) {
			best = d
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return best.Rate, true
}

// CompanyAtYear returns the financial/IP/employee dossier for symbol at
// the given year, per spec §4.9's "largest-dated record <= now()" rule.
func (c *Catalog) CompanyAtYear(symbol string, year int) (FinancialSnapshot, bool) {
	co, ok := c.Companies[symbol]
	if !ok {
		return FinancialSnapshot{}, false
	}
	return co.AtYear(year)
}

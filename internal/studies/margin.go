package studies

import (
	"github.com/enermarket/backoffice/internal/storage"
)

// ResolveMargin picks the default profit-margin band for a rate given the
// study's annual consumption. A nil result means no default applies; the
// generator then uses an applied margin of zero. Ambiguous configuration
// (zero or several consume_range bands containing the consumption) also
// resolves to nil rather than an error.
func ResolveMargin(margins []storage.Margin, study *storage.SavingStudy) *storage.Margin {
	active := margins[:0:0]
	for _, m := range margins {
		if !m.DeletedAt.Valid {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return nil
	}

	if len(active) == 1 && active[0].Type == storage.MarginRateType {
		m := active[0]
		return &m
	}

	if study.AnnualConsumption == 0 {
		// Fall back to the band starting lowest; bands without a lower
		// bound are excluded from this fallback.
		var best *storage.Margin
		for i := range active {
			m := active[i]
			if m.MinConsumption == nil {
				continue
			}
			if best == nil || *m.MinConsumption < *best.MinConsumption {
				best = &active[i]
			}
		}
		if best == nil {
			return nil
		}
		m := *best
		return &m
	}

	var match *storage.Margin
	for i := range active {
		m := active[i]
		if m.Type != storage.MarginConsumeRange {
			continue
		}
		if !inRange(study.AnnualConsumption, m.MinConsumption, m.MaxConsumption) {
			continue
		}
		if match != nil {
			// Overlapping bands: treat as no default margin.
			return nil
		}
		match = &active[i]
	}
	if match == nil {
		return nil
	}
	m := *match
	return &m
}

// AppliedMargin is the margin value the generator applies by default: the
// band's minimum, or zero when no band resolved.
func AppliedMargin(m *storage.Margin) float64 {
	if m == nil {
		return 0
	}
	return m.MinMargin
}

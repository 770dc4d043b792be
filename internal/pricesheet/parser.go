package pricesheet

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ParsedRate is one tariff extracted from a marketer price sheet.
type ParsedRate struct {
	Name           string
	EnergyPrices   [6]*float64
	PowerPrices    [6]*float64
	FixedTermPrice *float64
}

// ParsePDF opens a marketer price-sheet PDF, extracts text, and delegates
// to ParseText.
func ParsePDF(path string) ([]ParsedRate, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	rc, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	return ParseText(buf.String())
}

var (
	tariffRe = regexp.MustCompile(`(?i)Tarifa[:\s]+(.+)`)
	energyRe = regexp.MustCompile(`(?i)Energ[ií]a\s+P([1-6])[:\s]+([0-9]+[.,][0-9]+)`)
	powerRe  = regexp.MustCompile(`(?i)Potencia\s+P([1-6])[:\s]+([0-9]+[.,][0-9]+)`)
	fixedRe  = regexp.MustCompile(`(?i)T[ée]rmino\s+fijo[:\s]+([0-9]+[.,][0-9]+)`)
)

// ParseText parses a plain-text representation of a price sheet. Sheets
// list one or more tariffs, each introduced by a "Tarifa: <name>" line
// followed by per-period energy/power prices and an optional fixed term.
// Prices use either comma or dot decimals.
func ParseText(text string) ([]ParsedRate, error) {
	var out []ParsedRate
	var current *ParsedRate

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := tariffRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				out = append(out, *current)
			}
			current = &ParsedRate{Name: strings.TrimSpace(m[1])}
			continue
		}
		if current == nil {
			continue
		}

		if m := energyRe.FindStringSubmatch(line); m != nil {
			period, price := periodAndPrice(m)
			current.EnergyPrices[period-1] = price
			continue
		}
		if m := powerRe.FindStringSubmatch(line); m != nil {
			period, price := periodAndPrice(m)
			current.PowerPrices[period-1] = price
			continue
		}
		if m := fixedRe.FindStringSubmatch(line); m != nil {
			if v, err := parsePrice(m[1]); err == nil {
				current.FixedTermPrice = &v
			}
		}
	}
	if current != nil {
		out = append(out, *current)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no tariffs found in price sheet")
	}
	for _, r := range out {
		if r.EnergyPrices[0] == nil {
			return nil, fmt.Errorf("tariff %q has no period-1 energy price", r.Name)
		}
	}
	return out, nil
}

func periodAndPrice(m []string) (int, *float64) {
	period, _ := strconv.Atoi(m[1])
	v, err := parsePrice(m[2])
	if err != nil {
		return period, nil
	}
	return period, &v
}

func parsePrice(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

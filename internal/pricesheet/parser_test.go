package pricesheet

import "testing"

func TestParseTextSingleTariff(t *testing.T) {
	sample := `
Condiciones económicas 2.0TD
Tarifa: Iberluz Estable 2.0
Energía P1: 0,133 €/kWh
Energía P2: 0,105 €/kWh
Energía P3: 0,092 €/kWh
Potencia P1: 0,30 €/kW día
Potencia P2: 0,11 €/kW día
Término fijo: 0,05 €/día
`
	rates, err := ParseText(sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rates) != 1 {
		t.Fatalf("got %d tariffs, want 1", len(rates))
	}
	r := rates[0]
	if r.Name != "Iberluz Estable 2.0" {
		t.Errorf("name = %q", r.Name)
	}
	if r.EnergyPrices[0] == nil || *r.EnergyPrices[0] != 0.133 {
		t.Errorf("energy p1 = %v", r.EnergyPrices[0])
	}
	if r.EnergyPrices[2] == nil || *r.EnergyPrices[2] != 0.092 {
		t.Errorf("energy p3 = %v", r.EnergyPrices[2])
	}
	if r.EnergyPrices[3] != nil {
		t.Errorf("energy p4 should be absent, got %v", *r.EnergyPrices[3])
	}
	if r.PowerPrices[1] == nil || *r.PowerPrices[1] != 0.11 {
		t.Errorf("power p2 = %v", r.PowerPrices[1])
	}
	if r.FixedTermPrice == nil || *r.FixedTermPrice != 0.05 {
		t.Errorf("fixed term = %v", r.FixedTermPrice)
	}
}

func TestParseTextMultipleTariffs(t *testing.T) {
	sample := `
Tarifa: Plan Uno
Energía P1: 0.120
Tarifa: Plan Dos
Energía P1: 0.140
Potencia P1: 0.25
`
	rates, err := ParseText(sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("got %d tariffs, want 2", len(rates))
	}
	if rates[0].Name != "Plan Uno" || rates[1].Name != "Plan Dos" {
		t.Errorf("names = %q, %q", rates[0].Name, rates[1].Name)
	}
	if *rates[1].EnergyPrices[0] != 0.140 {
		t.Errorf("plan dos energy p1 = %v", *rates[1].EnergyPrices[0])
	}
}

func TestParseTextRejectsEmptySheet(t *testing.T) {
	if _, err := ParseText("nothing useful here"); err == nil {
		t.Fatal("expected error for sheet without tariffs")
	}
	// A tariff heading without a period-1 price is also rejected.
	if _, err := ParseText("Tarifa: Vacía\nPotencia P1: 0,30"); err == nil {
		t.Fatal("expected error for tariff without energy price")
	}
}

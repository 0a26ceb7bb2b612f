package mapper

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-carbonform/pkg/model"
)

func fuelSchema() model.FormSchema {
	return model.FormSchema{
		"fuel": {
			Key:   "fuel",
			Title: "Fuel",
			Fields: []model.FieldDescriptor{
				{Name: "amount", Title: "Amount", Required: true},
				{Name: "date", Title: "Date", Required: true},
				{Name: "type", Title: "Type"},
				{Name: "uom", Title: "Unit"},
			},
		},
	}
}

func TestToBackendPayload(t *testing.T) {
	values := map[string]any{"amount": "50", "type": "Diesel"}
	got := ToBackendPayload("fuel", values)
	want := map[string]any{"amount": "50", "type": "Diesel", "category": "fuel"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	if _, ok := values["category"]; ok {
		t.Fatalf("expected input values untouched")
	}

	got = ToBackendPayload("fuel", map[string]any{"category": "Diesel"})
	if got["category"] != "Diesel" {
		t.Fatalf("expected form category field to be kept, got %v", got["category"])
	}
}

func TestFromBackendResponse_CaseVariants(t *testing.T) {
	record := map[string]any{
		"AMOUNT":   float64(50),
		"Type":     "Diesel",
		"END_DATE": "2024-01-31",
		"co2e":     12.5,
	}
	got := FromBackendResponse("fuel", record, fuelSchema())
	want := map[string]any{
		"amount": float64(50),
		"type":   "Diesel",
		"date":   "2024-01-31",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mapped mismatch (-want +got):\n%s", diff)
	}
}

func TestFromBackendResponse_ExactWinsAndDatePreference(t *testing.T) {
	record := map[string]any{
		"amount":   1,
		"AMOUNT":   2,
		"END_DATE": "end",
		"Date":     "capitalised",
	}
	got := FromBackendResponse("fuel", record, fuelSchema())
	if got["amount"] != 1 {
		t.Fatalf("expected exact key to win, got %v", got["amount"])
	}
	if got["date"] != "capitalised" {
		t.Fatalf("expected case variant before synonyms, got %v", got["date"])
	}
}

func TestFromBackendResponse_UnknownCategory(t *testing.T) {
	got := FromBackendResponse("water", map[string]any{"amount": 1}, fuelSchema())
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestMapResponse_Unmapped(t *testing.T) {
	record := map[string]any{"AMOUNT": 50, "co2e": 12.5, "factor_id": "f-1"}
	got := MapResponse("fuel", record, fuelSchema())

	if diff := cmp.Diff(map[string]any{"amount": 50}, got.Values); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"co2e": 12.5, "factor_id": "f-1"}, got.Unmapped); diff != "" {
		t.Fatalf("unmapped mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	values := map[string]any{"amount": "50", "date": "2024-01-01", "type": "Diesel", "uom": "litres"}
	payload := ToBackendPayload("fuel", values)

	// identity backend
	got := FromBackendResponse("fuel", payload, fuelSchema())
	if diff := cmp.Diff(values, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyVariants(t *testing.T) {
	want := []string{"date", "DATE", "Date", "End date", "END_DATE", "end_date"}
	if diff := cmp.Diff(want, KeyVariants("date")); diff != "" {
		t.Fatalf("variants mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"CO2"}, KeyVariants("CO2")[:1]); diff != "" {
		t.Fatalf("variants mismatch (-want +got):\n%s", diff)
	}
}

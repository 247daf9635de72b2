package api

import (
	"encoding/json"
	"testing"
)

func TestNumericAcceptsStringsAndNumbers(t *testing.T) {
	var out struct {
		A Numeric `json:"a"`
		B Numeric `json:"b"`
		C Numeric `json:"c"`
	}
	payload := `{"a": "0.457", "b": 12.5, "c": null}`
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.A.Float64() != 0.457 {
		t.Fatalf("a = %v, want 0.457", out.A.Float64())
	}
	if out.B.Float64() != 12.5 {
		t.Fatalf("b = %v, want 12.5", out.B.Float64())
	}
	if out.C.Float64() != 0 {
		t.Fatalf("c = %v, want 0", out.C.Float64())
	}
}

func TestTokenInfoFromGamma(t *testing.T) {
	market := &GammaMarket{
		Question:     "Will it rain tomorrow?",
		ConditionID:  "0xcond",
		Slug:         "will-it-rain",
		ClobTokenIds: `["111", "222"]`,
		Outcomes:     `["Yes", "No"]`,
		NegRisk:      true,
	}

	info := TokenInfoFromGamma(market, "222")
	if info.Outcome != "No" {
		t.Fatalf("outcome = %q, want No", info.Outcome)
	}
	if info.Title != market.Question {
		t.Fatalf("title = %q", info.Title)
	}
	if !info.NegRisk {
		t.Fatal("neg risk flag lost")
	}

	// Unknown token still yields market metadata, just no label.
	info = TokenInfoFromGamma(market, "999")
	if info.Outcome != "" {
		t.Fatalf("outcome = %q, want empty", info.Outcome)
	}
	if info.ConditionID != "0xcond" {
		t.Fatalf("conditionID = %q", info.ConditionID)
	}
}

func TestTokenInfoFromGammaCommaSeparatedFallback(t *testing.T) {
	market := &GammaMarket{
		ClobTokenIds: "111,222",
		Outcomes:     `["Up", "Down"]`,
	}
	info := TokenInfoFromGamma(market, "222")
	if info.Outcome != "Down" {
		t.Fatalf("outcome = %q, want Down", info.Outcome)
	}
}

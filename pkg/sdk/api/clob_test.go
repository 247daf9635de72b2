package api

import (
	"strings"
	"testing"
)

// Well-known throwaway key, never funded.
const testPrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestClobClient(t *testing.T) *ClobClient {
	t.Helper()
	auth, err := NewAuthFromKey(testPrivateKey)
	if err != nil {
		t.Fatalf("NewAuthFromKey: %v", err)
	}
	return NewClobClient(auth)
}

func TestCreateSignedOrderBuyAmounts(t *testing.T) {
	c := newTestClobClient(t)

	order, err := c.createSignedOrder("12345", SideBuy, 10.0, 0.457, false)
	if err != nil {
		t.Fatalf("createSignedOrder: %v", err)
	}

	// BUY gives USDC, receives tokens. 10 * 0.457 = 4.57 USDC.
	if order.MakerAmount != "4570000" {
		t.Fatalf("makerAmount = %s, want 4570000", order.MakerAmount)
	}
	if order.TakerAmount != "10000000" {
		t.Fatalf("takerAmount = %s, want 10000000", order.TakerAmount)
	}
	if order.Side != "BUY" || order.SideInt != 0 {
		t.Fatalf("side = %s/%d, want BUY/0", order.Side, order.SideInt)
	}
	if !strings.HasPrefix(order.Signature, "0x") || len(order.Signature) != 132 {
		t.Fatalf("signature %q is not 65 bytes hex", order.Signature)
	}
}

func TestCreateSignedOrderSellAmounts(t *testing.T) {
	c := newTestClobClient(t)

	order, err := c.createSignedOrder("12345", SideSell, 3.33, 0.2, true)
	if err != nil {
		t.Fatalf("createSignedOrder: %v", err)
	}

	// SELL gives tokens, receives USDC. 3.33 * 0.2 = 0.666 USDC.
	if order.MakerAmount != "3330000" {
		t.Fatalf("makerAmount = %s, want 3330000", order.MakerAmount)
	}
	if order.TakerAmount != "666000" {
		t.Fatalf("takerAmount = %s, want 666000", order.TakerAmount)
	}
	if order.SideInt != 1 {
		t.Fatalf("sideInt = %d, want 1", order.SideInt)
	}
}

func TestCreateSignedOrderRoundsSizeToTwoDecimals(t *testing.T) {
	c := newTestClobClient(t)

	order, err := c.createSignedOrder("12345", SideSell, 1.005, 0.5, false)
	if err != nil {
		t.Fatalf("createSignedOrder: %v", err)
	}
	// 1.005 rounds half-up to 1.01 tokens.
	if order.MakerAmount != "1010000" {
		t.Fatalf("makerAmount = %s, want 1010000", order.MakerAmount)
	}
}

func TestSignOrderRejectsNonDecimalToken(t *testing.T) {
	c := newTestClobClient(t)
	if _, err := c.createSignedOrder("0xdeadbeef", SideBuy, 1, 0.5, false); err == nil {
		t.Fatal("expected error for hex token id")
	}
}

func TestSignRequestHeaders(t *testing.T) {
	auth, err := NewAuthFromKey(testPrivateKey)
	if err != nil {
		t.Fatalf("NewAuthFromKey: %v", err)
	}

	headers, err := auth.SignRequest()
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}
	for _, key := range []string{"POLY_ADDRESS", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_NONCE"} {
		if headers[key] == "" {
			t.Fatalf("missing header %s", key)
		}
	}
	if !strings.HasPrefix(headers["POLY_SIGNATURE"], "0x") {
		t.Fatalf("signature %q not hex", headers["POLY_SIGNATURE"])
	}
}

package domain

import (
	"math/big"
	"testing"
)

const (
	testTarget = "0xAbCd000000000000000000000000000000001234"
	otherAddr  = "0x9999000000000000000000000000000000009999"
	testToken  = "71321045679252212594626385532706912750332728571942532289631379312455583992563"
	testTx     = "0xDEAD00000000000000000000000000000000000000000000000000000000beef"
)

func usdc(f float64) *big.Int {
	return big.NewInt(int64(f * 1e6))
}

func TestClassifySides(t *testing.T) {
	cases := []struct {
		name  string
		ev    RawFillEvent
		side  Side
		price float64
		size  float64
	}{
		{
			name: "maker pays usdc is buy",
			ev: RawFillEvent{
				Maker: testTarget, Taker: otherAddr,
				MakerAssetID: SentinelAssetID, TakerAssetID: testToken,
				MakerAmount: usdc(5.0), TakerAmount: usdc(10.0),
				TxHash: testTx,
			},
			side: SideBuy, price: 0.5, size: 10.0,
		},
		{
			name: "maker gives tokens is sell",
			ev: RawFillEvent{
				Maker: testTarget, Taker: otherAddr,
				MakerAssetID: testToken, TakerAssetID: SentinelAssetID,
				MakerAmount: usdc(10.0), TakerAmount: usdc(5.0),
				TxHash: testTx,
			},
			side: SideSell, price: 0.5, size: 10.0,
		},
		{
			name: "taker receiving usdc is sell",
			ev: RawFillEvent{
				Maker: otherAddr, Taker: testTarget,
				MakerAssetID: testToken, TakerAssetID: SentinelAssetID,
				MakerAmount: usdc(20.0), TakerAmount: usdc(13.0),
				TxHash: testTx,
			},
			side: SideSell, price: 0.65, size: 20.0,
		},
		{
			name: "taker receiving tokens is buy",
			ev: RawFillEvent{
				Maker: otherAddr, Taker: testTarget,
				MakerAssetID: SentinelAssetID, TakerAssetID: testToken,
				MakerAmount: usdc(3.0), TakerAmount: usdc(4.0),
				TxHash: testTx,
			},
			side: SideBuy, price: 0.75, size: 4.0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.ev, testTarget)
			if got.Side != tc.side {
				t.Fatalf("side = %s, want %s", got.Side, tc.side)
			}
			if got.TokenID != testToken {
				t.Fatalf("tokenID = %s, want %s", got.TokenID, testToken)
			}
			if diff := got.Price - tc.price; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("price = %v, want %v", got.Price, tc.price)
			}
			if diff := got.Size - tc.size; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("size = %v, want %v", got.Size, tc.size)
			}
			if !got.Mirrorable() {
				t.Fatalf("expected mirrorable trade, got %+v", got)
			}
		})
	}
}

func TestClassifyCaseInsensitiveAddressMatch(t *testing.T) {
	ev := RawFillEvent{
		Maker: "0xABCD000000000000000000000000000000001234", Taker: otherAddr,
		MakerAssetID: SentinelAssetID, TakerAssetID: testToken,
		MakerAmount: usdc(1), TakerAmount: usdc(2),
		TxHash: testTx,
	}
	got := Classify(ev, "0xabcd000000000000000000000000000000001234")
	if got.Side != SideBuy {
		t.Fatalf("side = %s, want BUY", got.Side)
	}
}

func TestClassifyUnknown(t *testing.T) {
	t.Run("target not involved", func(t *testing.T) {
		ev := RawFillEvent{
			Maker: otherAddr, Taker: otherAddr,
			MakerAssetID: SentinelAssetID, TakerAssetID: testToken,
			MakerAmount: usdc(1), TakerAmount: usdc(2),
			TxHash: testTx,
		}
		got := Classify(ev, testTarget)
		if got.Side != SideUnknown {
			t.Fatalf("side = %s, want UNKNOWN", got.Side)
		}
		if got.Mirrorable() {
			t.Fatal("unknown trade must not be mirrorable")
		}
	})

	t.Run("token for token", func(t *testing.T) {
		ev := RawFillEvent{
			Maker: testTarget, Taker: otherAddr,
			MakerAssetID: testToken, TakerAssetID: "12345",
			MakerAmount: usdc(1), TakerAmount: usdc(2),
			TxHash: testTx,
		}
		got := Classify(ev, testTarget)
		if got.Side != SideUnknown {
			t.Fatalf("side = %s, want UNKNOWN", got.Side)
		}
	})
}

func TestTradeIDStable(t *testing.T) {
	a := TradeID("0xABC", testToken)
	b := TradeID("0xabc", testToken)
	if a != b {
		t.Fatalf("trade id not case-stable: %s vs %s", a, b)
	}
	fine := FillID("0xabc", "0x2f", testToken)
	if fine == a {
		t.Fatal("fill id must carry the log index")
	}
}

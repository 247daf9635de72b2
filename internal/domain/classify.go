package domain

import (
	"math/big"
	"time"
)

var usdcUnit = new(big.Float).SetFloat64(1e6)

// Classify turns a raw OrderFilled event into a Trade from the point of
// view of the target address.
//
// The exchange settles every fill as one token leg against one USDC leg,
// with the USDC leg carrying the sentinel asset id. Which leg the target
// gave away determines direction:
//
//	target is maker, makerAssetId == sentinel  -> BUY  (paid USDC for tokens)
//	target is maker, takerAssetId == sentinel  -> SELL (gave tokens for USDC)
//	target is taker, takerAssetId == sentinel  -> SELL
//	target is taker, makerAssetId == sentinel  -> BUY
//
// Fills where both legs are tokens, or where the target is neither party,
// classify as UNKNOWN and are never mirrored.
func Classify(ev RawFillEvent, target string) Trade {
	t := Trade{
		Source:      SourceEvent,
		Side:        SideUnknown,
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
		Timestamp:   time.Now(),
	}

	norm := NormalizeAddress(target)
	isMaker := NormalizeAddress(ev.Maker) == norm
	isTaker := NormalizeAddress(ev.Taker) == norm
	if !isMaker && !isTaker {
		return t
	}
	if isMaker {
		t.Trader = ev.Maker
	} else {
		t.Trader = ev.Taker
	}

	makerIsUSDC := ev.MakerAssetID == SentinelAssetID
	takerIsUSDC := ev.TakerAssetID == SentinelAssetID
	if makerIsUSDC == takerIsUSDC {
		// Either no settlement leg or two of them, nothing to mirror.
		return t
	}

	var tokenAmt, usdcAmt *big.Int
	if makerIsUSDC {
		t.TokenID = ev.TakerAssetID
		usdcAmt, tokenAmt = ev.MakerAmount, ev.TakerAmount
	} else {
		t.TokenID = ev.MakerAssetID
		tokenAmt, usdcAmt = ev.MakerAmount, ev.TakerAmount
	}

	if isMaker {
		if makerIsUSDC {
			t.Side = SideBuy
		} else {
			t.Side = SideSell
		}
	} else {
		if takerIsUSDC {
			t.Side = SideSell
		} else {
			t.Side = SideBuy
		}
	}

	t.Size = toFloat6(tokenAmt)
	t.UsdcSize = toFloat6(usdcAmt)
	if t.Size > 0 {
		t.Price = t.UsdcSize / t.Size
	}
	t.ID = TradeID(ev.TxHash, t.TokenID)
	return t
}

func toFloat6(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	f.Quo(f, usdcUnit)
	out, _ := f.Float64()
	return out
}

// Package domain holds the core trade model shared by the event feed,
// the activity poller and the order mirror.
package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// SentinelAssetID is the asset id of the USDC settlement leg in an
// OrderFilled event. On the wire it is a 32-byte zero word; decoded as a
// decimal string it is "0".
const SentinelAssetID = "0"

// Source identifies which feed detected a trade.
type Source string

const (
	SourceEvent Source = "event" // on-chain OrderFilled subscription
	SourcePoll  Source = "poll"  // data-api activity poller
)

// Side is the direction of the target account's trade.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "UNKNOWN"
)

// RawFillEvent is a decoded OrderFilled log from one of the CTF Exchange
// contracts. Asset ids are decimal strings, amounts 6-decimal base units,
// both as emitted on chain.
type RawFillEvent struct {
	OrderHash    string
	Maker        string // lowercase, 0x-prefixed
	Taker        string
	MakerAssetID string // decimal string, "0" for the USDC leg
	TakerAssetID string
	MakerAmount  *big.Int
	TakerAmount  *big.Int
	Fee          *big.Int
	BlockNumber  uint64
	TxHash       string
	LogIndex     string // unique within tx, distinguishes multiple fills
}

// Trade is a normalized detection from either feed, ready for mirroring.
type Trade struct {
	ID          string
	Source      Source
	Side        Side
	TokenID     string
	Price       float64
	Size        float64 // outcome tokens
	UsdcSize    float64
	TxHash      string
	BlockNumber uint64
	ConditionID string
	Title       string
	Outcome     string
	NegRisk     bool
	Trader      string
	Timestamp   time.Time
}

// Mirrorable reports whether the trade carries enough information to be
// turned into an order. UNKNOWN sides are detections only.
func (t Trade) Mirrorable() bool {
	return t.TokenID != "" && t.TokenID != SentinelAssetID &&
		(t.Side == SideBuy || t.Side == SideSell) &&
		t.Size > 0 && t.Price > 0
}

// TradeID builds the cross-feed dedup key for a fill: transaction hash
// plus token id, lowercased.
func TradeID(txHash, tokenID string) string {
	return strings.ToLower(txHash) + ":" + strings.ToLower(tokenID)
}

// FillID builds the per-fill key for the event path. The exchange emits one
// OrderFilled log per maker order matched, so a single transaction can fill
// the same token several times; the log index keeps them apart.
func FillID(txHash, logIndex, tokenID string) string {
	return fmt.Sprintf("%s:%s:%s", strings.ToLower(txHash), strings.ToLower(logIndex), strings.ToLower(tokenID))
}

// NormalizeAddress lowercases an address and strips the 0x prefix so
// comparisons against log topics are cheap.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(addr), "0x"))
}

// Package feed contains the two trade detection paths: the on-chain
// OrderFilled subscription and the data-api activity poller.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gomirror/internal/domain"
	"github.com/betbot/gomirror/internal/metrics"
	"github.com/betbot/gomirror/pkg/sdk/api"
)

const (
	defaultWSURL       = "wss://polygon-bor-rpc.publicnode.com"
	defaultWSBackupURL = "wss://polygon.drpc.org"

	// keccak256("OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)")
	orderFilledTopic = "0xd0a08e8c493f9c94f29311604c9de1b4e8c8d4c06bd0c789af57f2d65bfec0f6"

	reconnectDelay = 5 * time.Second
)

// EventStream subscribes to OrderFilled logs on Polygon and emits decoded
// fills where the target address is maker or taker.
//
// Two log subscriptions are held per connection, one filtering on the
// indexed maker topic and one on the indexed taker topic, so the node does
// the address matching and the stream only ever sees the target's fills.
type EventStream struct {
	url       string
	backupURL string
	target    string // lowercase, no 0x prefix
	onFill    func(domain.RawFillEvent)
	log       *logrus.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	// Active subscription ids on the current connection.
	subIDs   map[string]bool
	subIDsMu sync.Mutex

	eventsReceived atomic.Int64
	fillsEmitted   atomic.Int64
}

func NewEventStream(url, backupURL, target string, onFill func(domain.RawFillEvent), log *logrus.Logger) *EventStream {
	if url == "" {
		url = defaultWSURL
	}
	if backupURL == "" {
		backupURL = defaultWSBackupURL
	}
	return &EventStream{
		url:       url,
		backupURL: backupURL,
		target:    domain.NormalizeAddress(target),
		onFill:    onFill,
		log:       log,
		subIDs:    make(map[string]bool),
	}
}

// Run connects, subscribes and reads until ctx is cancelled. Transport
// failures reconnect after a fixed delay; they never propagate out.
func (s *EventStream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			s.close()
			return
		}

		if err := s.connect(ctx); err != nil {
			s.log.Warnf("[eventstream] connect failed: %v, retrying in %s", err, reconnectDelay)
			metrics.WSReconnects.Add(1)
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
			continue
		}

		if err := s.subscribeAll(); err != nil {
			s.log.Warnf("[eventstream] subscribe failed: %v, reconnecting in %s", err, reconnectDelay)
			s.close()
			metrics.WSReconnects.Add(1)
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
			continue
		}

		s.log.Infof("[eventstream] subscribed to OrderFilled for target 0x%s", s.target)
		s.readUntilError(ctx)
		s.close()

		if ctx.Err() != nil {
			return
		}
		metrics.WSReconnects.Add(1)
		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

// Stats reports events received and target fills emitted.
func (s *EventStream) Stats() (received, emitted int64) {
	return s.eventsReceived.Load(), s.fillsEmitted.Load()
}

func (s *EventStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.log.Debugf("[eventstream] primary endpoint failed: %v, trying backup", err)
		conn, _, err = dialer.DialContext(ctx, s.backupURL, nil)
		if err != nil {
			return fmt.Errorf("all endpoints failed: %w", err)
		}
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// subscribeAll opens one eth_subscribe per indexed address position. The
// maker filter uses topics[2], the taker filter topics[3]; both cover the
// two exchange contracts.
func (s *EventStream) subscribeAll() error {
	s.subIDsMu.Lock()
	s.subIDs = make(map[string]bool)
	s.subIDsMu.Unlock()

	paddedTarget := "0x" + strings.Repeat("0", 24) + s.target

	filters := []struct {
		id     int
		topics []interface{}
	}{
		// topics: [signature, orderHash (any), maker, taker]
		{1, []interface{}{orderFilledTopic, nil, paddedTarget}},
		{2, []interface{}{orderFilledTopic, nil, nil, paddedTarget}},
	}

	for _, f := range filters {
		subID, err := s.subscribe(f.id, f.topics)
		if err != nil {
			return err
		}
		s.subIDsMu.Lock()
		s.subIDs[subID] = true
		s.subIDsMu.Unlock()
	}
	return nil
}

func (s *EventStream) subscribe(id int, topics []interface{}) (string, error) {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return "", fmt.Errorf("not connected")
	}

	msg := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "eth_subscribe",
		"params": []interface{}{
			"logs",
			map[string]interface{}{
				"address": []string{api.CTFExchangeAddress, api.NegRiskCTFExchange},
				"topics":  topics,
			},
		},
		"id": id,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return "", fmt.Errorf("subscribe write: %w", err)
	}

	// A log notification from an already-live subscription can interleave
	// with the handshake, so match the response by its JSON-RPC id and
	// route any eth_subscription frames through the normal path.
	deadline := time.Now().Add(10 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("subscribe read: %w", err)
		}

		var resp struct {
			ID     *int            `json:"id"`
			Method string          `json:"method"`
			Result json.RawMessage `json:"result"`
			Error  *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", fmt.Errorf("subscribe parse: %w", err)
		}
		if resp.ID == nil || *resp.ID != id {
			if resp.Method == "eth_subscription" {
				s.handleMessage(raw)
			}
			continue
		}

		conn.SetReadDeadline(time.Time{})
		if resp.Error != nil {
			return "", fmt.Errorf("subscribe rejected: %s", resp.Error.Message)
		}
		var subID string
		if err := json.Unmarshal(resp.Result, &subID); err != nil {
			return "", fmt.Errorf("subscribe parse: %w", err)
		}
		return subID, nil
	}
}

func (s *EventStream) readUntilError(ctx context.Context) {
	// ReadMessage only unblocks when the connection closes, so tie the
	// connection's life to the context.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-done:
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warnf("[eventstream] read error: %v", err)
			}
			return
		}
		s.handleMessage(raw)
	}
}

func (s *EventStream) handleMessage(raw []byte) {
	var notif struct {
		Method string `json:"method"`
		Params struct {
			Subscription string          `json:"subscription"`
			Result       json.RawMessage `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &notif); err != nil {
		return
	}
	if notif.Method != "eth_subscription" {
		return
	}
	s.subIDsMu.Lock()
	known := s.subIDs[notif.Params.Subscription]
	s.subIDsMu.Unlock()
	if !known {
		return
	}

	var entry struct {
		Topics          []string `json:"topics"`
		Data            string   `json:"data"`
		BlockNumber     string   `json:"blockNumber"`
		TransactionHash string   `json:"transactionHash"`
		LogIndex        string   `json:"logIndex"`
		Removed         bool     `json:"removed"`
	}
	if err := json.Unmarshal(notif.Params.Result, &entry); err != nil {
		s.log.Debugf("[eventstream] bad log entry: %v", err)
		return
	}
	if entry.Removed {
		// Reorged out. The trade may resettle with the same tx hash, and
		// the dedup ledger already holds the original, so just drop it.
		return
	}

	s.eventsReceived.Add(1)
	metrics.EventsReceived.Add(1)

	ev, err := decodeOrderFilled(entry.Topics, entry.Data, entry.TransactionHash, entry.BlockNumber, entry.LogIndex)
	if err != nil {
		metrics.EventDecodeErrors.Add(1)
		s.log.Warnf("[eventstream] decode failed for tx %s: %v", entry.TransactionHash, err)
		return
	}

	// Subscriptions are already filtered server side; this guards against
	// a node that ignores the topic filter.
	if domain.NormalizeAddress(ev.Maker) != s.target && domain.NormalizeAddress(ev.Taker) != s.target {
		return
	}

	s.fillsEmitted.Add(1)
	if s.onFill != nil {
		s.onFill(ev)
	}
}

func (s *EventStream) close() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// decodeOrderFilled unpacks an OrderFilled log.
//
//	topics[1] orderHash, topics[2] maker, topics[3] taker
//	data: makerAssetId, takerAssetId, makerAmountFilled, takerAmountFilled, fee
//
// Asset ids are returned as decimal strings so they line up with the token
// ids the CLOB and gamma APIs use; the zero word becomes "0".
func decodeOrderFilled(topics []string, data, txHash, blockNum, logIndex string) (domain.RawFillEvent, error) {
	ev := domain.RawFillEvent{
		TxHash:   strings.ToLower(txHash),
		LogIndex: logIndex,
	}

	if len(topics) < 4 {
		return ev, fmt.Errorf("expected 4 topics, got %d", len(topics))
	}
	ev.OrderHash = topics[1]
	ev.Maker = topicToAddress(topics[2])
	ev.Taker = topicToAddress(topics[3])

	if strings.HasPrefix(blockNum, "0x") {
		if bn, ok := new(big.Int).SetString(blockNum[2:], 16); ok {
			ev.BlockNumber = bn.Uint64()
		}
	}

	dataHex := strings.TrimPrefix(data, "0x")
	if len(dataHex) < 320 {
		return ev, fmt.Errorf("data too short: %d hex chars, want 320", len(dataHex))
	}

	words := make([]*big.Int, 5)
	for i := range words {
		w, ok := new(big.Int).SetString(dataHex[i*64:(i+1)*64], 16)
		if !ok {
			return ev, fmt.Errorf("bad data word %d", i)
		}
		words[i] = w
	}

	ev.MakerAssetID = words[0].String()
	ev.TakerAssetID = words[1].String()
	ev.MakerAmount = words[2]
	ev.TakerAmount = words[3]
	ev.Fee = words[4]
	return ev, nil
}

// topicToAddress takes the last 20 bytes of a 32-byte topic.
func topicToAddress(topic string) string {
	h := strings.TrimPrefix(topic, "0x")
	if len(h) < 40 {
		return ""
	}
	return "0x" + strings.ToLower(h[len(h)-40:])
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

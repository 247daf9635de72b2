package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// CTF Exchange contracts on Polygon. Both emit OrderFilled and both accept
// signed orders; neg-risk markets settle through the second one.
const (
	CTFExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	NegRiskCTFExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
)

// ClobClient places orders against the CLOB API. Order posting uses a raw
// http.Client because the L2 signature covers the exact request body bytes.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	auth       *Auth
	apiCreds   *APICreds
	chainID    int64
}

// APICreds are the L2 credentials derived from the wallet signature.
type APICreds struct {
	APIKey        string `json:"apiKey"`
	APISecret     string `json:"secret"`
	APIPassphrase string `json:"passphrase"`
}

// OrderBook is the book for one token.
type OrderBook struct {
	Market    string           `json:"market"`
	AssetID   string           `json:"asset_id"`
	Timestamp string           `json:"timestamp"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
}

type OrderBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// MarketInfo is the CLOB market detail record.
type MarketInfo struct {
	ConditionID      string          `json:"condition_id"`
	Tokens           []ClobTokenInfo `json:"tokens"`
	MinimumOrderSize float64         `json:"minimum_order_size"`
	MinimumTickSize  float64         `json:"minimum_tick_size"`
	Question         string          `json:"question"`
	Active           bool            `json:"active"`
	Closed           bool            `json:"closed"`
	MarketSlug       string          `json:"market_slug"`
	NegRisk          bool            `json:"neg_risk"`
}

type ClobTokenInfo struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
}

// OrderType selects how the book treats a posted order.
type OrderType string

const (
	OrderTypeFOK OrderType = "FOK" // fill entirely or cancel
	OrderTypeFAK OrderType = "FAK" // fill what is available, cancel the rest
	OrderTypeGTC OrderType = "GTC" // rest in the book
)

// Side is the CLOB order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is a signed exchange order.
type Order struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
	SideInt       int    `json:"-"` // EIP-712 enum value
}

type OrderRequest struct {
	Order     Order     `json:"order"`
	Owner     string    `json:"owner"`
	OrderType OrderType `json:"orderType"`
}

// OrderResponse is the CLOB's answer to a posted order. Absence of
// Success means the order was not accepted.
type OrderResponse struct {
	Success     bool     `json:"success"`
	ErrorMsg    string   `json:"errorMsg"`
	OrderID     string   `json:"orderId"`
	OrderHashes []string `json:"orderHashes"`
	Status      string   `json:"status"` // matched, live, delayed, unmatched
}

// NewClobClient creates a CLOB client for the given signing wallet.
func NewClobClient(auth *Auth) *ClobClient {
	baseURL := os.Getenv("POLYMARKET_CLOB_API_URL")
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
	}
	return &ClobClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		auth:    auth,
		chainID: 137,
	}
}

// DeriveAPICreds creates or derives the L2 credentials for this wallet.
// Must be called before any order is posted.
func (c *ClobClient) DeriveAPICreds(ctx context.Context) (*APICreds, error) {
	creds, err := c.createAPICreds(ctx)
	if err != nil {
		creds, err = c.deriveAPICreds(ctx)
		if err != nil {
			return nil, fmt.Errorf("derive API creds: %w", err)
		}
	}
	c.apiCreds = creds
	return creds, nil
}

func (c *ClobClient) createAPICreds(ctx context.Context) (*APICreds, error) {
	body := fmt.Sprintf(`{"nonce":%d}`, time.Now().UnixNano())
	return c.credsRequest(ctx, http.MethodPost, "/auth/api-key", body)
}

func (c *ClobClient) deriveAPICreds(ctx context.Context) (*APICreds, error) {
	return c.credsRequest(ctx, http.MethodGet, "/auth/derive-api-key", "")
}

func (c *ClobClient) credsRequest(ctx context.Context, method, path, body string) (*APICreds, error) {
	headers, err := c.auth.SignRequest()
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var creds APICreds
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("decode API creds: %w", err)
	}
	return &creds, nil
}

// GetOrderBook fetches the book for a token, asks ascending and bids
// descending so index 0 is always the best level.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	values := url.Values{}
	values.Set("token_id", tokenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/book?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get order book: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var book OrderBook
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, fmt.Errorf("decode order book: %w", err)
	}

	sort.Slice(book.Asks, func(i, j int) bool {
		pi, _ := strconv.ParseFloat(book.Asks[i].Price, 64)
		pj, _ := strconv.ParseFloat(book.Asks[j].Price, 64)
		return pi < pj
	})
	sort.Slice(book.Bids, func(i, j int) bool {
		pi, _ := strconv.ParseFloat(book.Bids[i].Price, 64)
		pj, _ := strconv.ParseFloat(book.Bids[j].Price, 64)
		return pi > pj
	})
	return &book, nil
}

// GetMarket fetches CLOB market detail by condition id.
func (c *ClobClient) GetMarket(ctx context.Context, conditionID string) (*MarketInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/markets/"+conditionID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get market: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var market MarketInfo
	if err := json.NewDecoder(resp.Body).Decode(&market); err != nil {
		return nil, fmt.Errorf("decode market: %w", err)
	}
	return &market, nil
}

// PlaceOrderFAK signs and posts a fill-and-kill order: take whatever the
// book offers at the price, cancel the unfilled remainder.
func (c *ClobClient) PlaceOrderFAK(ctx context.Context, tokenID string, side Side, size, price float64, negRisk bool) (*OrderResponse, error) {
	if c.apiCreds == nil {
		return nil, fmt.Errorf("API credentials not derived")
	}

	order, err := c.createSignedOrder(tokenID, side, size, price, negRisk)
	if err != nil {
		return nil, fmt.Errorf("create signed order: %w", err)
	}
	return c.postOrder(ctx, order, OrderTypeFAK)
}

// createSignedOrder converts the human-readable size and price into
// 6-decimal exchange units and signs the result.
//
// The exchange requires token amounts divisible by 0.01 and USDC amounts
// divisible by 0.0001, both in 6-decimal base units.
func (c *ClobClient) createSignedOrder(tokenID string, side Side, size, price float64, negRisk bool) (*Order, error) {
	sizeDec := decimal.NewFromFloat(size).Round(2)
	usdcDec := sizeDec.Mul(decimal.NewFromFloat(price)).Round(4)

	sizeUnits := sizeDec.Shift(6).BigInt()
	usdcUnits := usdcDec.Shift(6).BigInt()

	var makerAmount, takerAmount *big.Int
	sideInt := 0
	if side == SideBuy {
		makerAmount, takerAmount = usdcUnits, sizeUnits
		sideInt = 0
	} else {
		makerAmount, takerAmount = sizeUnits, usdcUnits
		sideInt = 1
	}

	addr := c.auth.GetAddress().Hex()
	order := &Order{
		Salt:          time.Now().UnixNano() % 1000000000,
		Maker:         addr,
		Signer:        addr,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          string(side),
		SignatureType: 0, // EOA
		SideInt:       sideInt,
	}

	signature, err := c.signOrder(order, negRisk)
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}
	order.Signature = signature
	return order, nil
}

func (c *ClobClient) signOrder(order *Order, negRisk bool) (string, error) {
	verifyingContract := CTFExchangeAddress
	if negRisk {
		verifyingContract = NegRiskCTFExchange
	}

	domain := apitypes.TypedDataDomain{
		Name:              "Polymarket CTF Exchange",
		Version:           "1",
		ChainId:           math.NewHexOrDecimal256(c.chainID),
		VerifyingContract: verifyingContract,
	}

	tokenId, ok := new(big.Int).SetString(order.TokenID, 10)
	if !ok {
		return "", fmt.Errorf("token id %q is not decimal", order.TokenID)
	}
	makerAmount, _ := new(big.Int).SetString(order.MakerAmount, 10)
	takerAmount, _ := new(big.Int).SetString(order.TakerAmount, 10)

	message := map[string]interface{}{
		"salt":          big.NewInt(order.Salt),
		"maker":         common.HexToAddress(order.Maker).Hex(),
		"signer":        common.HexToAddress(order.Signer).Hex(),
		"taker":         common.HexToAddress(order.Taker).Hex(),
		"tokenId":       tokenId,
		"makerAmount":   makerAmount,
		"takerAmount":   takerAmount,
		"expiration":    big.NewInt(0),
		"nonce":         big.NewInt(0),
		"feeRateBps":    big.NewInt(0),
		"side":          big.NewInt(int64(order.SideInt)),
		"signatureType": big.NewInt(int64(order.SignatureType)),
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": []apitypes.Type{
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain,
		Message:     message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("hash typed data: %w", err)
	}

	signature, err := crypto.Sign(hash, c.auth.GetPrivateKey())
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	signature[64] += 27

	return "0x" + hex.EncodeToString(signature), nil
}

func (c *ClobClient) postOrder(ctx context.Context, order *Order, orderType OrderType) (*OrderResponse, error) {
	payload := OrderRequest{
		Order:     *order,
		Owner:     c.apiCreds.APIKey,
		OrderType: orderType,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	c.addL2Headers(req, body)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post order: %d %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(respBody, &orderResp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	return &orderResp, nil
}

// addL2Headers signs timestamp + method + path + body with the API secret.
func (c *ClobClient) addL2Headers(req *http.Request, body []byte) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	message := timestamp + req.Method + req.URL.Path + string(body)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_ADDRESS", c.auth.GetAddress().Hex())
	req.Header.Set("POLY_API_KEY", c.apiCreds.APIKey)
	req.Header.Set("POLY_PASSPHRASE", c.apiCreds.APIPassphrase)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_SIGNATURE", c.hmacSign(message, c.apiCreds.APISecret))
}

func (c *ClobClient) hmacSign(message, secret string) string {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		key, err = base64.StdEncoding.DecodeString(secret)
		if err != nil {
			key = []byte(secret)
		}
	}

	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

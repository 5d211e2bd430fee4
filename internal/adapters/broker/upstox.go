package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
	"go.uber.org/zap"
)

// minExpiryGapDays excludes expiries closing within the settlement window
// when picking the weekly contract.
const minExpiryGapDays = 2

// UpstoxClient implements MarketDataProvider and ExecutionProvider against
// the Upstox REST API. Instrument metadata for positions is resolved from a
// cache filled by chain fetches, the same way the original registry works.
type UpstoxClient struct {
	client *http.Client
	cfg    *config.BrokerConfig

	// symbol -> instrument key, built from config
	keys map[string]string

	mu          sync.RWMutex
	instruments map[string]instrumentMeta
	lotSize     int
}

type instrumentMeta struct {
	strike     float64
	optionType models.OptionType
	expiry     time.Time
	lotSize    int
}

// NewUpstoxClient creates the REST client
func NewUpstoxClient(cfg *config.BrokerConfig, trading *config.TradingConfig) *UpstoxClient {
	return &UpstoxClient{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		keys: map[string]string{
			trading.UnderlyingSymbol: cfg.UnderlyingKey,
			trading.VolIndexSymbol:   cfg.VolIndexKey,
		},
		instruments: make(map[string]instrumentMeta),
	}
}

func (u *UpstoxClient) instrumentKey(symbol string) string {
	if key, ok := u.keys[symbol]; ok {
		return key
	}
	return symbol
}

func (u *UpstoxClient) do(ctx context.Context, method, rawURL string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetHistory fetches daily candles for the symbol, oldest first
func (u *UpstoxClient) GetHistory(ctx context.Context, symbol string, lookbackDays int) ([]models.Bar, error) {
	key := url.PathEscape(u.instrumentKey(symbol))
	to := time.Now().Format("2006-01-02")
	from := time.Now().AddDate(0, 0, -lookbackDays).Format("2006-01-02")
	endpoint := fmt.Sprintf("%s/historical-candle/%s/day/%s/%s", u.cfg.BaseURLV2, key, to, from)

	var result struct {
		Data struct {
			Candles [][]any `json:"candles"`
		} `json:"data"`
	}
	if err := u.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("history fetch for %s: %w", symbol, err)
	}

	bars := make([]models.Bar, 0, len(result.Data.Candles))
	for _, c := range result.Data.Candles {
		if len(c) < 6 {
			continue
		}
		ts, ok := c[0].(string)
		if !ok {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Timestamp: parsed,
			Symbol:    symbol,
			Open:      models.NewDecimal(asFloat(c[1])),
			High:      models.NewDecimal(asFloat(c[2])),
			Low:       models.NewDecimal(asFloat(c[3])),
			Close:     models.NewDecimal(asFloat(c[4])),
			Volume:    models.NewDecimal(asFloat(c[5])),
		})
	}

	// API returns newest first
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// GetLiveQuote returns last prices keyed by the requested symbols
func (u *UpstoxClient) GetLiveQuote(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	keys := make([]string, 0, len(symbols))
	bySymbol := make(map[string]string, len(symbols))
	for _, s := range symbols {
		key := u.instrumentKey(s)
		keys = append(keys, key)
		bySymbol[key] = s
	}

	endpoint := fmt.Sprintf("%s/market-quote/ltp?instrument_key=%s",
		u.cfg.BaseURLV3, url.QueryEscape(strings.Join(keys, ",")))

	var result struct {
		Data map[string]struct {
			LastPrice       float64 `json:"last_price"`
			InstrumentToken string  `json:"instrument_token"`
		} `json:"data"`
	}
	if err := u.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("quote fetch: %w", err)
	}

	quotes := make(map[string]float64, len(symbols))
	for _, entry := range result.Data {
		symbol, ok := bySymbol[entry.InstrumentToken]
		if !ok {
			continue
		}
		if entry.LastPrice <= 0 {
			return nil, fmt.Errorf("%s: %w", symbol, ErrZeroPrice)
		}
		quotes[symbol] = entry.LastPrice
	}

	for _, s := range symbols {
		if _, ok := quotes[s]; !ok {
			return nil, fmt.Errorf("%s missing from quote response: %w", s, ErrZeroPrice)
		}
	}
	return quotes, nil
}

type chainSide struct {
	InstrumentKey string `json:"instrument_key"`
	MarketData    struct {
		LTP      float64 `json:"ltp"`
		Volume   int     `json:"volume"`
		OI       float64 `json:"oi"`
		BidPrice float64 `json:"bid_price"`
		AskPrice float64 `json:"ask_price"`
	} `json:"market_data"`
	Greeks *struct {
		Delta *float64 `json:"delta"`
		Gamma float64  `json:"gamma"`
		Theta float64  `json:"theta"`
		Vega  float64  `json:"vega"`
		IV    *float64 `json:"iv"`
	} `json:"option_greeks"`
}

// GetOptionChain fetches a full chain snapshot for the expiry. Strikes with
// broken greeks on either side are dropped, matching the quality gate's
// zero-IV accounting upstream.
func (u *UpstoxClient) GetOptionChain(ctx context.Context, expiry time.Time) (*models.OptionChain, error) {
	params := url.Values{}
	params.Set("instrument_key", u.cfg.UnderlyingKey)
	params.Set("expiry_date", expiry.Format("2006-01-02"))
	endpoint := fmt.Sprintf("%s/option/chain?%s", u.cfg.BaseURLV2, params.Encode())

	var result struct {
		Data []struct {
			StrikePrice float64    `json:"strike_price"`
			CallOptions *chainSide `json:"call_options"`
			PutOptions  *chainSide `json:"put_options"`
		} `json:"data"`
	}
	if err := u.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("option chain fetch: %w", err)
	}

	lotSize := u.cachedLotSize()
	chain := &models.OptionChain{Expiry: expiry, LotSize: lotSize}
	for _, row := range result.Data {
		ce, pe := row.CallOptions, row.PutOptions
		if ce == nil || pe == nil || ce.Greeks == nil || pe.Greeks == nil {
			continue
		}
		if ce.Greeks.IV == nil || pe.Greeks.IV == nil || ce.Greeks.Delta == nil || pe.Greeks.Delta == nil {
			continue
		}
		chain.Rows = append(chain.Rows, models.ChainRow{
			Strike:     row.StrikePrice,
			CallKey:    ce.InstrumentKey,
			PutKey:     pe.InstrumentKey,
			CallOI:     ce.MarketData.OI,
			PutOI:      pe.MarketData.OI,
			CallDelta:  *ce.Greeks.Delta,
			PutDelta:   *pe.Greeks.Delta,
			CallGamma:  ce.Greeks.Gamma,
			PutGamma:   pe.Greeks.Gamma,
			CallIV:     *ce.Greeks.IV,
			PutIV:      *pe.Greeks.IV,
			CallPrice:  ce.MarketData.LTP,
			PutPrice:   pe.MarketData.LTP,
			CallBid:    ce.MarketData.BidPrice,
			CallAsk:    ce.MarketData.AskPrice,
			PutBid:     pe.MarketData.BidPrice,
			PutAsk:     pe.MarketData.AskPrice,
			CallVolume: ce.MarketData.Volume,
			PutVolume:  pe.MarketData.Volume,
		})
		u.rememberInstrument(ce.InstrumentKey, row.StrikePrice, models.OptionCall, expiry, lotSize)
		u.rememberInstrument(pe.InstrumentKey, row.StrikePrice, models.OptionPut, expiry, lotSize)
	}

	sort.Slice(chain.Rows, func(i, j int) bool { return chain.Rows[i].Strike < chain.Rows[j].Strike })
	return chain, nil
}

// GetExpiriesAndLotSize returns the nearest tradeable weekly expiry, the
// farthest listed expiry and the contract lot size
func (u *UpstoxClient) GetExpiriesAndLotSize(ctx context.Context) (time.Time, time.Time, int, error) {
	params := url.Values{}
	params.Set("instrument_key", u.cfg.UnderlyingKey)
	endpoint := fmt.Sprintf("%s/option/contract?%s", u.cfg.BaseURLV2, params.Encode())

	var result struct {
		Data []struct {
			Expiry  string `json:"expiry"`
			LotSize int    `json:"lot_size"`
		} `json:"data"`
	}
	if err := u.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return time.Time{}, time.Time{}, 0, fmt.Errorf("contract fetch: %w", err)
	}
	if len(result.Data) == 0 {
		return time.Time{}, time.Time{}, 0, fmt.Errorf("no option contracts listed")
	}

	lotSize := 0
	seen := make(map[time.Time]bool)
	var expiries []time.Time
	for _, c := range result.Data {
		if lotSize == 0 && c.LotSize > 0 {
			lotSize = c.LotSize
		}
		d, err := time.Parse("2006-01-02", c.Expiry)
		if err != nil || seen[d] {
			continue
		}
		seen[d] = true
		expiries = append(expiries, d)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })

	today := time.Now().Truncate(24 * time.Hour)
	var valid []time.Time
	for _, d := range expiries {
		if int(d.Sub(today).Hours()/24) >= minExpiryGapDays {
			valid = append(valid, d)
		}
	}
	if len(valid) == 0 {
		return time.Time{}, time.Time{}, lotSize, fmt.Errorf("no tradeable expiry outside settlement window")
	}

	u.mu.Lock()
	u.lotSize = lotSize
	u.mu.Unlock()
	return valid[0], valid[len(valid)-1], lotSize, nil
}

// GetPositions reads the broker position book. Option metadata comes from
// the instrument cache; unknown instruments surface as non-option positions.
func (u *UpstoxClient) GetPositions(ctx context.Context) ([]models.Position, error) {
	endpoint := u.cfg.BaseURLV2 + "/portfolio/short-term-positions"

	var result struct {
		Data []struct {
			InstrumentToken string  `json:"instrument_token"`
			TradingSymbol   string  `json:"trading_symbol"`
			NetQuantity     int     `json:"net_quantity"`
			BuyPrice        float64 `json:"buy_price"`
			SellPrice       float64 `json:"sell_price"`
			LastPrice       float64 `json:"last_price"`
		} `json:"data"`
	}
	if err := u.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("position fetch: %w", err)
	}

	positions := make([]models.Position, 0, len(result.Data))
	for _, p := range result.Data {
		if p.NetQuantity == 0 {
			continue
		}
		side := models.SideBuy
		avg := p.BuyPrice
		if p.NetQuantity < 0 {
			side = models.SideSell
			avg = p.SellPrice
		}
		pos := models.Position{
			InstrumentKey: p.InstrumentToken,
			Symbol:        p.TradingSymbol,
			Side:          side,
			Quantity:      absInt(p.NetQuantity),
			AvgPrice:      models.NewDecimal(avg),
			CurrentPrice:  models.NewDecimal(p.LastPrice),
		}
		if meta, ok := u.lookupInstrument(p.InstrumentToken); ok {
			pos.Strike = meta.strike
			pos.OptionType = meta.optionType
			pos.Expiry = meta.expiry
			pos.LotSize = meta.lotSize
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// PlaceOrder submits a single leg and returns the broker order id
func (u *UpstoxClient) PlaceOrder(ctx context.Context, leg models.Leg, orderType models.OrderType) (string, error) {
	endpoint := u.cfg.BaseURLV3 + "/order/place"

	price := 0.0
	if orderType == models.TypeLimit {
		price, _ = leg.Price.Float64()
	}
	payload := map[string]any{
		"quantity":           leg.Quantity,
		"product":            "D",
		"validity":           "DAY",
		"price":              price,
		"tag":                "volguard",
		"instrument_token":   leg.InstrumentKey,
		"order_type":         string(orderType),
		"transaction_type":   string(leg.Side),
		"disclosed_quantity": 0,
		"trigger_price":      0.0,
		"is_amo":             false,
		"slice":              true,
	}

	var result struct {
		Status string `json:"status"`
		Data   struct {
			OrderID  string   `json:"order_id"`
			OrderIDs []string `json:"order_ids"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := u.do(ctx, http.MethodPost, endpoint, payload, &result); err != nil {
		return "", fmt.Errorf("order place: %w", err)
	}
	if result.Status != "success" {
		msg := "unknown error"
		if len(result.Errors) > 0 {
			msg = result.Errors[0].Message
		}
		return "", fmt.Errorf("%s: %w", msg, ErrOrderRejected)
	}
	if result.Data.OrderID != "" {
		return result.Data.OrderID, nil
	}
	if len(result.Data.OrderIDs) > 0 {
		return result.Data.OrderIDs[0], nil
	}
	return "", fmt.Errorf("order accepted without id: %w", ErrOrderRejected)
}

// CloseAllPositions flattens the book with opposite market orders
func (u *UpstoxClient) CloseAllPositions(ctx context.Context, reason string) error {
	positions, err := u.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("close all: %w", err)
	}

	var failures int
	for _, pos := range positions {
		leg := models.Leg{
			InstrumentKey: pos.InstrumentKey,
			Strike:        pos.Strike,
			OptionType:    pos.OptionType,
			Side:          pos.Side.Opposite(),
			Quantity:      pos.Quantity,
			LotSize:       pos.LotSize,
		}
		if _, err := u.PlaceOrder(ctx, leg, models.TypeMarket); err != nil {
			failures++
			logger.Error("Failed to close position",
				zap.String("instrument", pos.InstrumentKey),
				zap.String("reason", reason),
				zap.Error(err),
			)
		}
	}
	if failures > 0 {
		return fmt.Errorf("close all: %d of %d exits failed", failures, len(positions))
	}
	return nil
}

// GetAvailableFunds returns the deployable equity margin
func (u *UpstoxClient) GetAvailableFunds(ctx context.Context) (float64, error) {
	endpoint := u.cfg.BaseURLV2 + "/user/get-funds-and-margin?segment=SEC"

	var result struct {
		Data struct {
			Equity struct {
				AvailableMargin float64 `json:"available_margin"`
			} `json:"equity"`
		} `json:"data"`
	}
	if err := u.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return 0, fmt.Errorf("funds fetch: %w", err)
	}
	return result.Data.Equity.AvailableMargin, nil
}

// GetMarginRequired asks the broker for the combined basket margin
func (u *UpstoxClient) GetMarginRequired(ctx context.Context, legs []models.Leg) (float64, error) {
	endpoint := u.cfg.BaseURLV2 + "/charges/margin"

	type instrument struct {
		InstrumentKey   string `json:"instrument_key"`
		Quantity        int    `json:"quantity"`
		TransactionType string `json:"transaction_type"`
		Product         string `json:"product"`
	}
	payload := struct {
		Instruments []instrument `json:"instruments"`
	}{}
	for _, leg := range legs {
		payload.Instruments = append(payload.Instruments, instrument{
			InstrumentKey:   leg.InstrumentKey,
			Quantity:        leg.Quantity,
			TransactionType: string(leg.Side),
			Product:         "D",
		})
	}

	var result struct {
		Data struct {
			RequiredMargin float64 `json:"required_margin"`
		} `json:"data"`
	}
	if err := u.do(ctx, http.MethodPost, endpoint, payload, &result); err != nil {
		return 0, fmt.Errorf("margin fetch: %w", err)
	}
	return result.Data.RequiredMargin, nil
}

func (u *UpstoxClient) rememberInstrument(key string, strike float64, optType models.OptionType, expiry time.Time, lotSize int) {
	if key == "" {
		return
	}
	u.mu.Lock()
	u.instruments[key] = instrumentMeta{
		strike:     strike,
		optionType: optType,
		expiry:     expiry,
		lotSize:    lotSize,
	}
	u.mu.Unlock()
}

func (u *UpstoxClient) lookupInstrument(key string) (instrumentMeta, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	meta, ok := u.instruments[key]
	return meta, ok
}

func (u *UpstoxClient) cachedLotSize() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lotSize
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

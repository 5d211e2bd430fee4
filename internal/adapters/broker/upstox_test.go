package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/models"
)

func testClient(t *testing.T, handler http.Handler) (*UpstoxClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.BrokerConfig{
		BaseURLV2:     srv.URL,
		BaseURLV3:     srv.URL,
		AccessToken:   "test-token",
		UnderlyingKey: "NSE_INDEX|Nifty 50",
		VolIndexKey:   "NSE_INDEX|India VIX",
		Timeout:       2 * time.Second,
	}
	trading := &config.TradingConfig{
		UnderlyingSymbol: "NIFTY",
		VolIndexSymbol:   "INDIAVIX",
	}
	return NewUpstoxClient(cfg, trading), srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestGetLiveQuote(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/market-quote/ltp", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, map[string]any{
			"data": map[string]any{
				"NSE_INDEX:Nifty 50": map[string]any{
					"last_price":       24120.5,
					"instrument_token": "NSE_INDEX|Nifty 50",
				},
				"NSE_INDEX:India VIX": map[string]any{
					"last_price":       13.2,
					"instrument_token": "NSE_INDEX|India VIX",
				},
			},
		})
	})
	client, _ := testClient(t, mux)

	quotes, err := client.GetLiveQuote(context.Background(), []string{"NIFTY", "INDIAVIX"})
	if err != nil {
		t.Fatalf("GetLiveQuote: %v", err)
	}
	if quotes["NIFTY"] != 24120.5 {
		t.Errorf("NIFTY = %v, want 24120.5", quotes["NIFTY"])
	}
	if quotes["INDIAVIX"] != 13.2 {
		t.Errorf("INDIAVIX = %v, want 13.2", quotes["INDIAVIX"])
	}
}

func TestGetLiveQuoteZeroPrice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/market-quote/ltp", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": map[string]any{
				"NSE_INDEX:Nifty 50": map[string]any{
					"last_price":       0.0,
					"instrument_token": "NSE_INDEX|Nifty 50",
				},
			},
		})
	})
	client, _ := testClient(t, mux)

	_, err := client.GetLiveQuote(context.Background(), []string{"NIFTY"})
	if !errors.Is(err, ErrZeroPrice) {
		t.Fatalf("err = %v, want ErrZeroPrice", err)
	}
}

func TestGetOptionChainFeedsInstrumentCache(t *testing.T) {
	expiry := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)

	side := func(key string, delta, iv, ltp float64) map[string]any {
		return map[string]any{
			"instrument_key": key,
			"market_data": map[string]any{
				"ltp": ltp, "volume": 1200, "oi": 50000.0,
				"bid_price": ltp - 1, "ask_price": ltp + 1,
			},
			"option_greeks": map[string]any{
				"delta": delta, "gamma": 0.001, "theta": -8.0, "vega": 12.0, "iv": iv,
			},
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/option/chain", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("expiry_date"); got != "2026-09-03" {
			t.Errorf("expiry_date = %q", got)
		}
		writeJSON(w, map[string]any{
			"data": []any{
				map[string]any{
					"strike_price": 24000.0,
					"call_options": side("NSE_FO|CE24000", 0.50, 14.0, 120.0),
					"put_options":  side("NSE_FO|PE24000", -0.50, 14.5, 110.0),
				},
				// broken greeks dropped
				map[string]any{
					"strike_price": 24100.0,
					"call_options": map[string]any{"instrument_key": "NSE_FO|CE24100"},
					"put_options":  side("NSE_FO|PE24100", -0.40, 14.8, 90.0),
				},
			},
		})
	})
	mux.HandleFunc("/portfolio/short-term-positions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []any{
				map[string]any{
					"instrument_token": "NSE_FO|CE24000",
					"trading_symbol":   "NIFTY24000CE",
					"net_quantity":     -50,
					"sell_price":       118.0,
					"last_price":       95.0,
				},
			},
		})
	})
	client, _ := testClient(t, mux)

	chain, err := client.GetOptionChain(context.Background(), expiry)
	if err != nil {
		t.Fatalf("GetOptionChain: %v", err)
	}
	if len(chain.Rows) != 1 {
		t.Fatalf("rows = %d, want 1 (broken strike dropped)", len(chain.Rows))
	}
	row := chain.Rows[0]
	if row.Strike != 24000 || row.CallDelta != 0.50 || row.PutIV != 14.5 {
		t.Errorf("unexpected row mapping: %+v", row)
	}

	positions, err := client.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	pos := positions[0]
	if pos.Side != models.SideSell || pos.Quantity != 50 {
		t.Errorf("side = %s qty = %d, want SELL 50", pos.Side, pos.Quantity)
	}
	if pos.Strike != 24000 || pos.OptionType != models.OptionCall {
		t.Errorf("metadata not resolved from chain cache: %+v", pos)
	}
	if !pos.Expiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", pos.Expiry, expiry)
	}
}

func TestGetExpiriesAndLotSize(t *testing.T) {
	near := time.Now().Format("2006-01-02")
	weekly := time.Now().AddDate(0, 0, 6).Format("2006-01-02")
	monthly := time.Now().AddDate(0, 0, 27).Format("2006-01-02")

	mux := http.NewServeMux()
	mux.HandleFunc("/option/contract", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []any{
				map[string]any{"expiry": near, "lot_size": 50},
				map[string]any{"expiry": weekly, "lot_size": 50},
				map[string]any{"expiry": monthly, "lot_size": 50},
			},
		})
	})
	client, _ := testClient(t, mux)

	w, m, lot, err := client.GetExpiriesAndLotSize(context.Background())
	if err != nil {
		t.Fatalf("GetExpiriesAndLotSize: %v", err)
	}
	if lot != 50 {
		t.Errorf("lot = %d, want 50", lot)
	}
	if w.Format("2006-01-02") != weekly {
		t.Errorf("weekly = %s, want %s (inside settlement window excluded)", w.Format("2006-01-02"), weekly)
	}
	if m.Format("2006-01-02") != monthly {
		t.Errorf("monthly = %s, want %s", m.Format("2006-01-02"), monthly)
	}
}

func TestPlaceOrder(t *testing.T) {
	t.Run("sliced order returns first id", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/order/place", func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["transaction_type"] != "SELL" {
				t.Errorf("transaction_type = %v", payload["transaction_type"])
			}
			writeJSON(w, map[string]any{
				"status": "success",
				"data":   map[string]any{"order_ids": []string{"ord-1", "ord-2"}},
			})
		})
		client, _ := testClient(t, mux)

		leg := models.Leg{InstrumentKey: "NSE_FO|CE24000", Side: models.SideSell, Quantity: 100}
		id, err := client.PlaceOrder(context.Background(), leg, models.TypeMarket)
		if err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
		if id != "ord-1" {
			t.Errorf("id = %s, want ord-1", id)
		}
	})

	t.Run("rejection surfaces ErrOrderRejected", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/order/place", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{
				"status": "error",
				"errors": []any{map[string]any{"message": "insufficient funds"}},
			})
		})
		client, _ := testClient(t, mux)

		leg := models.Leg{InstrumentKey: "NSE_FO|CE24000", Side: models.SideBuy, Quantity: 50}
		_, err := client.PlaceOrder(context.Background(), leg, models.TypeMarket)
		if !errors.Is(err, ErrOrderRejected) {
			t.Fatalf("err = %v, want ErrOrderRejected", err)
		}
	})
}

func TestGetMarginRequired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/charges/margin", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Instruments []struct {
				InstrumentKey   string `json:"instrument_key"`
				TransactionType string `json:"transaction_type"`
			} `json:"instruments"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		if len(payload.Instruments) != 2 {
			t.Errorf("instruments = %d, want 2", len(payload.Instruments))
		}
		writeJSON(w, map[string]any{
			"data": map[string]any{"required_margin": 145000.0},
		})
	})
	client, _ := testClient(t, mux)

	legs := []models.Leg{
		{InstrumentKey: "NSE_FO|CE24200", Side: models.SideSell, Quantity: 50},
		{InstrumentKey: "NSE_FO|CE24400", Side: models.SideBuy, Quantity: 50},
	}
	margin, err := client.GetMarginRequired(context.Background(), legs)
	if err != nil {
		t.Fatalf("GetMarginRequired: %v", err)
	}
	if margin != 145000 {
		t.Errorf("margin = %v, want 145000", margin)
	}
}

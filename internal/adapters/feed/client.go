package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// GreeksClient maintains a WebSocket stream of live portfolio greeks from the
// broker feed. Consumers read the latest snapshot through Latest; the stream
// itself is fire-and-forget and reconnects on failure.
type GreeksClient struct {
	conn           *websocket.Conn
	url            string
	greeksChan     chan GreeksUpdate
	errorChan      chan error
	mu             sync.Mutex
	reconnectDelay time.Duration

	latestMu sync.RWMutex
	latest   *GreeksUpdate

	ctx    context.Context
	cancel context.CancelFunc
}

// GreeksUpdate is a single portfolio greeks snapshot from the feed
type GreeksUpdate struct {
	Greeks     models.Greeks
	ReceivedAt time.Time
}

type feedMessage struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
	Ts    int64           `json:"ts"`
}

type greeksPayload struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// NewGreeksClient creates new greeks feed client
func NewGreeksClient(cfg *config.FeedConfig) *GreeksClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &GreeksClient{
		url:            cfg.URL,
		greeksChan:     make(chan GreeksUpdate, 100),
		errorChan:      make(chan error, 10),
		reconnectDelay: cfg.ReconnectDelay,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect establishes WebSocket connection
func (gc *GreeksClient) Connect() error {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(gc.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to greeks feed: %w", err)
	}

	gc.conn = conn

	if err := gc.subscribe(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go gc.readMessages()
	go gc.pingHandler()

	logger.Info("greeks feed connected", zap.String("url", gc.url))

	return nil
}

func (gc *GreeksClient) subscribe() error {
	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"portfolio.greeks"},
	}

	if err := gc.conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	return nil
}

func (gc *GreeksClient) readMessages() {
	defer func() {
		gc.mu.Lock()
		if gc.conn != nil {
			gc.conn.Close()
		}
		gc.mu.Unlock()

		if gc.ctx.Err() == nil {
			logger.Info("attempting to reconnect greeks feed...")
			time.Sleep(gc.reconnectDelay)
			if err := gc.Connect(); err != nil {
				logger.Error("failed to reconnect greeks feed", zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-gc.ctx.Done():
			return
		default:
		}

		_, message, err := gc.conn.ReadMessage()
		if err != nil {
			logger.Error("greeks feed read error", zap.Error(err))
			gc.reportError(err)
			return
		}

		var msg feedMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("failed to parse feed message", zap.Error(err))
			continue
		}

		if msg.Topic == "portfolio.greeks" && len(msg.Data) > 0 {
			gc.handleGreeksMessage(msg)
		}
	}
}

// reportError hands the error to the consumer if one is listening. The send
// never blocks: a full errorChan would otherwise stall the reconnect in
// readMessages' deferred cleanup.
func (gc *GreeksClient) reportError(err error) {
	select {
	case gc.errorChan <- err:
	default:
	}
}

func (gc *GreeksClient) handleGreeksMessage(msg feedMessage) {
	var payload greeksPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		logger.Warn("failed to parse greeks data", zap.Error(err))
		return
	}

	update := GreeksUpdate{
		Greeks: models.Greeks{
			Delta: payload.Delta,
			Gamma: payload.Gamma,
			Theta: payload.Theta,
			Vega:  payload.Vega,
		},
		ReceivedAt: time.Now(),
	}

	gc.latestMu.Lock()
	gc.latest = &update
	gc.latestMu.Unlock()

	select {
	case gc.greeksChan <- update:
	default:
		logger.Warn("greeks channel full, dropping update")
	}
}

func (gc *GreeksClient) pingHandler() {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-gc.ctx.Done():
			return
		case <-ticker.C:
			gc.mu.Lock()
			if gc.conn != nil {
				ping := map[string]interface{}{
					"op": "ping",
				}
				if err := gc.conn.WriteJSON(ping); err != nil {
					logger.Error("failed to send ping", zap.Error(err))
				}
			}
			gc.mu.Unlock()
		}
	}
}

// Latest returns the most recent greeks snapshot, or nil if none has arrived.
// Staleness is the caller's concern: check ReceivedAt before trusting it.
func (gc *GreeksClient) Latest() *GreeksUpdate {
	gc.latestMu.RLock()
	defer gc.latestMu.RUnlock()

	if gc.latest == nil {
		return nil
	}
	snapshot := *gc.latest
	return &snapshot
}

// Updates returns channel for receiving greeks updates
func (gc *GreeksClient) Updates() <-chan GreeksUpdate {
	return gc.greeksChan
}

// Errors returns channel for receiving errors
func (gc *GreeksClient) Errors() <-chan error {
	return gc.errorChan
}

// Close closes WebSocket connection
func (gc *GreeksClient) Close() error {
	gc.cancel()

	gc.mu.Lock()
	defer gc.mu.Unlock()

	if gc.conn != nil {
		return gc.conn.Close()
	}

	return nil
}

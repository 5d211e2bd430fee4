package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shritish20/volguard/internal/adapters/config"
)

func newTestClient() *GreeksClient {
	return NewGreeksClient(&config.FeedConfig{
		URL:            "ws://localhost:1/feed",
		ReconnectDelay: time.Millisecond,
	})
}

func TestReportErrorNeverBlocks(t *testing.T) {
	gc := newTestClient()

	// Nothing drains the error channel; once its buffer fills, further
	// reports must still return so the read loop can proceed to reconnect.
	for i := 0; i < 3*cap(gc.errorChan); i++ {
		gc.reportError(fmt.Errorf("read failure %d", i))
	}

	if got := len(gc.errorChan); got != cap(gc.errorChan) {
		t.Errorf("buffered errors = %d, want %d", got, cap(gc.errorChan))
	}
	if err := <-gc.errorChan; err == nil {
		t.Error("expected a buffered error")
	}
}

func TestReportErrorDeliversToConsumer(t *testing.T) {
	gc := newTestClient()

	want := errors.New("connection reset")
	gc.reportError(want)

	select {
	case got := <-gc.Errors():
		if !errors.Is(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	default:
		t.Fatal("no error delivered")
	}
}

func TestHandleGreeksMessageUpdatesLatest(t *testing.T) {
	gc := newTestClient()

	data, _ := json.Marshal(greeksPayload{Delta: 42.5, Gamma: 0.8, Theta: -310, Vega: 120})
	gc.handleGreeksMessage(feedMessage{Topic: "portfolio.greeks", Data: data, Ts: time.Now().UnixMilli()})

	latest := gc.Latest()
	if latest == nil {
		t.Fatal("Latest() = nil after update")
	}
	if latest.Greeks.Delta != 42.5 {
		t.Errorf("delta = %v, want 42.5", latest.Greeks.Delta)
	}
	if time.Since(latest.ReceivedAt) > time.Second {
		t.Errorf("ReceivedAt stale: %v", latest.ReceivedAt)
	}

	select {
	case u := <-gc.Updates():
		if u.Greeks.Vega != 120 {
			t.Errorf("vega = %v, want 120", u.Greeks.Vega)
		}
	default:
		t.Fatal("no update published")
	}
}

func TestHandleGreeksMessageBadPayload(t *testing.T) {
	gc := newTestClient()

	gc.handleGreeksMessage(feedMessage{Topic: "portfolio.greeks", Data: json.RawMessage(`{"delta":"x"}`)})

	if gc.Latest() != nil {
		t.Error("malformed payload must not become the latest snapshot")
	}
}

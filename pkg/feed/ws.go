package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WSClient maintains a websocket ticker subscription and serves the most
// recent price per pair from an in-memory cache. Quotes older than
// StaleAfter are refused rather than served silently.
type WSClient struct {
	url        string
	staleAfter time.Duration
	logger     *zap.SugaredLogger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	last      map[string]tick // "BASE-QUOTE" -> latest tick
	history   map[string][]decimal.Decimal
}

type tick struct {
	price decimal.Decimal
	at    time.Time
}

type tickerMsg struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
}

type subscribeMsg struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// historyDepth bounds the per-pair price history kept for trend and
// volatility estimation.
const historyDepth = 120

func NewWSClient(url string, staleAfter time.Duration, logger *zap.SugaredLogger) *WSClient {
	return &WSClient{
		url:        url,
		staleAfter: staleAfter,
		logger:     logger,
		last:       make(map[string]tick),
		history:    make(map[string][]decimal.Decimal),
	}
}

// Connect dials the feed and starts the read loop. Idempotent.
func (c *WSClient) Connect(ctx context.Context, pairs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}

	sub := subscribeMsg{Type: "subscribe", ProductIDs: pairs, Channels: []string{"ticker"}}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	c.conn = conn
	c.connected = true
	go c.readLoop(ctx)
	return nil
}

func (c *WSClient) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		default:
		}

		var msg tickerMsg
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Warnw("feed_read_failed", "err", err)
			c.Close()
			return
		}
		if msg.Type != "ticker" || msg.Price == "" {
			continue
		}
		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			c.logger.Warnw("feed_bad_price", "pair", msg.ProductID, "price", msg.Price)
			continue
		}
		c.record(msg.ProductID, price)
	}
}

func (c *WSClient) record(pair string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[pair] = tick{price: price, at: time.Now()}
	h := append(c.history[pair], price)
	if len(h) > historyDepth {
		h = h[len(h)-historyDepth:]
	}
	c.history[pair] = h
}

func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connected = false
}

// CurrentPrice returns the latest cached price for base/quote. A missing
// or stale quote is an error, not a guess.
func (c *WSClient) CurrentPrice(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	pair := pairKey(base, quote)

	c.mu.RLock()
	t, ok := c.last[pair]
	c.mu.RUnlock()

	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoQuote, pair)
	}
	if c.staleAfter > 0 && time.Since(t.at) > c.staleAfter {
		return decimal.Zero, fmt.Errorf("%w: %s quote is stale", ErrNoQuote, pair)
	}
	return t.price, nil
}

// MarketSnapshot derives trend and volatility from the cached price
// history: trend from the move over the window, volatility from the
// normalized high-low range clamped to [0,1].
func (c *WSClient) MarketSnapshot(ctx context.Context, asset string) (Snapshot, error) {
	c.mu.RLock()
	var h []decimal.Decimal
	for pair, series := range c.history {
		if strings.HasPrefix(pair, asset+"-") {
			h = series
			break
		}
	}
	c.mu.RUnlock()

	if len(h) < 2 {
		return Snapshot{}, fmt.Errorf("%w: insufficient history for %s", ErrNoQuote, asset)
	}

	first, last := h[0], h[len(h)-1]
	lo, hi := h[0], h[0]
	for _, p := range h[1:] {
		if p.LessThan(lo) {
			lo = p
		}
		if p.GreaterThan(hi) {
			hi = p
		}
	}

	trend := Neutral
	// +-0.5% over the window counts as a trend
	band := first.Mul(decimal.NewFromFloat(0.005))
	switch {
	case last.Sub(first).GreaterThan(band):
		trend = Bullish
	case first.Sub(last).GreaterThan(band):
		trend = Bearish
	}

	vol := 0.0
	if !lo.IsZero() {
		v, _ := hi.Sub(lo).Div(lo).Float64()
		vol = v * 10 // 10% range saturates volatility
		if vol > 1 {
			vol = 1
		}
		if vol < 0 {
			vol = 0
		}
	}

	return Snapshot{Trend: trend, Volatility: vol}, nil
}

func pairKey(base, quote string) string { return base + "-" + quote }

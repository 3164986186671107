package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"intraday-bot/internal/models"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	redialWait = 5 * time.Second
)

// BinanceProvider implements Provider against Binance REST endpoints and
// keeps the freshest trade price from the aggTrade websocket stream.
type BinanceProvider struct {
	client *binance.Client
	wsBase string
	log    *zap.SugaredLogger

	lastPrice atomic.Uint64 // math.Float64bits
	lastSeen  atomic.Int64  // unix nanos of the last stream update
}

// NewBinanceProvider builds a provider. Public market data needs no API
// credentials; keys are accepted for venues that rate-limit anonymous
// access harder.
func NewBinanceProvider(apiKey, secretKey, apiURL, wsURL string, log *zap.SugaredLogger) *BinanceProvider {
	client := binance.NewClient(apiKey, secretKey)
	if apiURL != "" {
		client.BaseURL = apiURL
	}
	return &BinanceProvider{
		client: client,
		wsBase: wsURL,
		log:    log,
	}
}

// GetBars fetches klines and converts them to Bars, oldest first.
func (p *BinanceProvider) GetBars(symbol, timeframe string, limit int) ([]models.Bar, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	klines, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval(timeframe).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}

	bars := make([]models.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := klineToBar(k)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// GetQuote fetches the book ticker for the symbol.
func (p *BinanceProvider) GetQuote(symbol string) (models.Quote, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tickers, err := p.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.Quote{}, fmt.Errorf("fetch book ticker: %w", err)
	}
	if len(tickers) == 0 {
		return models.Quote{}, fmt.Errorf("no book ticker for %s", symbol)
	}

	bid, err1 := strconv.ParseFloat(tickers[0].BidPrice, 64)
	ask, err2 := strconv.ParseFloat(tickers[0].AskPrice, 64)
	if err1 != nil || err2 != nil {
		return models.Quote{}, fmt.Errorf("parse book ticker for %s", symbol)
	}

	q := models.Quote{Bid: bid, Ask: ask, Last: (bid + ask) / 2}
	if last, _, ok := p.StreamPrice(); ok {
		q.Last = last
	}
	return q, nil
}

// StreamPrice returns the newest websocket trade price, its arrival
// time, and whether any stream update has been seen at all.
func (p *BinanceProvider) StreamPrice() (float64, time.Time, bool) {
	seen := p.lastSeen.Load()
	if seen == 0 {
		return 0, time.Time{}, false
	}
	return math.Float64frombits(p.lastPrice.Load()), time.Unix(0, seen), true
}

// StreamLoop maintains the aggTrade websocket connection until ctx is
// cancelled, redialing after any failure.
func (p *BinanceProvider) StreamLoop(ctx context.Context, symbol string) {
	for {
		select {
		case <-ctx.Done():
			p.log.Info("price stream stopped")
			return
		default:
		}

		conn, err := p.dial(symbol)
		if err != nil {
			p.log.Warnf("price stream dial failed: %v, retrying in %s", err, redialWait)
			if !sleepCtx(ctx, redialWait) {
				return
			}
			continue
		}

		p.log.Infof("price stream connected for %s", symbol)
		if err := p.readStream(ctx, conn); err != nil {
			p.log.Warnf("price stream error: %v", err)
		}
		conn.Close()

		if !sleepCtx(ctx, redialWait) {
			return
		}
	}
}

func (p *BinanceProvider) dial(symbol string) (*websocket.Conn, error) {
	wsURL := fmt.Sprintf("%s/ws/%s@aggTrade", p.wsBase, strings.ToLower(symbol))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return conn, nil
}

// readStream blocks reading trade events until the connection breaks or
// ctx is cancelled. Pings keep the connection alive; a missed pong
// deadline surfaces as a read error and triggers a redial.
func (p *BinanceProvider) readStream(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var trade struct {
			Price json.Number `json:"p"`
		}
		if err := json.Unmarshal(message, &trade); err != nil {
			p.log.Debugf("skipping unparseable stream message: %v", err)
			continue
		}
		price, err := trade.Price.Float64()
		if err != nil || price <= 0 {
			continue
		}

		p.lastPrice.Store(math.Float64bits(price))
		p.lastSeen.Store(time.Now().UnixNano())
	}
}

func klineToBar(k *binance.Kline) (models.Bar, error) {
	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	closeV, err4 := strconv.ParseFloat(k.Close, 64)
	vol, err5 := strconv.ParseFloat(k.Volume, 64)
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			return models.Bar{}, fmt.Errorf("parse kline: %w", err)
		}
	}
	return models.Bar{
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closeV,
		Volume: vol,
		Time:   time.UnixMilli(k.OpenTime),
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Package alpacaclient implements the broker and market-data ports on the
// official Alpaca SDK. Fills are observed by polling order status, never
// pushed, so the orchestrator's reconciliation loop is the single source of
// executions.
package alpacaclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"finvizTraderBot/internal/domain"
	"finvizTraderBot/internal/ports"
)

const (
	defaultBaseURL = "https://paper-api.alpaca.markets"
	defaultDataURL = "https://data.alpaca.markets"

	requestTimeout = 15 * time.Second
)

// Client implements ports.Broker and ports.MarketData over the Alpaca
// trading and market-data APIs.
type Client struct {
	trading *alpaca.Client
	data    *marketdata.Client
	logger  ports.Logger
}

// Config holds configuration for the Alpaca client adapter.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API, defaults to the paper endpoint
	DataURL   string // market data API
	Logger    ports.Logger
}

// New creates an Alpaca client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Alpaca client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("%w: Alpaca API key and secret are required", ports.ErrConfiguration)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	dataURL := strings.TrimRight(cfg.DataURL, "/")
	if dataURL == "" {
		dataURL = defaultDataURL
	}
	httpClient := &http.Client{Timeout: requestTimeout}
	return &Client{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			BaseURL:    baseURL,
			HTTPClient: httpClient,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			BaseURL:    dataURL,
			HTTPClient: httpClient,
		}),
		logger: cfg.Logger,
	}, nil
}

// Submit places a day order. Extended hours is always set so limit orders
// can execute outside the regular session.
func (c *Client) Submit(ctx context.Context, req ports.OrderRequest) (string, error) {
	op := "Submit"
	side := alpaca.Buy
	if req.Side == domain.Sell {
		side = alpaca.Sell
	}
	kind := alpaca.Market
	qty := decimal.NewFromInt(req.Qty)
	placeReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          side,
		Type:          kind,
		TimeInForce:   alpaca.Day,
		ExtendedHours: true,
	}
	if req.Kind == domain.Limit {
		placeReq.Type = alpaca.Limit
		limit := decimal.NewFromFloat(req.LimitPrice).Round(2)
		placeReq.LimitPrice = &limit
	}

	placed, err := c.trading.PlaceOrder(placeReq)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, "Alpaca order placed", map[string]interface{}{
		"orderID": placed.ID, "symbol": req.Symbol, "side": string(placeReq.Side), "type": string(placeReq.Type), "qty": req.Qty, "tag": req.Tag,
	})
	return placed.ID, nil
}

// Cancel removes a working order. A cancel rejected because the order has
// already filled is treated as a no-op.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	op := "Cancel"
	err := c.trading.CancelOrder(orderID)
	if err == nil {
		return nil
	}
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
		state, stErr := c.GetStatus(ctx, orderID)
		if stErr == nil && state.Status == domain.OrderFilled {
			return nil
		}
		return fmt.Errorf("%s %s: %w: %v", op, orderID, ports.ErrOrderCancelFailed, err)
	}
	return c.handleError(ctx, err, op)
}

// GetStatus returns the broker's view of an order.
func (c *Client) GetStatus(ctx context.Context, orderID string) (*ports.OrderState, error) {
	op := "GetStatus"
	order, err := c.trading.GetOrder(orderID)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrder(order), nil
}

// ListOpenOrders returns the IDs of all working orders.
func (c *Client) ListOpenOrders(ctx context.Context) ([]string, error) {
	op := "ListOpenOrders"
	orders, err := c.trading.GetOrders(alpaca.GetOrdersRequest{Status: "open", Limit: 500})
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// CancelAllOrders removes every working order on the account.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	if err := c.trading.CancelAllOrders(); err != nil {
		return c.handleError(ctx, err, "CancelAllOrders")
	}
	return nil
}

// CloseAllPositions liquidates every position on the account, cancelling
// working orders first.
func (c *Client) CloseAllPositions(ctx context.Context) error {
	op := "CloseAllPositions"
	orders, err := c.trading.CloseAllPositions(alpaca.CloseAllPositionsRequest{CancelOrders: true})
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, "Submitted liquidations for all open positions", map[string]interface{}{"orders": len(orders)})
	return nil
}

// GetQuotes fetches the latest NBBO quote and last trade for each symbol.
// Symbols without data are simply absent from the result; a symbol with a
// quote but no usable trade price falls back to the ask, then the bid.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	op := "GetQuotes"
	quotes := make(map[string]domain.Quote, len(symbols))
	if len(symbols) == 0 {
		return quotes, nil
	}

	latestQuotes, err := c.data.GetLatestQuotes(symbols, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	latestTrades, err := c.data.GetLatestTrades(symbols, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	for _, sym := range symbols {
		q, hasQuote := latestQuotes[sym]
		tr, hasTrade := latestTrades[sym]
		if !hasQuote && !hasTrade {
			continue
		}
		last := 0.0
		if hasTrade {
			last = tr.Price
		}
		if last <= 0 {
			if q.AskPrice > 0 {
				last = q.AskPrice
			} else {
				last = q.BidPrice
			}
		}
		if last <= 0 {
			continue
		}
		quotes[sym] = domain.Quote{
			Symbol:    sym,
			Bid:       q.BidPrice,
			Ask:       q.AskPrice,
			Last:      last,
			Timestamp: q.Timestamp,
		}
	}
	return quotes, nil
}

// translateOrder converts an Alpaca order resource to the port order state.
func translateOrder(o *alpaca.Order) *ports.OrderState {
	state := &ports.OrderState{
		ID:     o.ID,
		Symbol: o.Symbol,
		Side:   domain.Buy,
		Status: translateStatus(o.Status),
	}
	if o.Side == alpaca.Sell {
		state.Side = domain.Sell
	}
	if state.Status != domain.OrderFilled {
		return state
	}
	state.FillQty = o.FilledQty.IntPart()
	if o.FilledAvgPrice != nil {
		state.FillPrice, _ = o.FilledAvgPrice.Float64()
	}
	if o.FilledAt != nil {
		state.FilledAt = *o.FilledAt
	}
	return state
}

func translateStatus(status string) domain.OrderStatus {
	switch strings.ToLower(status) {
	case "filled":
		return domain.OrderFilled
	case "canceled", "expired", "rejected", "done_for_day", "stopped":
		return domain.OrderCancelled
	default:
		// new, accepted, pending_new, partially_filled, pending_cancel, ...
		return domain.OrderSubmitted
	}
}

// handleError translates SDK and transport errors into standardized ports
// errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	status := 0
	var tradingErr *alpaca.APIError
	var dataErr *alpaca.APIError
	switch {
	case errors.As(err, &tradingErr):
		status = tradingErr.StatusCode
	case errors.As(err, &dataErr):
		status = dataErr.StatusCode
	}

	if status != 0 {
		fields["httpStatus"] = status

		var mappedErr error
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			mappedErr = ports.ErrAuthenticationFailed
		case http.StatusNotFound:
			mappedErr = ports.ErrOrderNotFound
		case http.StatusUnprocessableEntity:
			mappedErr = ports.ErrOrderPlacementFailed
		case http.StatusTooManyRequests:
			mappedErr = ports.ErrRateLimited
		default:
			if status >= 500 {
				mappedErr = ports.ErrBrokerUnavailable
			} else {
				mappedErr = ports.ErrTransient
			}
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, operation+" failed with API error", fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s failed: %w", operation, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTransient, err)
	}
	c.logger.Error(ctx, err, operation+" failed", fields)
	return finalErr
}

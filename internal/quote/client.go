package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"brokerage-sim-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const queryPath = "/query"

// ErrUnknownSymbol is returned when the provider has no quote for a symbol.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Quote is the price of a single symbol at the moment of the lookup.
// Quotes are never cached: a fresh one is fetched for every request that
// needs a price.
type Quote struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}

// ClientInterface defines the interface for the quote provider client.
type ClientInterface interface {
	Lookup(ctx context.Context, symbol string) (*Quote, error)
}

// Client is a client for an Alpha Vantage style quote API.
// It implements the ClientInterface.
type Client struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new quote provider client.
func NewClient(cfg *config.Quotes, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		apiKey:  cfg.ApiKey,
		logger:  logger,
		limiter: limiter,
	}
}

type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
	} `json:"Global Quote"`
}

// Lookup fetches the current price for a symbol. The symbol is trimmed and
// uppercased before the request. An empty payload from the provider means
// the symbol does not exist and is reported as ErrUnknownSymbol.
func (c *Client) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	var result globalQuoteResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": "GLOBAL_QUOTE",
			"symbol":   symbol,
			"apikey":   c.apiKey,
		}).
		SetResult(&result).
		Get(queryPath)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("quote request failed with status %d: %s", resp.StatusCode(), resp.String())
	}

	if result.GlobalQuote.Price == "" {
		c.logger.Debug("Provider returned no quote", zap.String("symbol", symbol))
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	price, err := decimal.NewFromString(result.GlobalQuote.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quote price %q: %w", result.GlobalQuote.Price, err)
	}

	return &Quote{
		Symbol: symbol,
		Name:   symbol,
		Price:  price,
	}, nil
}

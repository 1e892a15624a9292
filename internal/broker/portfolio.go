package broker

import (
	"context"

	"brokerage-sim-go/internal/quote"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Position is one valued holding inside a snapshot.
type Position struct {
	Symbol  string          `json:"symbol"`
	Shares  int64           `json:"shares"`
	Price   decimal.Decimal `json:"price"`
	Value   decimal.Decimal `json:"value"`
	QuoteOK bool            `json:"quote_ok"`
}

// Snapshot is a point-in-time portfolio valuation: cash plus the value of
// every active holding at its current price.
type Snapshot struct {
	Cash      decimal.Decimal `json:"cash"`
	Positions []Position      `json:"positions"`
	Total     decimal.Decimal `json:"total"`
	// QuotesIncomplete is set when at least one symbol had no usable
	// quote; such positions stay listed with QuoteOK=false but do not
	// contribute to Total.
	QuotesIncomplete bool `json:"quotes_incomplete"`
}

// Projector derives portfolio valuations from the ledger and live quotes.
// Every call re-fetches all quotes, so the valuation reflects price at view
// time, not price at trade time.
type Projector struct {
	accounts *AccountService
	ledger   *Ledger
	quotes   quote.ClientInterface
	logger   *zap.Logger
}

// NewProjector creates a new Projector.
func NewProjector(accounts *AccountService, ledger *Ledger, quotes quote.ClientInterface, logger *zap.Logger) *Projector {
	return &Projector{
		accounts: accounts,
		ledger:   ledger,
		quotes:   quotes,
		logger:   logger,
	}
}

// Valuation computes the user's current portfolio snapshot.
func (p *Projector) Valuation(ctx context.Context, userID uint) (*Snapshot, error) {
	user, err := p.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	holdings, err := p.ledger.ActiveHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Cash:      user.Cash,
		Positions: make([]Position, 0, len(holdings)),
		Total:     user.Cash,
	}

	for _, h := range holdings {
		pos := Position{Symbol: h.Symbol, Shares: h.Shares}

		q, err := p.quotes.Lookup(ctx, h.Symbol)
		if err != nil {
			// The symbol stays visible but unvalued rather than
			// failing the whole snapshot.
			p.logger.Warn("Quote lookup failed during valuation",
				zap.Uint("user_id", userID),
				zap.String("symbol", h.Symbol),
				zap.Error(err))
			snapshot.QuotesIncomplete = true
			snapshot.Positions = append(snapshot.Positions, pos)
			continue
		}

		pos.Price = q.Price
		pos.Value = q.Price.Mul(decimal.NewFromInt(h.Shares))
		pos.QuoteOK = true
		snapshot.Total = snapshot.Total.Add(pos.Value)
		snapshot.Positions = append(snapshot.Positions, pos)
	}

	return snapshot, nil
}

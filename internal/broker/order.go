package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"brokerage-sim-go/internal/models"
	"brokerage-sim-go/internal/quote"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// State tracks an order through its lifecycle.
type State string

const (
	StateReceived  State = "received"
	StateValidated State = "validated"
	StatePriced    State = "priced"
	StateApplied   State = "applied"
	StateRejected  State = "rejected"
)

// OrderRequest carries the raw form input for a buy or sell. Shares is kept
// as a string so that decimal or garbage input is rejected instead of
// silently truncated.
type OrderRequest struct {
	Side   Side
	Symbol string
	Shares string
}

// Order is a single buy or sell request moving through
// received, validated, priced, applied, or to rejected at any step.
type Order struct {
	ID       string          `json:"id"`
	UserID   uint            `json:"user_id"`
	Side     Side            `json:"side"`
	Symbol   string          `json:"symbol"`
	Shares   int64           `json:"shares"`
	Price    decimal.Decimal `json:"price"`
	State    State           `json:"state"`
	Reason   string          `json:"reason,omitempty"`
	PlacedAt time.Time       `json:"placed_at"`
}

// OrderProcessor validates orders against live quotes and applies accepted
// ones as one atomic unit: the balance update and the ledger append commit
// together or not at all.
type OrderProcessor struct {
	db       *gorm.DB
	accounts *AccountService
	ledger   *Ledger
	quotes   quote.ClientInterface
	logger   *zap.Logger
}

// NewOrderProcessor creates a new OrderProcessor.
func NewOrderProcessor(db *gorm.DB, accounts *AccountService, ledger *Ledger, quotes quote.ClientInterface, logger *zap.Logger) *OrderProcessor {
	return &OrderProcessor{
		db:       db,
		accounts: accounts,
		ledger:   ledger,
		quotes:   quotes,
		logger:   logger,
	}
}

// Place runs one order through the full lifecycle. On rejection the returned
// order carries the reason and the error is the same *Error; no state has
// been written in that case.
func (p *OrderProcessor) Place(ctx context.Context, userID uint, req OrderRequest) (*Order, error) {
	order := &Order{
		ID:       uuid.NewString(),
		UserID:   userID,
		Side:     req.Side,
		State:    StateReceived,
		PlacedAt: time.Now(),
	}

	shares, err := p.validate(req)
	if err != nil {
		return p.reject(order, err)
	}
	order.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	order.Shares = shares
	order.State = StateValidated

	q, err := p.quotes.Lookup(ctx, order.Symbol)
	if err != nil {
		var opErr *Error
		if !errors.As(err, &opErr) {
			// Quote provider failures are indistinguishable from a bad
			// symbol as far as the caller is concerned.
			p.logger.Warn("Quote lookup failed for order",
				zap.String("order_id", order.ID),
				zap.String("symbol", order.Symbol),
				zap.Error(err))
			err = externalErr("invalid symbol")
		}
		return p.reject(order, err)
	}
	order.Symbol = q.Symbol
	order.Price = q.Price
	order.State = StatePriced

	if err := p.apply(ctx, order); err != nil {
		var opErr *Error
		if errors.As(err, &opErr) {
			return p.reject(order, opErr)
		}
		return nil, err
	}
	order.State = StateApplied

	p.logger.Info("Order applied",
		zap.String("order_id", order.ID),
		zap.Uint("user_id", order.UserID),
		zap.String("side", string(order.Side)),
		zap.String("symbol", order.Symbol),
		zap.Int64("shares", order.Shares),
		zap.String("price", order.Price.String()))

	return order, nil
}

// validate checks the raw form input, moving received to validated.
func (p *OrderProcessor) validate(req OrderRequest) (int64, error) {
	if req.Side != SideBuy && req.Side != SideSell {
		return 0, validationErr("invalid order side")
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return 0, validationErr("missing symbol")
	}
	if strings.TrimSpace(req.Shares) == "" {
		return 0, validationErr("missing shares")
	}

	shares, err := strconv.ParseInt(strings.TrimSpace(req.Shares), 10, 64)
	if err != nil || shares <= 0 {
		return 0, validationErr("shares must be a positive integer")
	}
	return shares, nil
}

// apply executes the priced-to-applied step inside one database transaction. The user
// row is locked first, so cash and net shares are re-checked against a value
// no concurrent order can move, and orders for one user serialize while
// different users proceed independently.
func (p *OrderProcessor) apply(ctx context.Context, order *Order) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			// sqlite rejects FOR UPDATE; its single writer gives the
			// same per-user ordering without it.
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var user models.User
		err := q.First(&user, order.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundErr("user not found")
		}
		if err != nil {
			return fmt.Errorf("failed to lock user row: %w", err)
		}

		cost := order.Price.Mul(decimal.NewFromInt(order.Shares))

		var cashDelta decimal.Decimal
		var signedShares int64
		switch order.Side {
		case SideBuy:
			if cost.GreaterThan(user.Cash) {
				return businessErr("can't afford")
			}
			cashDelta = cost.Neg()
			signedShares = order.Shares
		case SideSell:
			held, err := p.ledger.WithTx(tx).NetShares(ctx, order.UserID, order.Symbol)
			if err != nil {
				return err
			}
			if held < order.Shares {
				return businessErr("too many shares")
			}
			cashDelta = cost
			signedShares = -order.Shares
		}

		if err := p.accounts.WithTx(tx).AdjustBalance(ctx, order.UserID, cashDelta); err != nil {
			return err
		}

		return p.ledger.WithTx(tx).Append(ctx, &models.Transaction{
			OrderID:   order.ID,
			UserID:    order.UserID,
			Symbol:    order.Symbol,
			Shares:    signedShares,
			Price:     order.Price,
			Timestamp: order.PlacedAt,
		})
	})
}

// reject finalizes the order in the rejected state. Nothing has been written
// for a rejected order, so resubmitting the same bad input is harmless.
func (p *OrderProcessor) reject(order *Order, err error) (*Order, error) {
	order.State = StateRejected
	order.Reason = err.Error()

	p.logger.Info("Order rejected",
		zap.String("order_id", order.ID),
		zap.Uint("user_id", order.UserID),
		zap.String("side", string(order.Side)),
		zap.String("reason", order.Reason))

	return order, err
}

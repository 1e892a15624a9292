package broker

import (
	"context"
	"fmt"

	"brokerage-sim-go/internal/models"
	"gorm.io/gorm"
)

// Holding is a derived position: the net share count for one symbol,
// recomputed from the ledger on every read and never persisted.
type Holding struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// Ledger is the append-only record of buy and sell events. It is the sole
// source of truth for holdings.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a new Ledger.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx returns a Ledger bound to the given transaction handle, so appends
// and reads participate in the caller's atomic unit.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

// Append writes one ledger row. It is a pure insert and fails only on
// storage errors.
func (l *Ledger) Append(ctx context.Context, txn *models.Transaction) error {
	if err := l.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// NetShares returns the sum of signed share counts for a user and symbol,
// zero when the user never traded it.
func (l *Ledger) NetShares(ctx context.Context, userID uint, symbol string) (int64, error) {
	var net int64
	err := l.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Select("COALESCE(SUM(shares), 0)").
		Scan(&net).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum shares: %w", err)
	}
	return net, nil
}

// ActiveHoldings returns the user's symbols with a positive net share count,
// ordered by symbol.
func (l *Ledger) ActiveHoldings(ctx context.Context, userID uint) ([]Holding, error) {
	var holdings []Holding
	err := l.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("symbol, SUM(shares) AS shares").
		Where("user_id = ?", userID).
		Group("symbol").
		Having("SUM(shares) > 0").
		Order("symbol").
		Scan(&holdings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate holdings: %w", err)
	}
	return holdings, nil
}

// History returns all of the user's transactions ascending by timestamp,
// with ties broken by insertion order.
func (l *Ledger) History(ctx context.Context, userID uint) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp, id").
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return txns, nil
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is one row of the append-only trade ledger: positive Shares
// for a buy, negative for a sell. Rows are never updated or deleted;
// corrections are written as compensating entries.
type Transaction struct {
	gorm.Model
	OrderID   string          `gorm:"index" json:"order_id"`
	UserID    uint            `gorm:"index:idx_tx_user_symbol" json:"user_id"`
	Symbol    string          `gorm:"index:idx_tx_user_symbol" json:"symbol"`
	Shares    int64           `gorm:"not null" json:"shares"`
	Price     decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

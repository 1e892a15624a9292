package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User represents a registered account holder.
// Cash is mutated only by the order processor and seeded at registration;
// PasswordHash only by the change-password operation.
type User struct {
	gorm.Model
	Username     string          `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string          `gorm:"not null" json:"-"`
	Cash         decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"cash"`
}

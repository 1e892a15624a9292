package broker

import (
	"context"
	"testing"

	"brokerage-sim-go/internal/models"
	"brokerage-sim-go/internal/quote"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockQuoteClient is a mock implementation of quote.ClientInterface.
type MockQuoteClient struct {
	mock.Mock
}

func (m *MockQuoteClient) Lookup(_ context.Context, symbol string) (*quote.Quote, error) {
	args := m.Called(symbol)
	if q := args.Get(0); q != nil {
		return q.(*quote.Quote), args.Error(1)
	}
	return nil, args.Error(1)
}

// setupTest creates a fresh in-memory database for each test.
func setupTest(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)

	// A pooled second connection would see its own empty in-memory
	// database, so pin the pool to a single connection.
	sqlDB, err := db.DB()
	assert.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&models.User{}, &models.Transaction{})
	assert.NoError(t, err)

	return db
}

// createTestUser inserts a user directly, bypassing registration.
func createTestUser(t *testing.T, db *gorm.DB, username, cash string) *models.User {
	user := &models.User{
		Username:     username,
		PasswordHash: "irrelevant",
		Cash:         decimal.RequireFromString(cash),
	}
	assert.NoError(t, db.Create(user).Error)
	return user
}

func testQuote(symbol, price string) *quote.Quote {
	return &quote.Quote{
		Symbol: symbol,
		Name:   symbol,
		Price:  decimal.RequireFromString(price),
	}
}

// assertCash reloads the user and compares the stored balance.
func assertCash(t *testing.T, db *gorm.DB, userID uint, want string) {
	var user models.User
	assert.NoError(t, db.First(&user, userID).Error)
	assert.True(t, decimal.RequireFromString(want).Equal(user.Cash),
		"cash = %s, want %s", user.Cash, want)
}

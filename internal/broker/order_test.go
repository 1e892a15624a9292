package broker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"brokerage-sim-go/internal/models"
	"brokerage-sim-go/internal/quote"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupOrderTest(t *testing.T) (*gorm.DB, *OrderProcessor, *MockQuoteClient, *models.User) {
	db := setupTest(t)
	user := createTestUser(t, db, "alice", "10000")

	accounts := NewAccountService(db, zap.NewNop(), user.Cash)
	mockQuotes := new(MockQuoteClient)
	proc := NewOrderProcessor(db, accounts, NewLedger(db), mockQuotes, zap.NewNop())

	return db, proc, mockQuotes, user
}

func countTransactions(t *testing.T, db *gorm.DB, userID uint) int64 {
	var n int64
	assert.NoError(t, db.Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func TestOrderProcessor_BuyThenSell(t *testing.T) {
	// Arrange
	db, proc, mockQuotes, user := setupOrderTest(t)
	ctx := context.Background()

	mockQuotes.On("Lookup", "AAPL").Return(testQuote("AAPL", "150"), nil).Once()

	// Act: buy 10 AAPL at 150
	order, err := proc.Place(ctx, user.ID, OrderRequest{Side: SideBuy, Symbol: "aapl", Shares: "10"})

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, StateApplied, order.State)
	assert.Equal(t, "AAPL", order.Symbol)
	assertCash(t, db, user.ID, "8500")
	assert.Equal(t, int64(1), countTransactions(t, db, user.ID))

	// Act: sell 5 at 160
	mockQuotes.On("Lookup", "AAPL").Return(testQuote("AAPL", "160"), nil).Once()
	order, err = proc.Place(ctx, user.ID, OrderRequest{Side: SideSell, Symbol: "AAPL", Shares: "5"})

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, StateApplied, order.State)
	assertCash(t, db, user.ID, "9300")
	assert.Equal(t, int64(2), countTransactions(t, db, user.ID))

	net, err := NewLedger(db).NetShares(ctx, user.ID, "AAPL")
	assert.NoError(t, err)
	assert.Equal(t, int64(5), net)

	mockQuotes.AssertExpectations(t)
}

func TestOrderProcessor_Sell_TooManyShares(t *testing.T) {
	// Arrange: hold 5 shares, try to sell 6
	db, proc, mockQuotes, user := setupOrderTest(t)
	ctx := context.Background()

	mockQuotes.On("Lookup", "AAPL").Return(testQuote("AAPL", "150"), nil)

	_, err := proc.Place(ctx, user.ID, OrderRequest{Side: SideBuy, Symbol: "AAPL", Shares: "5"})
	assert.NoError(t, err)

	// Act
	order, err := proc.Place(ctx, user.ID, OrderRequest{Side: SideSell, Symbol: "AAPL", Shares: "6"})

	// Assert: rejected with no state change
	var opErr *Error
	assert.ErrorAs(t, err, &opErr)
	assert.Equal(t, "too many shares", opErr.Reason)
	assert.Equal(t, http.StatusBadRequest, opErr.Status())
	assert.Equal(t, StateRejected, order.State)
	assertCash(t, db, user.ID, "9250")
	assert.Equal(t, int64(1), countTransactions(t, db, user.ID))
}

func TestOrderProcessor_Sell_NothingHeld(t *testing.T) {
	// Selling a symbol the user never traded is the same rejection.
	_, proc, mockQuotes, user := setupOrderTest(t)

	mockQuotes.On("Lookup", "MSFT").Return(testQuote("MSFT", "300"), nil).Once()

	_, err := proc.Place(context.Background(), user.ID, OrderRequest{Side: SideSell, Symbol: "MSFT", Shares: "1"})

	var opErr *Error
	assert.ErrorAs(t, err, &opErr)
	assert.Equal(t, "too many shares", opErr.Reason)
}

func TestOrderProcessor_Buy_CantAfford(t *testing.T) {
	// Arrange: 10000 cash, 6 shares at 2000 costs 12000
	db, proc, mockQuotes, user := setupOrderTest(t)

	mockQuotes.On("Lookup", "BRK").Return(testQuote("BRK", "2000"), nil).Once()

	// Act
	order, err := proc.Place(context.Background(), user.ID, OrderRequest{Side: SideBuy, Symbol: "BRK", Shares: "6"})

	// Assert
	var opErr *Error
	assert.ErrorAs(t, err, &opErr)
	assert.Equal(t, "can't afford", opErr.Reason)
	assert.Equal(t, StateRejected, order.State)
	assertCash(t, db, user.ID, "10000")
	assert.Equal(t, int64(0), countTransactions(t, db, user.ID))
}

func TestOrderProcessor_Buy_ExactCashAccepted(t *testing.T) {
	// Cost equal to cash is affordable.
	db, proc, mockQuotes, user := setupOrderTest(t)

	mockQuotes.On("Lookup", "BRK").Return(testQuote("BRK", "2000"), nil).Once()

	order, err := proc.Place(context.Background(), user.ID, OrderRequest{Side: SideBuy, Symbol: "BRK", Shares: "5"})

	assert.NoError(t, err)
	assert.Equal(t, StateApplied, order.State)
	assertCash(t, db, user.ID, "0")
}

func TestOrderProcessor_ValidationRejections(t *testing.T) {
	db, proc, mockQuotes, user := setupOrderTest(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		req    OrderRequest
		reason string
	}{
		{"missing symbol", OrderRequest{Side: SideBuy, Symbol: "", Shares: "10"}, "missing symbol"},
		{"missing shares", OrderRequest{Side: SideBuy, Symbol: "AAPL", Shares: ""}, "missing shares"},
		{"garbage shares", OrderRequest{Side: SideBuy, Symbol: "AAPL", Shares: "ten"}, "shares must be a positive integer"},
		{"fractional shares", OrderRequest{Side: SideBuy, Symbol: "AAPL", Shares: "2.5"}, "shares must be a positive integer"},
		{"zero shares", OrderRequest{Side: SideSell, Symbol: "AAPL", Shares: "0"}, "shares must be a positive integer"},
		{"negative shares", OrderRequest{Side: SideSell, Symbol: "AAPL", Shares: "-3"}, "shares must be a positive integer"},
		{"bad side", OrderRequest{Side: "short", Symbol: "AAPL", Shares: "1"}, "invalid order side"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := proc.Place(ctx, user.ID, tt.req)

			var opErr *Error
			assert.ErrorAs(t, err, &opErr)
			assert.Equal(t, tt.reason, opErr.Reason)
			assert.Equal(t, http.StatusBadRequest, opErr.Status())
			assert.Equal(t, StateRejected, order.State)
		})
	}

	// Repeated failed validation never touched the quote provider, the
	// cash balance, or the ledger.
	assert.Empty(t, mockQuotes.Calls)
	assertCash(t, db, user.ID, "10000")
	assert.Equal(t, int64(0), countTransactions(t, db, user.ID))
}

func TestOrderProcessor_InvalidSymbol(t *testing.T) {
	db, proc, mockQuotes, user := setupOrderTest(t)

	mockQuotes.On("Lookup", "NOPE").Return(nil, quote.ErrUnknownSymbol).Once()

	order, err := proc.Place(context.Background(), user.ID, OrderRequest{Side: SideBuy, Symbol: "nope", Shares: "1"})

	var opErr *Error
	assert.ErrorAs(t, err, &opErr)
	assert.Equal(t, "invalid symbol", opErr.Reason)
	assert.Equal(t, KindExternalService, opErr.Kind)
	assert.Equal(t, http.StatusBadRequest, opErr.Status())
	assert.Equal(t, StateRejected, order.State)
	assertCash(t, db, user.ID, "10000")
}

func TestOrderProcessor_QuoteProviderDown(t *testing.T) {
	// A provider outage is indistinguishable from a bad symbol to the caller.
	_, proc, mockQuotes, user := setupOrderTest(t)

	mockQuotes.On("Lookup", "AAPL").Return(nil, errors.New("connection refused")).Once()

	_, err := proc.Place(context.Background(), user.ID, OrderRequest{Side: SideBuy, Symbol: "AAPL", Shares: "1"})

	var opErr *Error
	assert.ErrorAs(t, err, &opErr)
	assert.Equal(t, "invalid symbol", opErr.Reason)
}

func TestOrderProcessor_UserVanished(t *testing.T) {
	_, proc, mockQuotes, _ := setupOrderTest(t)

	mockQuotes.On("Lookup", "AAPL").Return(testQuote("AAPL", "150"), nil).Once()

	_, err := proc.Place(context.Background(), 9999, OrderRequest{Side: SideBuy, Symbol: "AAPL", Shares: "1"})

	var opErr *Error
	assert.ErrorAs(t, err, &opErr)
	assert.Equal(t, "user not found", opErr.Reason)
	assert.Equal(t, http.StatusNotFound, opErr.Status())
}

func TestOrderProcessor_ConcurrentSellsSerialize(t *testing.T) {
	// Arrange: exactly 5 shares held, then 10 single-share sells racing.
	db, proc, mockQuotes, user := setupOrderTest(t)
	ctx := context.Background()

	mockQuotes.On("Lookup", "AAPL").Return(testQuote("AAPL", "150"), nil)

	_, err := proc.Place(ctx, user.ID, OrderRequest{Side: SideBuy, Symbol: "AAPL", Shares: "5"})
	assert.NoError(t, err)

	// Act
	const attempts = 10
	var wg sync.WaitGroup
	var applied int64
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := proc.Place(ctx, user.ID, OrderRequest{Side: SideSell, Symbol: "AAPL", Shares: "1"})
			if err == nil {
				assert.Equal(t, StateApplied, order.State)
				atomic.AddInt64(&applied, 1)
				return
			}
			var opErr *Error
			assert.ErrorAs(t, err, &opErr)
			assert.Equal(t, "too many shares", opErr.Reason)
		}()
	}
	wg.Wait()

	// Assert: exactly the held shares were sold and the position is flat,
	// never negative.
	assert.Equal(t, int64(5), applied)
	net, err := NewLedger(db).NetShares(ctx, user.ID, "AAPL")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), net)

	// 10000 - 5x150 + 5x150: every accepted sell was paid exactly once.
	assertCash(t, db, user.ID, "10000")
	assert.Equal(t, int64(6), countTransactions(t, db, user.ID))
}

func TestOrderProcessor_ConcurrentBuysRespectCash(t *testing.T) {
	// Arrange: 10000 cash buys at most 5 shares at 2000, with 10 racing.
	db, proc, mockQuotes, user := setupOrderTest(t)
	ctx := context.Background()

	mockQuotes.On("Lookup", "BRK").Return(testQuote("BRK", "2000"), nil)

	// Act
	const attempts = 10
	var wg sync.WaitGroup
	var applied int64
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := proc.Place(ctx, user.ID, OrderRequest{Side: SideBuy, Symbol: "BRK", Shares: "1"})
			if err == nil {
				atomic.AddInt64(&applied, 1)
				return
			}
			var opErr *Error
			assert.ErrorAs(t, err, &opErr)
			assert.Equal(t, "can't afford", opErr.Reason)
		}()
	}
	wg.Wait()

	// Assert: exactly the affordable subset was applied and cash hit zero,
	// never negative.
	assert.Equal(t, int64(5), applied)
	assertCash(t, db, user.ID, "0")

	net, err := NewLedger(db).NetShares(ctx, user.ID, "BRK")
	assert.NoError(t, err)
	assert.Equal(t, int64(5), net)
}

func TestOrderProcessor_CashInvariant(t *testing.T) {
	// After any accepted sequence, cash equals the initial balance minus
	// the sum of signed (shares x price) over the ledger.
	db, proc, mockQuotes, user := setupOrderTest(t)
	ctx := context.Background()

	mockQuotes.On("Lookup", "AAPL").Return(testQuote("AAPL", "150"), nil).Once()
	mockQuotes.On("Lookup", "MSFT").Return(testQuote("MSFT", "300"), nil).Once()
	mockQuotes.On("Lookup", "AAPL").Return(testQuote("AAPL", "140"), nil).Once()

	steps := []OrderRequest{
		{Side: SideBuy, Symbol: "AAPL", Shares: "10"},  // -1500
		{Side: SideBuy, Symbol: "MSFT", Shares: "4"},   // -1200
		{Side: SideSell, Symbol: "AAPL", Shares: "10"}, // +1400
	}
	for _, req := range steps {
		_, err := proc.Place(ctx, user.ID, req)
		assert.NoError(t, err)
	}

	assertCash(t, db, user.ID, "8700")

	// Net shares never went negative: AAPL is flat, MSFT is long.
	ledger := NewLedger(db)
	net, err := ledger.NetShares(ctx, user.ID, "AAPL")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), net)

	holdings, err := ledger.ActiveHoldings(ctx, user.ID)
	assert.NoError(t, err)
	assert.Equal(t, []Holding{{Symbol: "MSFT", Shares: 4}}, holdings)
}

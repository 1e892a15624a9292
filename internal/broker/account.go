package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"brokerage-sim-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AccountService manages user identity and cash balances. Cash is seeded at
// registration and afterwards mutated only through the order processor.
type AccountService struct {
	db          *gorm.DB
	logger      *zap.Logger
	initialCash decimal.Decimal
}

// NewAccountService creates a new AccountService.
func NewAccountService(db *gorm.DB, logger *zap.Logger, initialCash decimal.Decimal) *AccountService {
	return &AccountService{
		db:          db,
		logger:      logger,
		initialCash: initialCash,
	}
}

// WithTx returns an AccountService bound to the given transaction handle.
func (s *AccountService) WithTx(tx *gorm.DB) *AccountService {
	return &AccountService{db: tx, logger: s.logger, initialCash: s.initialCash}
}

// Register creates a new user with the configured initial cash balance.
func (s *AccountService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, validationErr("missing username")
	}
	if password == "" {
		return nil, validationErr("missing password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Username:     username,
		PasswordHash: string(hash),
		Cash:         s.initialCash,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// The unique index on username is the authority; a pre-check would
		// still race with a concurrent registration.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, authErr("username already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username))

	return &user, nil
}

// Authenticate verifies a username and password pair. The reason never says
// which of the two was wrong.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, authErr("must provide username")
	}
	if password == "" {
		return nil, authErr("must provide password")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, authErr("invalid username and/or password")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, authErr("invalid username and/or password")
	}

	return &user, nil
}

// Get fetches a user by id. A missing row is a consistency bug for any
// authenticated request, so it is reported as not-found rather than masked.
func (s *AccountService) Get(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundErr("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// Balance returns the user's current cash balance.
func (s *AccountService) Balance(ctx context.Context, userID uint) (decimal.Decimal, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Cash, nil
}

// AdjustBalance applies a signed cash delta as a single relative UPDATE, so
// it is atomic with respect to concurrent adjustments for the same user.
func (s *AccountService) AdjustBalance(ctx context.Context, userID uint, delta decimal.Decimal) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("cash", gorm.Expr("cash + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("failed to adjust balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundErr("user not found")
	}
	return nil
}

// ChangePassword stores a new password hash after verifying the old password.
func (s *AccountService) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return authErr("must provide old password")
	}
	if newPassword == "" {
		return authErr("must provide new password")
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return authErr("invalid old password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", string(hash)).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("Password changed", zap.Uint("user_id", userID))
	return nil
}

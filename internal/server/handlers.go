package server

import (
	"errors"
	"net/http"
	"time"

	"brokerage-sim-go/internal/broker"
	"brokerage-sim-go/internal/quote"
	"brokerage-sim-go/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps a broker error to its HTTP-like severity; anything else
// is an internal error and its detail stays out of the response.
func (s *Server) respondError(c *gin.Context, err error) {
	var opErr *broker.Error
	if errors.As(err, &opErr) {
		c.JSON(opErr.Status(), gin.H{"error": opErr.Reason})
		return
	}

	s.logger.Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

type registerRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

func (s *Server) registerHandler(c *gin.Context) {
	var input registerRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if input.Password != input.Confirmation {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passwords don't match"})
		return
	}

	user, err := s.accounts.Register(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	// Log the new user straight in, as the original flow does.
	accessToken, err := s.issueAccessToken(user.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	refreshToken, err := s.issueRefreshToken(c.Request.Context(), user.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":       user.ID,
		"username":      user.Username,
		"cash":          user.Cash,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) loginHandler(c *gin.Context) {
	var input loginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.accounts.Authenticate(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	accessToken, err := s.issueAccessToken(user.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	refreshToken, err := s.issueRefreshToken(c.Request.Context(), user.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) refreshHandler(c *gin.Context) {
	var input refreshRequest
	if err := c.ShouldBindJSON(&input); err != nil || input.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing refresh token"})
		return
	}

	userID, err := s.sessions.RefreshTokenUser(c.Request.Context(), input.RefreshToken)
	if errors.Is(err, session.ErrTokenNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	accessToken, err := s.issueAccessToken(userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": accessToken})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) logoutHandler(c *gin.Context) {
	token := c.GetString(ctxTokenKey)

	ttl := time.Duration(s.cfg.Auth.AccessTTLHours) * time.Hour
	if exp, ok := c.Get(ctxTokenExpKey); ok {
		if expTime, ok := exp.(time.Time); ok {
			ttl = time.Until(expTime)
		}
	}

	if err := s.sessions.RevokeAccessToken(c.Request.Context(), token, ttl); err != nil {
		s.respondError(c, err)
		return
	}

	// Best effort: a logout may also hand back its refresh token.
	var input logoutRequest
	if err := c.ShouldBindJSON(&input); err == nil && input.RefreshToken != "" {
		if err := s.sessions.DeleteRefreshToken(c.Request.Context(), input.RefreshToken); err != nil {
			s.logger.Warn("Failed to delete refresh token on logout", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) quoteHandler(c *gin.Context) {
	q, err := s.quotes.Lookup(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		if !errors.Is(err, quote.ErrUnknownSymbol) {
			s.logger.Warn("Quote lookup failed", zap.Error(err))
		}
		// Provider failures are surfaced as an invalid symbol.
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid symbol"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": q.Symbol,
		"name":   q.Name,
		"price":  q.Price,
	})
}

type orderRequest struct {
	Symbol string `json:"symbol"`
	Shares string `json:"shares"`
}

func (s *Server) buyHandler(c *gin.Context) {
	s.placeOrder(c, broker.SideBuy)
}

func (s *Server) sellHandler(c *gin.Context) {
	s.placeOrder(c, broker.SideSell)
}

func (s *Server) placeOrder(c *gin.Context, side broker.Side) {
	userID := c.MustGet(ctxUserIDKey).(uint)

	var input orderRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.orders.Place(c.Request.Context(), userID, broker.OrderRequest{
		Side:   side,
		Symbol: input.Symbol,
		Shares: input.Shares,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (s *Server) portfolioHandler(c *gin.Context) {
	userID := c.MustGet(ctxUserIDKey).(uint)

	snapshot, err := s.projector.Valuation(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) historyHandler(c *gin.Context) {
	userID := c.MustGet(ctxUserIDKey).(uint)

	txns, err := s.ledger.History(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, txns)
}

type changePasswordRequest struct {
	OldPassword  string `json:"old_password"`
	NewPassword  string `json:"new_password"`
	Confirmation string `json:"confirmation"`
}

func (s *Server) changePasswordHandler(c *gin.Context) {
	userID := c.MustGet(ctxUserIDKey).(uint)

	var input changePasswordRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if input.NewPassword != input.Confirmation {
		c.JSON(http.StatusForbidden, gin.H{"error": "confirmation does not match the new password"})
		return
	}

	if err := s.accounts.ChangePassword(c.Request.Context(), userID, input.OldPassword, input.NewPassword); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password successfully changed"})
}

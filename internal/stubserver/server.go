// Package stubserver is a local stand-in for the real subscription
// service: same HTTP contract, sqlite storage, manual payment
// verification left to the operator. It exists for development and for
// the client's integration tests; it is not the production backend.
package stubserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/kmorozov/subctl/pkg/tokens"
)

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

type Server struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
	UploadDir     string
	Log           *slog.Logger

	now func() time.Time
}

func New(db *gorm.DB, jwtSecret, refreshSecret []byte, uploadDir string, log *slog.Logger) (*Server, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Server{
		DB:            db,
		JWTSecret:     jwtSecret,
		RefreshSecret: refreshSecret,
		UploadDir:     uploadDir,
		Log:           log,
		now:           time.Now,
	}, nil
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.POST("/api/token/", s.IssueToken)
	e.POST("/api/token/refresh/", s.RefreshAccess)
	e.GET("/api/plans/", s.ListPlans)

	private := e.Group("", s.RequireAuth)
	private.GET("/api/user/", s.CurrentUser)
	private.GET("/api/users/:id/subscriptions/", s.UserSubscriptions)
	private.POST("/api/purchase/", s.Purchase)
	private.POST("/api/payments/", s.CreatePayment)
	private.POST("/api/renew/", s.Renew)
}

// CreateUser registers a user with a bcrypt password hash. Used by the
// stubd seed step and by tests.
func (s *Server) CreateUser(username, password, email string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := User{Username: username, PasswordHash: string(hash), Email: email}
	if err := s.DB.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Server) IssueToken(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var user User
	err := s.DB.First(&user, "username = ?", req.Username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.Log.Warn("login rejected", "username", req.Username)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	now := s.now()
	access, err := tokens.SignAccess(user.ID, user.Username, now.Add(accessTTL), s.JWTSecret)
	if err != nil {
		return err
	}
	refresh, err := tokens.SignRefresh(user.ID, now.Add(refreshTTL), s.RefreshSecret)
	if err != nil {
		return err
	}

	claims, err := tokens.RefreshClaimsFromToken(refresh, s.RefreshSecret)
	if err != nil {
		return err
	}
	row := RefreshToken{JTI: claims.ID, UserID: user.ID, ExpiresAt: claims.ExpiresAt.Unix()}
	if err := s.DB.Create(&row).Error; err != nil {
		return err
	}

	s.Log.Info("tokens issued", "user_id", user.ID)
	return c.JSON(http.StatusOK, echo.Map{"access": access, "refresh": refresh})
}

func (s *Server) RefreshAccess(c echo.Context) error {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token required")
	}

	claims, err := tokens.RefreshClaimsFromToken(req.Refresh, s.RefreshSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	var stored RefreshToken
	err = s.DB.First(&stored, "jti = ?", claims.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token not found")
	}
	if err != nil {
		return err
	}
	if stored.Revoked || s.now().Unix() > stored.ExpiresAt {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token expired or revoked")
	}

	var user User
	if err := s.DB.First(&user, stored.UserID).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}

	access, err := tokens.SignAccess(user.ID, user.Username, s.now().Add(accessTTL), s.JWTSecret)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"access": access})
}

// RequireAuth validates the bearer access token and stashes the caller's
// identity in the request context.
func (s *Server) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == "" || raw == header {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := tokens.AccessClaimsFromToken(raw, s.JWTSecret)
		if err != nil || claims == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		return next(c)
	}
}

func userID(c echo.Context) uint {
	id, _ := c.Get("user_id").(uint)
	return id
}

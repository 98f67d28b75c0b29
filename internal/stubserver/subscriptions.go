package stubserver

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/kmorozov/subctl/internal/models"
)

func (s *Server) CurrentUser(c echo.Context) error {
	var user User
	if err := s.DB.First(&user, userID(c)).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	return c.JSON(http.StatusOK, models.User{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (s *Server) ListPlans(c echo.Context) error {
	var rows []Plan
	if err := s.DB.Where("active = ?", true).Order("id").Find(&rows).Error; err != nil {
		return err
	}
	out := make([]models.Plan, 0, len(rows))
	for _, p := range rows {
		out = append(out, toPlanDTO(p))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) UserSubscriptions(c echo.Context) error {
	requested, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if uint(requested) != userID(c) {
		return echo.NewHTTPError(http.StatusForbidden, "not your subscriptions")
	}

	var rows []Subscription
	if err := s.DB.Preload("Plan").Where("user_id = ?", requested).Order("start_date desc").Find(&rows).Error; err != nil {
		return err
	}
	out := make([]models.Subscription, 0, len(rows))
	for _, sub := range rows {
		out = append(out, s.toSubscriptionDTO(sub))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) Purchase(c echo.Context) error {
	var req struct {
		PlanID uint `json:"plan_id"`
	}
	if err := c.Bind(&req); err != nil || req.PlanID == 0 {
		return domainError(c, http.StatusBadRequest, "Please provide a 'plan_id' to purchase a subscription.")
	}

	uid := userID(c)
	if has, err := s.hasActiveSubscription(uid); err != nil {
		return err
	} else if has {
		return domainError(c, http.StatusBadRequest, "You already have an active subscription.")
	}
	if has, err := s.hasPendingPayment(uid); err != nil {
		return err
	} else if has {
		return domainError(c, http.StatusBadRequest, "You have a pending payment awaiting verification.")
	}

	var plan Plan
	err := s.DB.First(&plan, req.PlanID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainError(c, http.StatusNotFound, "Plan not found")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Plan selected. Please upload payment proof.",
		"plan_id": plan.ID,
	})
}

func (s *Server) CreatePayment(c echo.Context) error {
	file, err := c.FormFile("payment_proof")
	if err != nil {
		return domainError(c, http.StatusBadRequest, "Payment proof file is required")
	}
	planRaw := c.FormValue("plan")
	if planRaw == "" {
		return domainError(c, http.StatusBadRequest, "Plan ID is required")
	}
	planID, err := strconv.ParseUint(planRaw, 10, 64)
	if err != nil {
		return domainError(c, http.StatusBadRequest, "Plan ID is required")
	}

	uid := userID(c)
	if has, err := s.hasPendingPayment(uid); err != nil {
		return err
	} else if has {
		return domainError(c, http.StatusBadRequest, "You already have a pending payment awaiting verification")
	}
	if has, err := s.hasActiveSubscription(uid); err != nil {
		return err
	} else if has {
		return domainError(c, http.StatusBadRequest, "You already have an active subscription")
	}

	var plan Plan
	err = s.DB.First(&plan, planID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainError(c, http.StatusNotFound, "Plan not found")
	}
	if err != nil {
		return err
	}

	proofPath, err := s.storeProof(file)
	if err != nil {
		s.Log.Error("store payment proof", "error", err)
		return err
	}

	payment := Payment{UserID: uid, PlanID: plan.ID, ProofPath: proofPath, CreatedAt: s.now()}
	if err := s.DB.Create(&payment).Error; err != nil {
		return err
	}

	// The subscription shows up immediately as PENDING so the client can
	// track it; verification flips it to ACTIVE out of band.
	start := s.now()
	sub := Subscription{
		UserID:    uid,
		PlanID:    plan.ID,
		StartDate: start,
		EndDate:   start.AddDate(0, plan.DurationMonths, 0),
		Status:    string(models.StatusPending),
	}
	if err := s.DB.Create(&sub).Error; err != nil {
		return err
	}

	s.Log.Info("payment recorded", "user_id", uid, "plan_id", plan.ID, "payment_id", payment.ID)
	return c.JSON(http.StatusCreated, models.Payment{
		ID:           payment.ID,
		UserID:       uid,
		PlanID:       plan.ID,
		ProofPath:    proofPath,
		IsVerified:   false,
		CreatedAtRaw: payment.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) Renew(c echo.Context) error {
	uid := userID(c)

	var latest Subscription
	err := s.DB.Where("user_id = ?", uid).Order("end_date desc").First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainError(c, http.StatusBadRequest, "No expired subscription found for this user.")
	}
	if err != nil {
		return err
	}

	var plan Plan
	if err := s.DB.First(&plan, latest.PlanID).Error; err != nil {
		return err
	}

	start := s.now()
	sub := Subscription{
		UserID:    uid,
		PlanID:    plan.ID,
		StartDate: start,
		EndDate:   start.AddDate(0, plan.DurationMonths, 0),
		Status:    string(models.StatusActive),
	}
	if err := s.DB.Create(&sub).Error; err != nil {
		return err
	}

	s.Log.Info("subscription renewed", "user_id", uid, "plan_id", plan.ID)
	return c.JSON(http.StatusCreated, echo.Map{"message": "Subscription renewed successfully!"})
}

func (s *Server) hasActiveSubscription(uid uint) (bool, error) {
	var count int64
	err := s.DB.Model(&Subscription{}).
		Where("user_id = ? AND end_date >= ? AND status = ?", uid, dayStart(s.now()), string(models.StatusActive)).
		Count(&count).Error
	return count > 0, err
}

func (s *Server) hasPendingPayment(uid uint) (bool, error) {
	var count int64
	err := s.DB.Model(&Payment{}).
		Where("user_id = ? AND is_verified = ?", uid, false).
		Count(&count).Error
	return count > 0, err
}

func (s *Server) storeProof(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + filepath.Ext(file.Filename)
	path := filepath.Join(s.UploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return path, nil
}

func toPlanDTO(p Plan) models.Plan {
	return models.Plan{
		ID:             p.ID,
		Name:           p.Name,
		Price:          p.Price,
		DurationMonths: p.DurationMonths,
		Active:         p.Active,
	}
}

func (s *Server) toSubscriptionDTO(sub Subscription) models.Subscription {
	dto := models.Subscription{
		ID:        sub.ID,
		UserID:    sub.UserID,
		Plan:      toPlanDTO(sub.Plan),
		StartDate: models.NewDate(sub.StartDate),
		EndDate:   models.NewDate(sub.EndDate),
		Status:    models.NormalizeStatus(sub.Status),
	}
	dto.IsActive = dto.Active(s.now())
	return dto
}

// domainError mirrors the backend convention of {"error": ...} bodies for
// domain failures, as opposed to echo's {"message": ...} for auth ones.
func domainError(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg})
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

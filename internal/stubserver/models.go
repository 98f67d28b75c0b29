package stubserver

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"unique;not null"`
	PasswordHash string `gorm:"not null"`
	Email        string
}

type Plan struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Name           string `gorm:"not null"`
	Price          string `gorm:"not null"`
	DurationMonths int    `gorm:"not null"`
	Active         bool   `gorm:"default:true"`
}

type Subscription struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	UserID    uint `gorm:"index;not null"`
	PlanID    uint `gorm:"not null"`
	Plan      Plan
	StartDate time.Time
	EndDate   time.Time
	Status    string `gorm:"not null;default:PENDING"`
}

type Payment struct {
	ID         uint `gorm:"primaryKey;autoIncrement"`
	UserID     uint `gorm:"index;not null"`
	PlanID     uint `gorm:"not null"`
	ProofPath  string
	IsVerified bool `gorm:"default:false"`
	CreatedAt  time.Time
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"`
	JTI       string `gorm:"uniqueIndex;not null"`
	UserID    uint   `gorm:"index;not null"`
	ExpiresAt int64  `gorm:"not null"`
	Revoked   bool   `gorm:"default:false"`
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Plan{}, &Subscription{}, &Payment{}, &RefreshToken{})
}

// SeedPlans installs a default catalog when the table is empty.
func SeedPlans(db *gorm.DB) error {
	var count int64
	if err := db.Model(&Plan{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	plans := []Plan{
		{Name: "Basic", Price: "9.99", DurationMonths: 1, Active: true},
		{Name: "Standard", Price: "24.99", DurationMonths: 3, Active: true},
		{Name: "Gold", Price: "49.99", DurationMonths: 6, Active: true},
	}
	return db.Create(&plans).Error
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/adiswara/karcis/internal/helpers"
	"github.com/adiswara/karcis/internal/models"
	"github.com/xendit/xendit-go/v6"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
}

func LoadConfig() (*Config, error) {
	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
	}, nil
}

type XenditConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	FailureURL    string
}

func LoadXenditConfig() (*XenditConfig, error) {
	return &XenditConfig{
		SecretKey:     os.Getenv("XENDIT_SECRET_KEY"),
		WebhookSecret: os.Getenv("XENDIT_WEBHOOK_SECRET"),
		SuccessURL:    os.Getenv("PAYMENT_SUCCESS_URL"),
		FailureURL:    os.Getenv("PAYMENT_FAILURE_URL"),
	}, nil
}

func InitXenditClient(config *XenditConfig) (*xendit.APIClient, error) {
	client := xendit.NewClient(config.SecretKey)

	return client, nil
}

// PolicyConfig collects the checkout and retrieval policy knobs. Amounts
// are minor currency units; everything has a sane default for local runs.
type PolicyConfig struct {
	ServiceFee       int
	Currency         string
	AbandonTTL       time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	CartDir          string
	CredentialDir    string
}

func LoadPolicyConfig() *PolicyConfig {
	currency := os.Getenv("CURRENCY")
	if currency == "" {
		currency = "IDR"
	}
	cartDir := os.Getenv("CART_DIR")
	if cartDir == "" {
		cartDir = "./data/carts"
	}
	credentialDir := os.Getenv("CREDENTIAL_DIR")
	if credentialDir == "" {
		credentialDir = "./data/credentials"
	}
	return &PolicyConfig{
		ServiceFee:       helpers.IntFromEnv(os.Getenv("SERVICE_FEE"), 100),
		Currency:         currency,
		AbandonTTL:       time.Duration(helpers.IntFromEnv(os.Getenv("ABANDON_TTL_MINUTES"), 30)) * time.Minute,
		RetryMaxAttempts: helpers.IntFromEnv(os.Getenv("CREDENTIAL_RETRY_ATTEMPTS"), 4),
		RetryBaseDelay:   time.Duration(helpers.IntFromEnv(os.Getenv("CREDENTIAL_RETRY_BASE_MS"), 500)) * time.Millisecond,
		CartDir:          cartDir,
		CredentialDir:    credentialDir,
	}
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := enableUUIDExtension(db); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.Event{},
		&models.TicketTier{},
		&models.Coupon{},
		&models.UserCoupon{},
		&models.PurchaseIntent{},
		&models.IssuedTicket{},
		&models.LoyaltyEntry{},
	)
	if err != nil {
		return nil, err
	}

	seedRoles(db)

	return db, nil
}

func seedRoles(db *gorm.DB) {
	roles := []models.Role{
		{Name: "organizer"},
		{Name: "attendee"},
		{Name: "admin"},
	}

	for _, role := range roles {
		var existingRole models.Role
		result := db.Where("name = ?", role.Name).First(&existingRole)
		if result.Error != nil {
			db.Create(&role)
		}
	}
}

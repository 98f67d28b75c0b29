package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Client holds subctl's settings, taken from the environment with an
// optional .env overlay.
type Client struct {
	APIBaseURL  string
	StateDB     string
	HTTPTimeout time.Duration
	LogLevel    string
}

// Stub holds the local development backend's settings.
type Stub struct {
	Addr          string
	DBPath        string
	UploadDir     string
	JWTSecret     []byte
	RefreshSecret []byte
	LogLevel      string
}

func LoadClient() Client {
	loadDotenv()
	return Client{
		APIBaseURL:  EnvDefault("SUBCTL_API_URL", "http://127.0.0.1:8000"),
		StateDB:     EnvDefault("SUBCTL_STATE_DB", defaultStateDB()),
		HTTPTimeout: time.Duration(EnvIntDefault("SUBCTL_HTTP_TIMEOUT", 10)) * time.Second,
		LogLevel:    EnvDefault("SUBCTL_LOG_LEVEL", "warn"),
	}
}

func LoadStub() Stub {
	loadDotenv()
	return Stub{
		Addr:          EnvDefault("STUBD_ADDR", ":8000"),
		DBPath:        EnvDefault("STUBD_DB", "stubd.db"),
		UploadDir:     EnvDefault("STUBD_UPLOAD_DIR", "payment_proofs"),
		JWTSecret:     []byte(EnvDefault("JWT_SECRET", "stubd-access-secret")),
		RefreshSecret: []byte(EnvDefault("REFRESH_SECRET", "stubd-refresh-secret")),
		LogLevel:      EnvDefault("STUBD_LOG_LEVEL", "info"),
	}
}

func loadDotenv() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("notice: could not read .env: %v", err)
	}
}

func defaultStateDB() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "subctl.db"
	}
	return filepath.Join(home, ".subctl", "state.db")
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

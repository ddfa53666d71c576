package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
)

type AuthStyle string

const (
	AuthBearer AuthStyle = "bearer"
	AuthCookie AuthStyle = "cookie"
)

// Server holds the settings of cmd/server and the reminder job.
type Server struct {
	Port                    string
	DatabaseURL             string
	JWTSecret               string
	SessionKey              string
	MediaDir                string
	FirebaseCredentialsPath string
	TokenTTL                time.Duration
	CookieSecure            bool
}

// Client holds the settings of the SDK and socialctl.
type Client struct {
	APIBaseURL         string
	MediaBaseURL       string
	AuthStyle          AuthStyle
	HTTPTimeout        time.Duration
	WsHandshakeTimeout time.Duration
	SessionPath        string
}

// LoadEnv reads the given .env files (default ".env") into the environment.
// A missing file is not an error.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			glog.Errorf("[config] could not load %s: %v", f, err)
		}
	}
}

func LoadServer() (*Server, error) {
	cfg := &Server{
		Port:                    getEnv("PORT", "5000"),
		DatabaseURL:             getEnv("DATABASE_URL", "postgres://localhost:5432/social?sslmode=disable"),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		SessionKey:              getEnv("SESSION_KEY", ""),
		MediaDir:                getEnv("MEDIA_DIR", "./static"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		TokenTTL:                getDuration("TOKEN_TTL", 24*time.Hour),
		CookieSecure:            getEnv("COOKIE_SECURE", "false") == "true",
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET not set")
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = cfg.JWTSecret
	}
	return cfg, nil
}

func LoadClient() (*Client, error) {
	cfg := &Client{
		APIBaseURL:         strings.TrimRight(getEnv("SOCIAL_API_BASE_URL", "http://localhost:5000"), "/"),
		MediaBaseURL:       strings.TrimRight(getEnv("SOCIAL_MEDIA_BASE_URL", ""), "/"),
		AuthStyle:          AuthStyle(strings.ToLower(getEnv("SOCIAL_AUTH_STYLE", string(AuthBearer)))),
		HTTPTimeout:        getDuration("SOCIAL_HTTP_TIMEOUT", 10*time.Second),
		WsHandshakeTimeout: getDuration("SOCIAL_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		SessionPath:        getEnv("SOCIAL_SESSION_PATH", ""),
	}
	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = cfg.APIBaseURL
	}
	switch cfg.AuthStyle {
	case AuthBearer, AuthCookie:
	default:
		return nil, fmt.Errorf("SOCIAL_AUTH_STYLE must be %q or %q, got %q", AuthBearer, AuthCookie, cfg.AuthStyle)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getDuration accepts Go durations ("90s") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	glog.Warningf("[config] invalid duration %s=%q, using %s", key, raw, fallback)
	return fallback
}

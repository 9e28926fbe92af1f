package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Env struct {
	AppAddr string
	GinMode string

	// DBDSN selects MySQL persistence; empty keeps everything in memory.
	// DB_HOST, DB_USER, DB_PASSWORD and DB_NAME are used when DB_DSN is unset.
	DBDSN     string
	JWTSecret string

	HoldDuration       time.Duration
	SweepInterval      time.Duration
	CancellationWindow time.Duration
	LateRefundPercent  int
	ReserveMaxAttempts int

	MatchingConfigPath string
	CORSAllowedOrigins []string

	AMQPURL      string
	AMQPExchange string
}

func LoadEnv() Env {
	appAddr := strings.TrimSpace(os.Getenv("APP_ADDR"))
	if appAddr == "" {
		appAddr = ":8080"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if host := strings.TrimSpace(os.Getenv("DB_HOST")); dsn == "" && host != "" {
		dsn = BuildDSN(host, os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME"))
	}

	exchange := strings.TrimSpace(os.Getenv("AMQP_EXCHANGE"))
	if exchange == "" {
		exchange = "booking_events"
	}

	return Env{
		AppAddr:            appAddr,
		GinMode:            ginMode,
		DBDSN:              dsn,
		JWTSecret:          secret,
		HoldDuration:       durationEnv("HOLD_DURATION", 15*time.Minute),
		SweepInterval:      durationEnv("SWEEP_INTERVAL", time.Minute),
		CancellationWindow: durationEnv("CANCELLATION_WINDOW", 24*time.Hour),
		LateRefundPercent:  intEnv("LATE_REFUND_PERCENT", 0),
		ReserveMaxAttempts: intEnv("RESERVE_MAX_ATTEMPTS", 5),
		MatchingConfigPath: strings.TrimSpace(os.Getenv("MATCHING_CONFIG")),
		CORSAllowedOrigins: listEnv("CORS_ALLOWED_ORIGINS"),
		AMQPURL:            strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange:       exchange,
	}
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("[CONFIG] action=load_env msg=invalid %s=%q, using %s", key, raw, def)
		return def
	}
	return d
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		log.Printf("[CONFIG] action=load_env msg=invalid %s=%q, using %d", key, raw, def)
		return def
	}
	return n
}

func listEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports settings the server must not start without.
func (e Env) Validate() error {
	if e.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

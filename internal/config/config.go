package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"grosirpos/backend/internal/domain"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	StoreDriver           string
	DatabaseURL           string
	RunMigrations         bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	CartTTLMinutes        int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	SeedAdminPassword     string
	DefaultTaxRate        decimal.Decimal
	EnforceWholesaleMin   bool
	ReportLocation        *time.Location
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if driver == "" {
		driver = DriverMemory
		if databaseURL != "" {
			driver = DriverPostgres
		}
	}

	taxRate, err := decimal.NewFromString(getEnv("DEFAULT_TAX_RATE", "10"))
	if err != nil || !domain.ValidTaxRate(taxRate) {
		log.Printf("[config] WARN: invalid DEFAULT_TAX_RATE, using 10")
		taxRate = decimal.NewFromInt(10)
	}

	location := time.Local
	if name := strings.TrimSpace(os.Getenv("REPORT_TIMEZONE")); name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			log.Printf("[config] WARN: unknown REPORT_TIMEZONE %q, using local time", name)
		} else {
			location = loc
		}
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		StoreDriver:           driver,
		DatabaseURL:           databaseURL,
		RunMigrations:         getBool("RUN_MIGRATIONS", true),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ReportCacheTTLSeconds: getPositiveInt("REPORT_CACHE_TTL_SECONDS", 30),
		CartTTLMinutes:        getPositiveInt("CART_TTL_MINUTES", 720),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		SeedAdminPassword:     os.Getenv("SEED_ADMIN_PASSWORD"),
		DefaultTaxRate:        taxRate,
		EnforceWholesaleMin:   getBool("ENFORCE_WHOLESALE_MIN", false),
		ReportLocation:        location,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLMinutes) * time.Minute
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return b
}

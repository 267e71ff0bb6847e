package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"grosirpos/backend/internal/cache"
	"grosirpos/backend/internal/config"
	"grosirpos/backend/internal/httpapi"
	"grosirpos/backend/internal/service"
	"grosirpos/backend/internal/store"
	"grosirpos/backend/internal/store/gormstore"
	"grosirpos/backend/internal/store/memory"
	pgstore "grosirpos/backend/internal/store/postgres"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "apply database migrations and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARN: .env not loaded: %v", err)
	}
	cfg := config.Load()

	if *migrateOnly {
		if err := runMigrations(cfg); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		log.Println("migrations applied")
		return
	}

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("repository unavailable: %v", err)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	var carts cache.CartStore = cache.NewMemoryCartStore(cfg.CartTTL())
	var reports cache.ReportCache = cache.NewMemoryReportCache()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CartTTL())
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), keeping carts and reports in memory", err)
		} else {
			carts = redisCache
			reports = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: in-memory")
	}

	svc := service.New(repo, carts, reports, service.Options{
		DefaultTaxRate:      cfg.DefaultTaxRate,
		EnforceWholesaleMin: cfg.EnforceWholesaleMin,
		ReportLocation:      cfg.ReportLocation,
		ReportCacheTTL:      cfg.ReportCacheTTL(),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo)
	if cfg.StoreDriver != config.DriverMemory {
		if err := auth.Bootstrap(ctx, cfg.SeedAdminPassword); err != nil {
			log.Fatalf("auth bootstrap failed: %v", err)
		}
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openRepository returns the configured store and its close function. A
// configured SQL store that cannot be reached is fatal; there is no silent
// fallback to memory.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Println("repository: in-memory (seeded)")
		return memory.NewSeeded(), nil, nil
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
		if cfg.RunMigrations {
			if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Println("repository: postgres")
		return pg, pg.Close, nil
	case config.DriverMySQL, config.DriverSQLite:
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("STORE_DRIVER=%s requires DATABASE_URL", cfg.StoreDriver)
		}
		gs, err := gormstore.Open(cfg.StoreDriver, cfg.DatabaseURL, gormstore.Options{AutoMigrate: cfg.RunMigrations})
		if err != nil {
			return nil, nil, err
		}
		log.Printf("repository: %s (gorm)", cfg.StoreDriver)
		return gs, gs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func runMigrations(cfg config.Config) error {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		return pgstore.Migrate(cfg.DatabaseURL)
	case config.DriverMySQL, config.DriverSQLite:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		gs, err := gormstore.Open(cfg.StoreDriver, cfg.DatabaseURL, gormstore.Options{AutoMigrate: true})
		if err != nil {
			return err
		}
		return gs.Close()
	default:
		return fmt.Errorf("store driver %q has no migrations", cfg.StoreDriver)
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "121212": true,
		"112233": true, "123123": true, "102030": true, "147258": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}

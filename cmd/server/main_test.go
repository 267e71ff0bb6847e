package main

import (
	"context"
	"path/filepath"
	"testing"

	"grosirpos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "739154"})
	if err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	strongSecret := "0123456789abcdef0123456789abcdef"
	for _, pin := range []string{"123456", "999999", "234567", "876543", "12345", "73915a"} {
		if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: pin}); err == nil {
			t.Fatalf("expected pin %q to be rejected", pin)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), config.Config{StoreDriver: config.DriverMemory})
	if err != nil {
		t.Fatalf("open memory repository: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("memory repository needs no close function")
	}
	products, err := repo.ListProducts(context.Background())
	if err != nil || len(products) == 0 {
		t.Fatalf("expected seeded products, got %d (%v)", len(products), err)
	}
}

func TestOpenRepositorySQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "pos.db")
	repo, closeFn, err := openRepository(context.Background(), config.Config{
		StoreDriver:   config.DriverSQLite,
		DatabaseURL:   dsn,
		RunMigrations: true,
	})
	if err != nil {
		t.Fatalf("open sqlite repository: %v", err)
	}
	defer closeFn()

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected empty user table, got %d", len(users))
	}
}

func TestOpenRepositoryRejectsMisconfiguration(t *testing.T) {
	cases := []config.Config{
		{StoreDriver: config.DriverPostgres},
		{StoreDriver: config.DriverMySQL},
		{StoreDriver: "oracle", DatabaseURL: "x"},
	}
	for _, cfg := range cases {
		if _, _, err := openRepository(context.Background(), cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

package store

import (
	"context"
	"testing"

	"github.com/propbook-app/propbook/internal/db"
)

func TestGetJWTSecretIsStable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatalf("GetJWTSecret: %v", err)
	}
	if first == "" {
		t.Fatal("expected a generated secret")
	}

	second, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatalf("GetJWTSecret: %v", err)
	}
	if second != first {
		t.Error("expected the persisted secret to be returned on later calls")
	}
}

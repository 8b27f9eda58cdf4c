package infra

import (
	"context"
	"testing"
	"time"

	"github.com/saveplus/saveplus/internal/config"
)

var testEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func TestOpenStore_SQLite(t *testing.T) {
	store, err := OpenStore(context.Background(), config.StoreConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: "file:open_store_test?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	ids, err := store.ListActiveUserIDs(context.Background(), testEpoch)
	if err != nil || len(ids) != 0 {
		t.Errorf("ListActiveUserIDs = %v, %v", ids, err)
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	if _, err := OpenStore(context.Background(), config.StoreConfig{Driver: "postgres"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

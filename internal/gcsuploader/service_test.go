package gcsuploader

import (
	"testing"
	"time"
)

func TestExportObjectName(t *testing.T) {
	now := time.Date(2026, 10, 15, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600))

	got := ExportObjectName("user-1", "/tmp/exports/plaid.json", now)
	if want := "bank-sync/user-1/2026-10-16/plaid.json"; got != want {
		t.Errorf("ExportObjectName = %q, want %q", got, want)
	}
}

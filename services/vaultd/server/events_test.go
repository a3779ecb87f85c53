package server

import (
	"bytes"
	"context"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/Laura-bmk/KipuBankV3/native/vault"
	"github.com/Laura-bmk/KipuBankV3/observability/logging"
	"github.com/Laura-bmk/KipuBankV3/services/vaultd/storage"
)

func newSinkFixture(t *testing.T) (*EventSink, *storage.Store, *bytes.Buffer) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	var buf bytes.Buffer
	sink := NewEventSink(store, slog.New(slog.NewJSONHandler(&buf, nil)))
	sink.now = func() time.Time { return time.Unix(1700000000, 0) }
	return sink, store, &buf
}

func TestEventSinkMasksIdentifiersInLog(t *testing.T) {
	sink, store, buf := newSinkFixture(t)
	event := vault.DepositRecorded{
		Depositor:  depositor,
		Class:      vault.AssetClassNative,
		RawAmount:  big.NewInt(1),
		Normalized: big.NewInt(2000_000000),
	}
	sink.Emit(context.Background(), event)

	logged := buf.String()
	if strings.Contains(logged, depositor.Hex()) {
		t.Fatalf("depositor address leaked into log: %s", logged)
	}
	if !strings.Contains(logged, logging.RedactedValue) {
		t.Fatalf("expected masked fields in log: %s", logged)
	}
	if !strings.Contains(logged, "2000000000") {
		t.Fatalf("allowlisted amount missing from log: %s", logged)
	}

	// The audit trail keeps the full attributes.
	rows, err := store.RecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(rows) != 1 || !strings.Contains(rows[0].Attributes, depositor.Hex()) {
		t.Fatalf("audit row missing full attributes: %+v", rows)
	}
}

func TestEventSinkObservesContextCancellation(t *testing.T) {
	sink, store, _ := newSinkFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Emit(ctx, vault.WithdrawalRecorded{
		Depositor:  depositor,
		Class:      vault.AssetClassNative,
		RawAmount:  big.NewInt(1),
		Normalized: big.NewInt(1),
	})
	rows, err := store.RecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("canceled context still persisted audit row: %+v", rows)
	}
}

package storage

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Laura-bmk/KipuBankV3/native/vault"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type storedRecord struct {
	Amount string
}

func TestKVRoundTrip(t *testing.T) {
	store := openTestStore(t)
	key := []byte("vault/balance/native/0xabc")

	var missing storedRecord
	found, err := store.KVGet(key, &missing)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if found {
		t.Fatalf("expected missing key")
	}

	if err := store.KVPut(key, storedRecord{Amount: "2000000000"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var loaded storedRecord
	found, err = store.KVGet(key, &loaded)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || loaded.Amount != "2000000000" {
		t.Fatalf("unexpected load: found=%v amount=%q", found, loaded.Amount)
	}

	// Overwrites replace, they never append.
	if err := store.KVPut(key, storedRecord{Amount: "5"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := store.KVGet(key, &loaded); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Amount != "5" {
		t.Fatalf("overwrite not applied: %q", loaded.Amount)
	}
}

func TestKVUpdateCommitsTogether(t *testing.T) {
	store := openTestStore(t)
	err := store.KVUpdate(func(w vault.KVWriter) error {
		if err := w.KVPut([]byte("a"), storedRecord{Amount: "1"}); err != nil {
			return err
		}
		return w.KVPut([]byte("b"), storedRecord{Amount: "2"})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	var loaded storedRecord
	for _, key := range []string{"a", "b"} {
		found, err := store.KVGet([]byte(key), &loaded)
		if err != nil || !found {
			t.Fatalf("key %q not committed: found=%v err=%v", key, found, err)
		}
	}
}

func TestKVUpdateRollsBackOnError(t *testing.T) {
	store := openTestStore(t)
	err := store.KVUpdate(func(w vault.KVWriter) error {
		if err := w.KVPut([]byte("a"), storedRecord{Amount: "1"}); err != nil {
			return err
		}
		return errors.New("second write refused")
	})
	if err == nil {
		t.Fatalf("expected update error to surface")
	}
	var loaded storedRecord
	found, err := store.KVGet([]byte("a"), &loaded)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("aborted update left key persisted: %+v", loaded)
	}
}

func TestStoreBacksLedger(t *testing.T) {
	store := openTestStore(t)
	ledger, err := vault.NewLedger(store)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	depositor := common.HexToAddress("0x0000000000000000000000000000000000000001")
	if err := ledger.Credit(depositor, vault.AssetClassNative, big.NewInt(750)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	balance, err := ledger.BalanceOf(depositor, vault.AssetClassNative)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("unexpected balance %s", balance)
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("unexpected supply %s", supply)
	}
}

func TestEventAuditTrail(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	event := vault.DepositRecorded{
		Depositor:  common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Class:      vault.AssetClassNative,
		Asset:      common.Address{},
		RawAmount:  big.NewInt(1),
		Normalized: big.NewInt(2000),
	}
	if err := store.RecordEvent(ctx, event, now); err != nil {
		t.Fatalf("record event: %v", err)
	}
	if err := store.RecordEvent(ctx, vault.SlippageUpdated{OldBps: 300, NewBps: 100}, now.Add(time.Second)); err != nil {
		t.Fatalf("record second event: %v", err)
	}

	events, err := store.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != vault.TypeSlippageUpdated {
		t.Fatalf("expected newest first, got %q", events[0].EventType)
	}
	if events[1].EventType != vault.TypeDepositRecorded {
		t.Fatalf("unexpected oldest event %q", events[1].EventType)
	}
}

func TestRecordEventRejectsNil(t *testing.T) {
	store := openTestStore(t)
	if err := store.RecordEvent(context.Background(), nil, time.Now()); err == nil {
		t.Fatalf("expected error for nil event")
	}
}

func TestFileDSN(t *testing.T) {
	if _, err := FileDSN("  "); err == nil {
		t.Fatalf("expected error for blank path")
	}
	dsn, err := FileDSN("/var/data/vaultd.sqlite")
	if err != nil {
		t.Fatalf("file dsn: %v", err)
	}
	if dsn != "file:/var/data/vaultd.sqlite?"+filePragmas {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type captureEmitter struct {
	events []Event
}

func (c *captureEmitter) Emit(_ context.Context, e Event) { c.events = append(c.events, e) }

func (c *captureEmitter) last() Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000001111")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000002222")
)

func newTestAdmin(t *testing.T, emitter Emitter) *AdminParams {
	t.Helper()
	auth, err := NewAuthority(owner)
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	oracle, err := NewOracleAdapter(healthyFeed(time.Now()), time.Hour)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	params, err := NewAdminParams(auth, oracle, 300, emitter)
	if err != nil {
		t.Fatalf("new params: %v", err)
	}
	return params
}

func TestAuthorityRequiresOwner(t *testing.T) {
	auth, err := NewAuthority(owner)
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	if err := auth.Require(owner); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	if err := auth.Require(stranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := NewAuthority(common.Address{}); err == nil {
		t.Fatalf("expected error for zero owner")
	}
}

func TestSetSlippageToleranceBounds(t *testing.T) {
	emitter := &captureEmitter{}
	params := newTestAdmin(t, emitter)

	err := params.SetSlippageTolerance(context.Background(), owner, 1001)
	var invalid *InvalidSlippageError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidSlippageError, got %v", err)
	}
	if params.SlippageTolerance() != 300 {
		t.Fatalf("prior tolerance not retained: %d", params.SlippageTolerance())
	}
	if len(emitter.events) != 0 {
		t.Fatalf("rejected update emitted events: %v", emitter.events)
	}

	if err := params.SetSlippageTolerance(context.Background(), owner, 1000); err != nil {
		t.Fatalf("boundary value rejected: %v", err)
	}
	updated, ok := emitter.last().(SlippageUpdated)
	if !ok {
		t.Fatalf("expected SlippageUpdated, got %T", emitter.last())
	}
	if updated.OldBps != 300 || updated.NewBps != 1000 {
		t.Fatalf("unexpected event %+v", updated)
	}
}

func TestSetSlippageToleranceOwnerOnly(t *testing.T) {
	params := newTestAdmin(t, nil)
	if err := params.SetSlippageTolerance(context.Background(), stranger, 100); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if params.SlippageTolerance() != 300 {
		t.Fatalf("tolerance changed by non-owner: %d", params.SlippageTolerance())
	}
}

func TestSetPriceFeed(t *testing.T) {
	emitter := &captureEmitter{}
	params := newTestAdmin(t, emitter)
	if err := params.SetPriceFeed(context.Background(), stranger, healthyFeed(time.Now())); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := params.SetPriceFeed(context.Background(), owner, nil); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
	if err := params.SetPriceFeed(context.Background(), owner, healthyFeed(time.Now())); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	if _, ok := emitter.last().(PriceFeedUpdated); !ok {
		t.Fatalf("expected PriceFeedUpdated, got %T", emitter.last())
	}
}

func TestNewAdminParamsRejectsExcessiveInitialTolerance(t *testing.T) {
	auth, err := NewAuthority(owner)
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	oracle, err := NewOracleAdapter(healthyFeed(time.Now()), time.Hour)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if _, err := NewAdminParams(auth, oracle, 1500, nil); err == nil {
		t.Fatalf("expected error for tolerance above bound")
	}
}

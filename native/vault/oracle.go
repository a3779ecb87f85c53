package vault

import (
	"fmt"
	"sync"
	"time"
)

// DefaultStalenessWindow bounds how old a feed answer may be before dependent
// operations are refused.
const DefaultStalenessWindow = time.Hour

// PriceFeed models the external price feed collaborator. Implementations are
// injected at construction and substitutable with test doubles.
type PriceFeed interface {
	// LatestRoundData returns the most recent round published by the feed.
	LatestRoundData() (RoundData, error)
	// Decimals reports the fixed precision of the feed's answers.
	Decimals() uint8
}

// OracleAdapter validates raw feed rounds into trusted price readings. It is
// consulted on every operation that values the native asset; readings are
// never cached so staleness is re-evaluated each time.
type OracleAdapter struct {
	mu     sync.RWMutex
	feed   PriceFeed
	maxAge time.Duration
	clock  func() time.Time
	hook   func(PriceReading, time.Duration)
}

// NewOracleAdapter constructs an adapter over the supplied feed. A
// non-positive maxAge falls back to DefaultStalenessWindow.
func NewOracleAdapter(feed PriceFeed, maxAge time.Duration) (*OracleAdapter, error) {
	if feed == nil {
		return nil, ErrInvalidReference
	}
	if maxAge <= 0 {
		maxAge = DefaultStalenessWindow
	}
	return &OracleAdapter{feed: feed, maxAge: maxAge, clock: time.Now}, nil
}

// SetClock overrides the time source for deterministic tests.
func (o *OracleAdapter) SetClock(clock func() time.Time) {
	if o == nil || clock == nil {
		return
	}
	o.mu.Lock()
	o.clock = clock
	o.mu.Unlock()
}

// SetReadingHook registers a callback invoked with every validated reading
// and its age at read time. The service tier uses it to export oracle health.
func (o *OracleAdapter) SetReadingHook(hook func(reading PriceReading, age time.Duration)) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.hook = hook
	o.mu.Unlock()
}

// SetFeed replaces the feed reference. Used by the owner-gated admin surface.
func (o *OracleAdapter) SetFeed(feed PriceFeed) error {
	if o == nil {
		return fmt.Errorf("vault: oracle adapter not initialised")
	}
	if feed == nil {
		return ErrInvalidReference
	}
	o.mu.Lock()
	o.feed = feed
	o.mu.Unlock()
	return nil
}

// MaxAge returns the configured staleness window.
func (o *OracleAdapter) MaxAge() time.Duration {
	if o == nil {
		return 0
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.maxAge
}

// ReferencePrice fetches and validates the latest feed round. The validation
// sequence is ordered; the first failing condition wins:
//
//  1. positive answer, else ErrInvalidPrice
//  2. non-zero update timestamp (round complete), else ErrOracleUnavailable
//  3. the answering round must not predate the requested round, else ErrStalePrice
//  4. answer age within the staleness window, else StalePriceError
//
// Transport failures from the feed are classified as ErrOracleUnavailable.
func (o *OracleAdapter) ReferencePrice() (PriceReading, error) {
	if o == nil {
		return PriceReading{}, fmt.Errorf("vault: oracle adapter not initialised")
	}
	o.mu.RLock()
	feed := o.feed
	maxAge := o.maxAge
	hook := o.hook
	now := o.clock()
	o.mu.RUnlock()

	round, err := feed.LatestRoundData()
	if err != nil {
		return PriceReading{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return PriceReading{}, ErrInvalidPrice
	}
	if round.UpdatedAt.IsZero() {
		return PriceReading{}, ErrOracleUnavailable
	}
	if round.AnsweredInRound < round.RoundID {
		return PriceReading{}, ErrStalePrice
	}
	if elapsed := now.Sub(round.UpdatedAt); elapsed > maxAge {
		return PriceReading{}, &StalePriceError{Elapsed: elapsed, MaxAge: maxAge}
	}
	reading := PriceReading{Decimals: feed.Decimals(), UpdatedAt: round.UpdatedAt.UTC()}
	reading.Price = round.Answer
	if hook != nil {
		hook(reading.Clone(), now.Sub(round.UpdatedAt))
	}
	return reading.Clone(), nil
}

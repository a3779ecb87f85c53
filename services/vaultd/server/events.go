package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/Laura-bmk/KipuBankV3/native/vault"
	"github.com/Laura-bmk/KipuBankV3/observability"
	"github.com/Laura-bmk/KipuBankV3/observability/logging"
	"github.com/Laura-bmk/KipuBankV3/services/vaultd/storage"
)

// EventSink fans vault events out to the audit trail, the structured log, and
// the metrics registry. It satisfies the vault emitter contract.
type EventSink struct {
	store   *storage.Store
	logger  *slog.Logger
	metrics *observability.VaultMetrics
	now     func() time.Time
}

// NewEventSink wires an emitter over the given collaborators. Store and logger
// may be nil; missing sinks are skipped.
func NewEventSink(store *storage.Store, logger *slog.Logger) *EventSink {
	return &EventSink{
		store:   store,
		logger:  logger,
		metrics: observability.Vault(),
		now:     time.Now,
	}
}

// Emit records the event in every configured sink under the originating
// operation's context. Persistence failures are logged rather than surfaced;
// the ledger mutation already committed. Log attributes pass through the
// redaction allowlist so depositor and asset identifiers never reach the log.
func (s *EventSink) Emit(ctx context.Context, event vault.Event) {
	if s == nil || event == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if s.store != nil {
		if err := s.store.RecordEvent(ctx, event, s.now()); err != nil && s.logger != nil {
			s.logger.Error("persist vault event", "error", err, "type", event.EventType())
		}
	}
	attrs := event.Attributes()
	switch typed := event.(type) {
	case vault.DepositRecorded:
		s.metrics.RecordDeposit(string(typed.Class))
	case vault.WithdrawalRecorded:
		s.metrics.RecordWithdrawal(string(typed.Class))
	case vault.SwapExecuted:
		s.metrics.RecordSwap(typed.Route, nil)
	}
	if s.logger != nil {
		logArgs := make([]any, 0, len(attrs)+1)
		logArgs = append(logArgs, slog.String("type", event.EventType()))
		for key, value := range attrs {
			logArgs = append(logArgs, logging.MaskField(key, value))
		}
		s.logger.Info("vault event", logArgs...)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Laura-bmk/KipuBankV3/native/vault"
	"github.com/Laura-bmk/KipuBankV3/observability/logging"
	telemetry "github.com/Laura-bmk/KipuBankV3/observability/otel"
	"github.com/Laura-bmk/KipuBankV3/services/vaultd/adapters"
	"github.com/Laura-bmk/KipuBankV3/services/vaultd/config"
	"github.com/Laura-bmk/KipuBankV3/services/vaultd/server"
	"github.com/Laura-bmk/KipuBankV3/services/vaultd/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/vaultd/config.toml", "path to vaultd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("vaultd: load config: %v", err)
	}

	logger := logging.Setup("vaultd", cfg.Environment, cfg.LogLevel)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "vaultd",
		Environment: cfg.Environment,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("vaultd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("vaultd: resolve storage DSN: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("vaultd: open storage: %v", err)
	}
	defer store.Close()

	feed, err := adapters.DialFeed(cfg.Oracle.Endpoint, cfg.FeedAddress())
	if err != nil {
		log.Fatalf("vaultd: dial price feed: %v", err)
	}
	defer feed.Close()

	bank, err := buildBank(cfg, store, feed, server.NewEventSink(store, logger))
	if err != nil {
		log.Fatalf("vaultd: build bank: %v", err)
	}

	auth, err := server.NewAuthenticator(cfg.Admin.BearerToken)
	if err != nil {
		log.Fatalf("vaultd: configure auth: %v", err)
	}

	dial := func(contract common.Address) (vault.PriceFeed, error) {
		return adapters.DialFeed(cfg.Oracle.Endpoint, contract)
	}
	srv, err := server.New(server.Config{ListenAddress: cfg.ListenAddress}, bank, store, logger, auth, dial)
	if err != nil {
		log.Fatalf("vaultd: server: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}

func buildBank(cfg config.Config, store *storage.Store, feed vault.PriceFeed, emitter vault.Emitter) (*vault.Bank, error) {
	pairs := make([][2]common.Address, 0, len(cfg.Swap.Pairs))
	for _, pair := range cfg.Swap.Pairs {
		pairs = append(pairs, [2]common.Address{
			common.HexToAddress(pair.TokenIn),
			common.HexToAddress(pair.TokenOut),
		})
	}
	rates := make(map[common.Address]*big.Int, len(cfg.Swap.Rates))
	for token, rate := range cfg.Swap.Rates {
		parsed, ok := new(big.Int).SetString(strings.TrimSpace(rate), 10)
		if !ok {
			continue
		}
		rates[common.HexToAddress(token)] = parsed
	}
	mover := adapters.NewPaperMover()
	return vault.NewBank(vault.BankConfig{
		Owner:           cfg.OwnerAddress(),
		Vault:           cfg.HoldingAddress(),
		UnitOfAccount:   cfg.UnitOfAccountAddress(),
		Bridge:          cfg.BridgeAddress(),
		ExchangeSpender: cfg.SpenderAddress(),
		LimitPerTx:      cfg.LimitPerTx(),
		BankCap:         cfg.BankCap(),
		SlippageBps:     cfg.Swap.SlippageBps,
		StalenessWindow: cfg.Oracle.StalenessWindow.Duration,
		SwapDeadline:    cfg.Swap.Deadline.Duration,
		Feed:            feed,
		Registry:        adapters.NewStaticRegistry(pairs),
		Exchange:        adapters.NewRateExchange(rates),
		Tokens:          mover,
		Native:          mover,
		Store:           store,
		Emitter:         emitter,
	})
}


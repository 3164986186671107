package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"intraday-bot/internal/alert"
	"intraday-bot/internal/broker"
	"intraday-bot/internal/config"
	"intraday-bot/internal/engine"
	"intraday-bot/internal/ident"
	"intraday-bot/internal/lifecycle"
	"intraday-bot/internal/logger"
	"intraday-bot/internal/marketdata"
	"intraday-bot/internal/models"
	"intraday-bot/internal/persistence"
	"intraday-bot/internal/reporter"
	"intraday-bot/internal/risk"
	"intraday-bot/internal/strategy"
)

const paperBalance = 100000

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "paper", "running mode: paper (REST polling) or live (websocket stream)")
	flag.Parse()

	// A default console logger so config loading itself can log; the
	// configured one replaces it right after.
	logger.Init(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("no .env file found, reading system environment only")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.S().Fatalf("loading config: %v", err)
	}
	logger.Init(cfg.Log)
	defer logger.S().Sync()

	if cfg.BotID == "" {
		cfg.BotID = ident.NewBotID()
	}
	logger.S().Infof("starting %s: %s on %s (mode=%s)", cfg.BotID, cfg.Strategy, cfg.Symbol, *mode)

	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("opening journal database: %v", err)
	}
	defer repo.Close()

	if err := repo.RegisterBot(persistence.BotRecord{
		BotID:     cfg.BotID,
		Symbol:    cfg.Symbol,
		Strategy:  cfg.Strategy,
		StartedAt: time.Now().Unix(),
	}); err != nil {
		logger.S().Fatalf("registering bot: %v", err)
	}

	provider := marketdata.NewBinanceProvider(
		os.Getenv("BINANCE_API_KEY"),
		os.Getenv("BINANCE_SECRET_KEY"),
		cfg.Binance.APIURL,
		cfg.Binance.WSURL,
		logger.Named("binance"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch *mode {
	case "live":
		go provider.StreamLoop(ctx, cfg.Symbol)
	case "paper":
	default:
		logger.S().Fatalf("unknown mode %q, choose 'paper' or 'live'", *mode)
	}

	// Order execution is always simulated against the live prices; the
	// mode only changes how prices arrive.
	pb := broker.NewPaperBroker(paperBalance, func() (float64, error) {
		quote, err := provider.GetQuote(cfg.Symbol)
		if err != nil {
			return 0, err
		}
		return quote.Last, nil
	}, logger.Named("broker"))
	if err := pb.Connect(); err != nil {
		logger.S().Fatalf("connecting broker: %v", err)
	}
	defer pb.Disconnect()

	gate := risk.NewGate(cfg.Risk, logger.Named("risk"))
	strat, err := strategy.New(cfg, gate, logger.Named("strategy"))
	if err != nil {
		logger.S().Fatalf("building strategy: %v", err)
	}
	if err := strat.Initialize(provider); err != nil {
		logger.S().Fatalf("initializing strategy: %v", err)
	}

	alerter := alert.NewLogAlerter(logger.Named("alert"))
	life := lifecycle.NewManager(cfg, pb, strat, repo, alerter, logger.Named("lifecycle"))

	// Counters survive restarts within the same trading day; the engine
	// resets them on the next day's first tick.
	if saved, err := repo.LoadRiskState(cfg.BotID); err != nil {
		logger.S().Warnf("loading saved risk state: %v", err)
	} else if saved != nil {
		life.RestoreRiskState(*saved)
		logger.S().Infof("risk state restored: pnl=%.2f trades=%d losses=%d",
			saved.DailyPnL, saved.TradesToday, saved.ConsecutiveLosses)
	}

	eng, err := engine.New(cfg, provider, strat, gate, life, alerter, logger.Named("engine"))
	if err != nil {
		logger.S().Fatalf("building engine: %v", err)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.S().Infof("received %s, shutting down", sig)
		cancel()
	}()

	if err := eng.Run(ctx); err != nil {
		logger.S().Errorf("engine stopped with error: %v", err)
	}

	reporter.Render(os.Stdout, cfg.BotID, cfg.Symbol, cfg.Strategy, life.ClosedTrades())
	logger.S().Info("shutdown complete")
}

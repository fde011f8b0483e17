package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/app/service"
	"portfolio_aggregator/internal/client"
	"portfolio_aggregator/internal/config"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/hdwallet"
	networkclient "portfolio_aggregator/internal/infrastructure/network/client"
	definition "portfolio_aggregator/internal/infrastructure/network/definition"
	"portfolio_aggregator/internal/infrastructure/opportunity/foxeth"
	"portfolio_aggregator/internal/infrastructure/restapi"
	"portfolio_aggregator/internal/infrastructure/tokenloader"
	"portfolio_aggregator/internal/pkg/logger"
	"portfolio_aggregator/internal/pkg/metrics"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	cfgPath := config.PathFromEnv()
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := newZapLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	logger.SetHandler(zapslog.NewHandler(zapLogger.Core()))
	appLogger := logger.NewSlogAdapter()
	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.MustRegisterMetrics()

	// Networks, tokens and clients
	networkProvider := definition.NewNetworkDefinitionProvider(appLogger, cfg.Networks.TokenDirectory, cfg.Networks.RPCOverrides)
	networkDefs := networkProvider.GetAllNetworkDefinitions()
	if len(networkDefs) == 0 {
		zapLogger.Fatal("No active networks. Add token files to the token directory.", zap.String("dir", cfg.Networks.TokenDirectory))
	}
	tokenProvider := tokenloader.NewTokenLoader(cfg.Networks.TokenDirectory, appLogger)
	rpcTimeout := time.Duration(cfg.RpcClient.DefaultTimeoutMs) * time.Millisecond
	clientProvider := networkclient.NewEVMClientProvider(rpcTimeout, zapLogger)
	adapters := networkclient.NewChainAdapterManager(networkDefs)

	receipts := make(map[entity.ChainID]port.ReceiptFetcher, len(networkDefs))
	for _, def := range networkDefs {
		evmClient, err := clientProvider.GetClient(def)
		if err != nil {
			zapLogger.Warn("Network client unavailable, transactions on it will not be watched", zap.String("network", def.Identifier), zap.Error(err))
			continue
		}
		receipts[def.CAIPChainID()] = evmClient
	}

	ethDef, ok := networkProvider.GetNetworkDefinitionByChainID(entity.EthChainID)
	if !ok {
		zapLogger.Fatal("Ethereum network is required for FOX/ETH opportunities", zap.String("chainId", string(entity.EthChainID)))
	}
	ethClient, err := clientProvider.GetClient(ethDef)
	if err != nil {
		zapLogger.Fatal("Failed to create Ethereum client", zap.Error(err))
	}

	// Wallet
	mnemonic := os.Getenv(cfg.Wallet.MnemonicEnv)
	if mnemonic == "" {
		zapLogger.Fatal("Wallet mnemonic is not set", zap.String("env", cfg.Wallet.MnemonicEnv))
	}
	var passphrase string
	if cfg.Wallet.PassphraseEnv != "" {
		passphrase = os.Getenv(cfg.Wallet.PassphraseEnv)
	}
	wallet, err := hdwallet.NewFromMnemonic(mnemonic, passphrase, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to load wallet", zap.Error(err))
	}

	// Stores and services
	portfolioStore := service.NewPortfolioStore(appLogger)
	portfolioService := service.NewPortfolioService(
		networkProvider,
		tokenProvider,
		clientProvider,
		adapters,
		portfolioStore,
		appLogger,
		cfg.Wallet.AccountsPerChain,
		cfg.Portfolio.MaxConcurrentRoutines,
	)
	accountAssets := service.NewAccountAssetsService(portfolioStore, adapters)

	txStore := service.NewTxHistoryStore()
	txWatcher := service.NewTxWatcher(
		txStore,
		receipts,
		time.Duration(cfg.TxWatcher.PollIntervalSeconds)*time.Second,
		cfg.TxWatcher.RequestsPerSecond,
		appLogger,
	)

	foxCfg := foxEthConfig(cfg.Opportunities.FoxEth)
	resolvers := []port.OpportunityResolver{
		foxeth.NewLpResolver(entity.EthChainID, ethClient, foxCfg, zapLogger),
		foxeth.NewFarmingResolver(entity.EthChainID, ethClient, foxCfg, zapLogger),
	}
	opportunityService := service.NewOpportunityService(
		resolvers,
		portfolioStore,
		time.Duration(cfg.Opportunities.CacheTTLSeconds)*time.Second,
		cfg.Opportunities.Concurrency,
		appLogger,
	)
	tracker := service.NewFoxEthTracker(
		opportunityService,
		portfolioStore,
		txStore,
		adapters,
		time.Duration(cfg.Opportunities.FetchTimeoutSeconds)*time.Second,
		appLogger,
	)
	investor := foxeth.NewInvestor(entity.EthChainID, ethClient, foxCfg, zapLogger)
	claimService := service.NewClaimService(investor, portfolioStore, adapters, tracker, txWatcher, wallet, appLogger)

	onRamper := client.NewOnRamperClient(client.OnRamperConfig{
		APIURL:    cfg.OnRamper.APIURL,
		WidgetURL: cfg.OnRamper.WidgetURL,
		APIKey:    cfg.OnRamper.APIKey,
		Timeout:   time.Duration(cfg.OnRamper.RequestTimeoutMillis) * time.Millisecond,
		AssetsTTL: time.Duration(cfg.OnRamper.AssetsCacheTTLMinutes) * time.Minute,
	}, zapLogger)

	// Background work
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker.Start(ctx)
	defer tracker.Close()
	go txWatcher.Run(ctx)

	go func() {
		accountIDs, err := portfolioService.ConnectWallet(ctx, wallet)
		if err != nil {
			zapLogger.Error("Failed to connect wallet", zap.Error(err))
			return
		}
		zapLogger.Info("Wallet connected", zap.Int("accounts", len(accountIDs)))
		tracker.OnWalletConnected(ctx, wallet)
		runPeriodicSync(ctx, portfolioService, time.Duration(cfg.Portfolio.SyncIntervalSeconds)*time.Second, zapLogger)
	}()

	// HTTP API
	handlers := restapi.NewHandlers(
		portfolioStore,
		portfolioService,
		accountAssets,
		opportunityService,
		tracker,
		claimService,
		onRamper,
		zapLogger,
	)
	router := restapi.SetupRouter(handlers, restapi.RouterOptions{
		SwaggerEnabled: cfg.Swagger.Enabled,
		SwaggerPath:    cfg.Swagger.Path,
	}, zapLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exiting")
}

func newZapLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("Invalid log level in config: %s. Defaulting to Info.", cfg.Level)
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func foxEthConfig(c config.FoxEthConfig) foxeth.Config {
	out := foxeth.DefaultConfig()
	if c.PairAddress != "" {
		out.PairAddress = c.PairAddress
	}
	if c.FoxAddress != "" {
		out.FoxAddress = c.FoxAddress
	}
	if len(c.FarmingContracts) > 0 {
		out.FarmingContracts = make([]foxeth.FarmingContract, 0, len(c.FarmingContracts))
		for _, fc := range c.FarmingContracts {
			out.FarmingContracts = append(out.FarmingContracts, foxeth.FarmingContract{
				Address:   fc.Address,
				Name:      fc.Name,
				ExpiredAt: fc.ExpiredAt,
			})
		}
	}
	return out
}

func runPeriodicSync(ctx context.Context, syncer port.PortfolioSyncer, interval time.Duration, l *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncErrors := syncer.SyncAll(ctx)
			if len(syncErrors) > 0 {
				l.Warn("Portfolio sync finished with errors", zap.Int("errors", len(syncErrors)))
			}
		}
	}
}

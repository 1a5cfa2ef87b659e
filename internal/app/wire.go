package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/opipolix/webgate/internal/auth"
	"github.com/opipolix/webgate/internal/config"
	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/orders"
	"github.com/opipolix/webgate/internal/platform/dome"
	"github.com/opipolix/webgate/internal/platform/polymarket"
	"github.com/opipolix/webgate/internal/resolver"
	"github.com/opipolix/webgate/internal/server"
	"github.com/opipolix/webgate/internal/server/handler"
	"github.com/opipolix/webgate/internal/server/ws"
	"github.com/opipolix/webgate/internal/store/memory"
	"github.com/opipolix/webgate/internal/tp"
)

// Dependencies bundles everything the running gateway needs: the state
// store, the long-running hub and TP engine, and the assembled HTTP server.
type Dependencies struct {
	Store  *memory.Store
	Hub    *ws.Hub
	Engine *tp.Engine
	Server *server.Server
}

// Wire constructs every concrete dependency from the configuration.
func Wire(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store := memory.New(
		time.Duration(cfg.Session.NonceTTLSeconds)*time.Second,
		time.Duration(cfg.Session.TTLSeconds)*time.Second,
	)

	// Builder attribution: local credentials win over a remote signing
	// service; both absent disables attribution.
	var builder polymarket.BuilderHeaderSource
	switch {
	case cfg.Builder.APIKey != "":
		builder = polymarket.NewLocalBuilder(cfg.Builder.APIKey, cfg.Builder.APISecret, cfg.Builder.APIPassphrase)
	case cfg.Builder.SigningURL != "":
		builder = polymarket.NewRemoteBuilder(cfg.Builder.SigningURL)
	}

	newSessionClient := func(sess *domain.Session) (*polymarket.SessionClient, error) {
		tc := sess.TradingContext
		return polymarket.NewSessionClient(
			cfg.Polymarket.ClobHost,
			sess.EOAAddress,
			sess.Creds,
			tc.FunderAddress,
			tc.SignatureType,
			cfg.Polymarket.ChainID,
			builder,
		)
	}

	// The TP engine builds clients from arm snapshots, not live sessions.
	armClientFactory := func(eoa string, creds domain.ClobCreds, funder string, sigType int) (tp.ClobClient, error) {
		return polymarket.NewSessionClient(
			cfg.Polymarket.ClobHost,
			eoa,
			creds,
			funder,
			sigType,
			cfg.Polymarket.ChainID,
			builder,
		)
	}

	var wallets resolver.WalletMetadata
	if cfg.Dome.APIKey != "" {
		domeClient, err := dome.New(cfg.Dome.BaseURL, cfg.Dome.APIKey)
		if err != nil {
			return nil, fmt.Errorf("wire: dome client: %w", err)
		}
		wallets = domeClient
	}

	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	public := polymarket.NewPublicClient(cfg.Polymarket.ClobHost)

	res := resolver.New(wallets, gamma, cfg.Polymarket.ChainID, logger)
	deriver := auth.NewCredsDeriver(cfg.Polymarket.ClobHost, logger)
	validator := orders.NewValidator(cfg.Polymarket.ChainID, logger)

	hub := ws.NewHub(logger)
	engine := tp.New(
		store,
		armClientFactory,
		hub,
		time.Duration(cfg.Tp.PollSeconds*float64(time.Second)),
		cfg.Tp.MaxMinutes,
		logger,
	)

	sessionTTL := time.Duration(cfg.Session.TTLSeconds) * time.Second
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(Version),
		Auth:   handler.NewAuthHandler(store, res, deriver, cfg.Polymarket.ChainID, cfg.Session.CookieName, sessionTTL, logger),
		Market: handler.NewMarketHandler(res, public, newSessionClient, cfg.Polymarket.ChainID, logger),
		Order:  handler.NewOrderHandler(store, validator, newSessionClient, logger),
		Tp:     handler.NewTpHandler(engine, validator, logger),
	}

	srv := server.NewServer(server.Config{
		Port:          cfg.Server.Port,
		CORSOrigins:   cfg.Server.CORSOrigins,
		UIDir:         cfg.Server.UIDir,
		CookieName:    cfg.Session.CookieName,
		AuthRateMax:   cfg.AuthLimit.MaxRequests,
		AuthRateWindw: time.Duration(cfg.AuthLimit.WindowSeconds) * time.Second,
	}, store, handlers, hub, logger)

	return &Dependencies{
		Store:  store,
		Hub:    hub,
		Engine: engine,
		Server: srv,
	}, nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authkit/internal/auth/identity"
	"github.com/dropDatabas3/authkit/internal/auth/local"
	"github.com/dropDatabas3/authkit/internal/auth/machine"
	"github.com/dropDatabas3/authkit/internal/auth/provider"
	"github.com/dropDatabas3/authkit/internal/auth/registry"
	"github.com/dropDatabas3/authkit/internal/auth/tokenprovider"
	"github.com/dropDatabas3/authkit/internal/auth/twofactor"
	"github.com/dropDatabas3/authkit/internal/cache"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/email"
	"github.com/dropDatabas3/authkit/internal/httpx"
	"github.com/dropDatabas3/authkit/internal/jwtx"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/rate"
	"github.com/dropDatabas3/authkit/internal/sms"
	"github.com/dropDatabas3/authkit/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authentication server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
	log := logger.L().With(logger.Component("serve"))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Driver,
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		Prefix:   cfg.Cache.Prefix,
	})
	if err != nil {
		return err
	}

	// The config bus is co-located with the cache: redis deployments fan
	// events out to every replica, memory deployments stay in-process.
	var notifier config.Notifier
	if cfg.Cache.Driver == "redis" {
		notifier, err = config.NewRedisNotifier(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.Prefix+":config")
		if err != nil {
			return err
		}
	} else {
		notifier = config.NewLocalNotifier()
	}
	defer notifier.Close()

	var sender email.Sender
	if cfg.SMTP.Host != "" {
		smtp := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		smtp.TLSMode = cfg.SMTP.TLSMode
		sender = smtp
	} else {
		log.Warn("smtp host not configured, mail will be logged instead of sent")
		sender = email.LogSender{}
	}
	mailer := email.NewMailer(sender)
	if err := email.RegisterDefaults(mailer); err != nil {
		return err
	}

	issuer := jwtx.NewIssuer(cfg.JWT.Issuer, []byte(cfg.JWT.Secret))
	issuer.AccessTTL = cfg.JWT.AccessTTL

	tokens := tokenprovider.New(tokenprovider.Deps{
		Users:      st.Users(),
		Access:     st.AccessTokens(),
		Refresh:    st.RefreshTokens(),
		Issuer:     issuer,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	twoFA := twofactor.New(twofactor.Deps{
		Users:   st.Users(),
		Secrets: st.TwoFactorSecrets(),
		Purpose: st.PurposeTokens(),
		SMS:     sms.NewCacheSender(c),
		Cache:   c,
	})
	localSvc := local.New(local.Deps{
		Store:     st,
		Tokens:    tokens,
		TwoFA:     twoFA,
		Mailer:    mailer,
		Cache:     c,
		PublicURL: cfg.Server.PublicURL,
	})
	machineSvc := machine.New(machine.Deps{Services: st.Services(), Issuer: issuer})
	resolver := identity.NewResolver(identity.Deps{Users: st.Users()})

	holder := config.NewHolder(cfg.Runtime)

	handlers := &httpx.Handlers{
		Holder:  holder,
		Local:   localSvc,
		Tokens:  tokens,
		TwoFA:   twoFA,
		Machine: machineSvc,
		Users:   st.Users(),
	}
	oauth := &httpx.OAuthHandlers{
		Holder:   holder,
		Identity: resolver,
		Tokens:   tokens,
		TwoFA:    twoFA,
	}

	engines := make([]*provider.Engine, 0, len(provider.Table))
	for _, desc := range provider.Table {
		engines = append(engines, provider.NewEngine(desc, issuer, cfg.JWT.StateTTL, cfg.Server.PublicURL))
	}

	strategies := []registry.Strategy{
		&httpx.LocalStrategy{H: handlers},
		&httpx.MagicLinkStrategy{H: handlers},
		&httpx.ServiceStrategy{H: handlers},
	}
	strategies = append(strategies, httpx.ProviderStrategies(oauth, engines)...)

	dyn := httpx.NewDynamicRouter(tokens, st.Users())
	reg := registry.New(holder, notifier, dyn, strategies)
	handlers.Registry = reg
	go reg.Run(logger.ToContext(ctx, logger.L()))

	var limiter *rate.Limiter
	if cfg.Rate.Enabled {
		limiter = rate.New(c, cfg.Rate.Limit, cfg.Rate.Window)
	}

	srv := httpx.NewServer(cfg.Server.Addr, httpx.NewHandler(httpx.ServerDeps{
		Handlers: handlers,
		Admin:    &httpx.AdminHandlers{Handlers: handlers, Notifier: notifier},
		Dynamic:  dyn,
		Limiter:  limiter,
	}))

	errc := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	return httpx.Shutdown(srv, 15*time.Second)
}

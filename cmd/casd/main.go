package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/proc"

	"github.com/nordkirke/cas-authority/internal/cas"
	"github.com/nordkirke/cas-authority/internal/cas/handlers"
	"github.com/nordkirke/cas-authority/internal/cas/store"
	"github.com/nordkirke/cas-authority/internal/cas/store/postgres"
	"github.com/nordkirke/cas-authority/shared/config"
	"github.com/nordkirke/cas-authority/third_party/cache"
	"github.com/nordkirke/cas-authority/third_party/database"
)

var configFile = flag.String("f", "etc/casd.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)
	if err := c.SetUp(); err != nil {
		logx.Errorf("casd: service setup: %v", err)
		os.Exit(1)
	}

	db, err := database.NewPostgresConnection(c.Database)
	if err != nil {
		logx.Errorf("casd: connect postgres: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := cache.NewRedisClient(c.Redis)
	if err != nil {
		logx.Errorf("casd: connect redis: %v", err)
		os.Exit(1)
	}

	sessionStore := store.NewMemoryStore()
	accessIndex := store.NewRedisIndex(redisClient)

	serviceRegistry := postgres.NewServiceRegistry(db)
	auditSink := postgres.NewAuditSink(db)
	ids := cas.NewRandomIDGenerator()
	auditObserver := postgres.NewAuditObserver(auditSink, ids)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registeredServices, err := serviceRegistry.LoadServices(ctx)
	if err != nil {
		logx.Errorf("casd: load services registry: %v", err)
		os.Exit(1)
	}
	services := cas.NewStaticServicesManager(registeredServices)

	authManager := cas.NewAuthenticationManager(
		handlers.NewPasswordHandler(db),
	)

	expiration := cas.RememberMePolicy{
		Normal:   cas.TTLPolicy{TTL: time.Duration(c.Sessions.TicketGrantingTicketTTL) * time.Second},
		LongTerm: cas.TTLPolicy{TTL: time.Duration(c.Sessions.LongTermTicketGrantingTTL) * time.Second},
	}

	responses := cas.NewResponseFactoryRegistry(
		cas.NewCAS2Factory(),
		cas.NewCAS1Factory(),
	)

	authority := cas.NewCentralAuthenticationService(cas.CentralAuthenticationServiceConfig{
		AuthManager:    authManager,
		Store:          sessionStore,
		Services:       services,
		Expiration:     expiration,
		Responses:      responses,
		IDs:            ids,
		Notifier:       cas.NoopNotifier{},
		ProxyValidator: handlers.NewHTTPSCallbackValidator(),
		AccessPolicy:   cas.BoundedUsesPolicy(1),
		AccessIndex:    accessIndex,
		AccessIndexTTL: time.Duration(c.Sessions.AccessIndexTTL) * time.Second,
		Observers:      cas.ObserverChain{cas.LoggingObserver{}, auditObserver},
	})

	sweeper := cas.NewSweeper(authority, sessionStore, expiration, time.Duration(c.Sessions.SweepInterval)*time.Second)
	sweeper.Start()

	proc.AddShutdownListener(func() {
		sweeper.Stop()
		cancel()
		logx.Info("casd: shutting down")
	})

	fmt.Printf("casd started, sweeping every %ds\n", c.Sessions.SweepInterval)
	waitForSignal()
	proc.Shutdown()
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/masomo-notify/apps/api/echo"
	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/automation"
	"github.com/trezcool/masomo-notify/core/delivery"
	"github.com/trezcool/masomo-notify/core/notification"
	emailsvc "github.com/trezcool/masomo-notify/services/email"
	logsvc "github.com/trezcool/masomo-notify/services/logger"
	"github.com/trezcool/masomo-notify/storage/database"
	sqlxrepos "github.com/trezcool/masomo-notify/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("failed to close database", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	notification.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger)

	// set up services
	usrRepo := sqlxrepos.NewUserRepository(db)
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(db), usrRepo, validate, conf.Notifications)
	ruleSvc := automation.NewRuleService(sqlxrepos.NewRuleRepository(db), validate, conf.Automation.RuleCacheTTL)
	registry := delivery.NewRegistry(logger)
	engine := automation.NewEngine(automation.EngineDeps{
		Rules:           ruleSvc,
		Notifications:   notifSvc,
		Directory:       usrRepo,
		Pusher:          registry,
		MailSvc:         emailsvc.New(conf, logger),
		Logger:          logger,
		FrontendBaseURL: conf.FrontendBaseURL,
		EventTimeout:    conf.Automation.EventTimeout,
	})

	if conf.Automation.SeedDefaults {
		n, err := ruleSvc.SeedDefaults(context.Background())
		if err != nil {
			logger.Fatal(fmt.Sprintf("seeding default rules: %v", err), err)
		}
		logger.Info(fmt.Sprintf("seeded %d default automation rule(s)", n))
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("realtime_connections", expvar.Func(func() interface{} { return registry.Count() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Expiry Reaper

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go notification.NewReaper(notifSvc, conf.Notifications.SweepInterval, logger).Run(reaperCtx)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:            conf,
			Logger:          logger,
			NotificationSvc: notifSvc,
			RuleSvc:         ruleSvc,
			Engine:          engine,
			Registry:        registry,
			Validate:        validate,
			Translator:      translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}

		// let accepted events finish before the database goes away
		stopReaper()
		engine.Wait()
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

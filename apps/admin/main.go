package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/automation"
	"github.com/trezcool/masomo-notify/core/notification"
	logsvc "github.com/trezcool/masomo-notify/services/logger"
	"github.com/trezcool/masomo-notify/storage/database"
	sqlxrepos "github.com/trezcool/masomo-notify/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf), conf)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	notification.InitValidators(validate, translator)

	// start CLI
	usrRepo := sqlxrepos.NewUserRepository(db)
	cli := commandLine{
		db:       db,
		validate: validate,
		usrRepo:  usrRepo,
		notifSvc: notification.NewService(sqlxrepos.NewNotificationRepository(db), usrRepo, validate, conf.Notifications),
		ruleSvc:  automation.NewRuleService(sqlxrepos.NewRuleRepository(db), validate, conf.Automation.RuleCacheTTL),
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("admin: %v", err), err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}

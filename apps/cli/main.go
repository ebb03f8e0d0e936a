// Command masomo drives the school portal from a terminal.
package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/trezcool/masomo-portal/apps/portal"
	"github.com/trezcool/masomo-portal/core"
	logsvc "github.com/trezcool/masomo-portal/services/logger"
	"github.com/trezcool/masomo-portal/storage/sqlx"
)

var logger *logsvc.RollbarLogger

func main() {
	conf := core.NewConfig()

	logger = logsvc.NewRollbarLogger(log.New(os.Stderr, "CLI : ", log.LstdFlags|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	p, err := portal.New(context.Background(), conf, portal.Deps{Logger: logger})
	errAndDie(err)

	cli := commandLine{
		p:   p,
		out: os.Stdout,
		migrate: func(ctx context.Context, command string, args ...string) error {
			db, err := sqlxstore.Connect(ctx, conf.Storage.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return sqlxstore.Migrate(db.DB, command, args...)
		},
	}
	err = cli.run(os.Args)
	if cErr := p.Close(); cErr != nil {
		logger.Warn("closing portal", cErr)
	}
	if err != nil {
		if err != errHelp {
			apiErr := core.Normalize(err)
			log.Printf("error: %s", apiErr.Message())
			for field, msgs := range apiErr.Fields {
				log.Printf("  %s: %s", field, strings.Join(msgs, " "))
			}
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}

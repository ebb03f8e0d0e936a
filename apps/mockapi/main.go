// Command mockapi serves an in-memory school management API for local development.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/masomo-portal/apps/mockapi/echo"
	"github.com/trezcool/masomo-portal/core"
	logsvc "github.com/trezcool/masomo-portal/services/logger"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "MOCKAPI : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	server := echoapi.NewServerFromConfig(conf, logger)
	if err := seed(server.DB(), demoPassword()); err != nil {
		logger.Fatal(fmt.Sprintf("seeding: %v", err), err)
	}

	logger.Info(fmt.Sprintf("mock API listening on %s : version %q", conf.MockAPI.Addr, conf.Build))
	defer logger.Info("mock API stopped")

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(fmt.Sprintf("server error: %v", err), err)
		}

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.API.Timeout)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

func demoPassword() string {
	if pwd := os.Getenv("MOCKAPI_PASSWORD"); pwd != "" {
		return pwd
	}
	return "Masomo#2024"
}

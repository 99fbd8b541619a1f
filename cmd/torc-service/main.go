// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/NREL/torc-service/internal/api"
	"github.com/NREL/torc-service/internal/config"
	"github.com/NREL/torc-service/internal/engine"
	"github.com/NREL/torc-service/internal/metrics"
	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// version/commit are set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var flagConfigFile string
	var flagLogLevel string
	var flagLogDateTime bool
	var flagVersion bool
	var flagEnableMetrics bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to the JSON configuration file")
	flag.StringVar(&flagLogLevel, "loglevel", "", "Override the configured log level: debug, info, warn, err")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Add date and time to log messages")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagEnableMetrics, "metrics", false, "Expose a Prometheus /metrics endpoint")
	flag.Parse()

	if flagVersion {
		fmt.Printf("torc-service %s (%s)\n", version, commit)
		return
	}

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("config: %v", err)
	}

	if flagLogLevel != "" {
		config.Keys.LogLevel = flagLogLevel
	}
	log.SetLevel(config.Keys.LogLevel)
	log.SetLogDateTime(flagLogDateTime || config.Keys.LogDate)

	if dsn := os.Getenv("TORC_SERVICE_DB"); dsn != "" {
		config.Keys.DB = dsn
	}

	if err := repository.Connect(config.Keys.DBDriver, config.Keys.DB); err != nil {
		log.Fatalf("repository: %v", err)
	}
	db := repository.GetConnection()

	eng := engine.New(db.DB)

	restApi := &api.RestApi{
		Engine: eng,
		Build:  api.BuildInfo{Version: version, Commit: commit},
	}

	r := mux.NewRouter()
	restApi.MountRoutes(r)

	if flagEnableMetrics {
		r.Handle("/metrics", metrics.Handler())
	}

	if !config.Keys.DisableAuthentication {
		if config.Keys.JWTSecret == "" {
			log.Fatalf("config: jwtSecret is required unless disableAuthentication is set")
		}
		r.Use(api.JWTAuthMiddleware(config.Keys.JWTSecret))
	}

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	r.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization", "x-span-id"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"})))

	logged := handlers.CustomLoggingHandler(os.Stderr, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Infof("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	server := http.Server{
		Addr:         config.Keys.Addr,
		Handler:      logged,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Infof("torc-service %s listening on %s", version, config.Keys.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server: %v", err)
	}
}

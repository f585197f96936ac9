// Command transform runs the coordinate-to-address pipeline: it ensures the
// target database and tables exist, streams a coordinate CSV through reverse
// geocoding, and loads the results into PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"geoetl/internal/config"
	"geoetl/internal/geocode"
	"geoetl/internal/metrics"
	"geoetl/internal/metrics/prompush"
	"geoetl/internal/pipeline"
	"geoetl/internal/provision"
	pgstorage "geoetl/internal/storage/postgres"

	// register all provisioning backends with the factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "geoetl/internal/provision/all"
)

// main loads the pipeline config and environment, optionally initializes a
// metrics backend, provisions the database, and executes the run.
func main() {
	var (
		cfgPath           string
		csvPath           string
		apiKey            string
		envPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
		skipProvision     bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/sample.json", "pipeline config JSON path")
	flag.StringVar(&csvPath, "csv", "", "coordinate CSV path (overrides source.path from the config)")
	flag.StringVar(&apiKey, "api-key", "", "Google Maps API key (overrides env GOOGLE_MAPS_API_KEY)")
	flag.StringVar(&envPath, "env", "", "dotenv file to load before reading env vars")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (e.g. pushgateway, none); overrides the config")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides the config)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&skipProvision, "skip-provision", false, "assume the database already exists")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if err := config.LoadDotenv(envPath); err != nil {
		fatalf("load env: %v", err)
	}

	p, err := config.LoadPipeline(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if csvPath != "" {
		p.Source.Path = csvPath
	}

	// Validate pipeline config.
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}
	p.Normalize()

	// Decide metrics backend: flag → config → none.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = p.Metrics.Backend
	}
	switch backendName {
	case "pushgateway":
		// Decide Pushgateway URL: flag → config → default.
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = p.Metrics.PushgatewayURL
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		jobName := p.Job
		if jobName == "" {
			jobName = "geoetl_job"
		}

		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	db, err := config.FromEnv()
	if err != nil {
		fatalf("database config: %v", err)
	}

	key := apiKey
	if key == "" {
		key = config.MapsAPIKey()
	}
	gc, err := geocode.NewGoogle(key)
	if err != nil {
		fatalf("geocoder: %v", err)
	}

	ctx := context.Background()
	start := time.Now()

	// Fail fast on a bad key before touching the database.
	if err := gc.VerifyKey(ctx); err != nil {
		fatalf("geocoder: %v", err)
	}

	if !skipProvision {
		if err := ensureDatabase(ctx, db); err != nil {
			fatalf("provision: %v", err)
		}
	}

	repo, err := pgstorage.NewRepository(ctx, pgstorage.Config{
		DSN:             db.DSN(),
		CoordinateTable: p.Storage.CoordinateTable,
		AddressTable:    p.Storage.AddressTable,
	})
	if err != nil {
		fatalf("storage: %v", err)
	}
	defer repo.Close()

	if _, err := pipeline.Run(ctx, p, gc, repo); err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// ensureDatabase creates the target database when it does not exist yet.
func ensureDatabase(ctx context.Context, db config.DB) error {
	guard, err := provision.Open(ctx, "postgres", db.DSN())
	if err != nil {
		return err
	}
	defer guard.Close(ctx)

	status, err := provision.Ensure(ctx, guard, db.Name)
	if err != nil {
		return err
	}
	log.Printf("provision: database %q: %s", db.Name, status)
	return nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

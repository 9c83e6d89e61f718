// Package main runs the Kartograph mutation service.
//
// Usage:
//
//	go run ./cmd/kartograph
//	go run ./cmd/kartograph -config kartograph.yaml
//
// Configuration comes from defaults, an optional YAML file, and
// KARTOGRAPH_* environment variables, in that precedence order.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/config"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/metrics"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/server"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	var engine *storage.BadgerEngine
	if cfg.InMemory {
		engine = storage.NewMemoryEngine()
		log.Printf("storage: in-memory (no durable backing)")
	} else {
		engine, err = storage.Open(cfg.DataDir)
		if err != nil {
			log.Fatalf("opening storage: %v", err)
		}
		log.Printf("storage: %s", cfg.DataDir)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("closing storage: %v", err)
		}
	}()

	// Hydrate the registry from persisted DEFINEs.
	registry := schema.NewRegistry()
	defs, err := engine.TypeDefinitions()
	if err != nil {
		log.Fatalf("loading type definitions: %v", err)
	}
	registry.Replace(defs)
	log.Printf("schema registry: %d type definitions", registry.Len())

	srv := server.New(cfg, engine, registry, metrics.New())
	if err := srv.Start(); err != nil {
		log.Fatalf("starting server: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

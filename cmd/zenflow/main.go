// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zenflow/internal/config"
	"github.com/pbinitiative/zenflow/internal/definition"
	"github.com/pbinitiative/zenflow/internal/log"
	"github.com/pbinitiative/zenflow/internal/otel"
	"github.com/pbinitiative/zenflow/internal/profile"
	"github.com/pbinitiative/zenflow/internal/rest"
	"github.com/pbinitiative/zenflow/pkg/bpmn"
	"github.com/pbinitiative/zenflow/pkg/script"
	"github.com/pbinitiative/zenflow/pkg/script/feel"
	"github.com/pbinitiative/zenflow/pkg/script/js"
	"github.com/pbinitiative/zenflow/pkg/storage/inmemory"
)

func main() {
	profile.InitProfile()
	log.Init()
	defer log.Sync()

	appContext, ctxCancel := context.WithCancel(context.Background())

	conf := config.InitConfig()

	openTelemetry, err := otel.SetupOtel(appContext, conf.Tracing)
	if err != nil {
		log.Error("Failed to set up OTEL: %s", err)
		os.Exit(1)
	}

	registry := definition.NewRegistry()
	definitions, err := definition.LoadDir(conf.Definitions.Dir)
	if err != nil {
		// broken files are reported, the valid ones are still served
		log.Error("Failed to load process definitions: %s", err)
	}
	registry.Register(definitions...)
	log.Info("Loaded %d process definitions from %s", len(definitions), conf.Definitions.Dir)

	jsRuntime := js.NewJsRuntime(appContext, conf.Script.MaxVmPoolSize, conf.Script.MinVmPoolSize)
	persistence := inmemory.NewStorage()
	options, err := engineOptions(conf, jsRuntime)
	if err != nil {
		log.Error("Failed to configure engine: %s", err)
		os.Exit(1)
	}
	options = append(options,
		bpmn.EngineWithMeter(openTelemetry.MeterProvider().Meter("zenflow")),
		bpmn.EngineWithStorage(persistence),
		bpmn.EngineWithInvoker(definition.NewScriptInvoker(registry, jsRuntime)),
	)
	engine := bpmn.NewEngine(options...)

	// Start the public API
	svr := rest.NewServer(engine, registry, persistence, conf)
	if _, err := svr.Start(); err != nil {
		log.Error("Failed to start REST server: %s", err)
		os.Exit(1)
	}

	appStop := make(chan os.Signal, 2)
	handleSigterm(appStop, appContext)

	// cleanup
	svr.Stop(appContext)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), conf.Engine.StopTimeout)
	if err := engine.StopContext(stopCtx); err != nil {
		log.Error("Engine did not stop cleanly: %s", err)
	}
	stopCancel()
	ctxCancel()
	openTelemetry.Stop(context.Background())
}

// engineOptions maps the engine section of the configuration to engine options
func engineOptions(conf config.Config, jsRuntime script.JsRuntime) ([]bpmn.EngineOption, error) {
	failurePolicy, err := bpmn.ParseFailurePolicy(conf.Engine.FailurePolicy)
	if err != nil {
		return nil, err
	}
	var choicePolicy bpmn.ChoicePolicy
	switch conf.Engine.ChoicePolicy {
	case config.ChoicePolicyFirstDeclared:
		choicePolicy = bpmn.FirstDeclaredChoice
	case config.ChoicePolicyFeel:
		choicePolicy = bpmn.ConditionChoice(feel.NewFeelRuntime())
	case config.ChoicePolicyJs:
		choicePolicy = bpmn.ConditionChoice(jsRuntime)
	default:
		return nil, fmt.Errorf("unknown choice policy %q", conf.Engine.ChoicePolicy)
	}
	return []bpmn.EngineOption{
		bpmn.EngineWithName(conf.Name),
		bpmn.EngineWithLogger(hclog.New(&hclog.LoggerOptions{
			Name:  conf.Name,
			Level: hclog.Info,
		})),
		bpmn.EngineWithFailurePolicy(failurePolicy),
		bpmn.EngineWithChoicePolicy(choicePolicy),
		bpmn.EngineWithMaxConcurrentActivities(conf.Engine.MaxConcurrentActivities),
		bpmn.EngineWithInstanceCache(conf.Engine.InstanceCacheSize, conf.Engine.InstanceCacheTTL),
		bpmn.EngineWithTokenHistory(conf.Engine.TokenHistory),
	}, nil
}

func handleSigterm(appStop chan os.Signal, ctx context.Context) {
	signal.Notify(appStop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	sig := <-appStop
	log.Infof(ctx, "Received %s. Shutting down", sig.String())
}

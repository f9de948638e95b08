// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	HttpServer  HttpServer  `yaml:"httpServer" json:"httpServer"`                     // configuration of the public REST server
	Name        string      `yaml:"name" json:"name" env:"NAME" env-default:"zenflow"` // used for OTEL as an application identifier
	Tracing     Tracing     `yaml:"tracing" json:"tracing"`
	Engine      Engine      `yaml:"engine" json:"engine"`
	Definitions Definitions `yaml:"definitions" json:"definitions"`
	Script      Script      `yaml:"script" json:"script"`
}

type HttpServer struct {
	Context string `yaml:"context" json:"context" env:"REST_API_CONTEXT" env-default:"/"`
	Addr    string `yaml:"addr" json:"addr" env:"REST_API_ADDR" env-default:":8080"`
}

type Tracing struct {
	Enabled  bool   `yaml:"enabled" json:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	Endpoint string `yaml:"endpoint" json:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Name     string `yaml:"name" json:"name" env:"OTEL_SERVICE_NAME"`
	// TransferHeaders are copied from incoming requests into span attributes
	TransferHeaders []string `yaml:"transferHeaders" json:"transferHeaders" env:"OTEL_TRANSFER_HEADERS" env-separator:","`
}

type Engine struct {
	// MaxConcurrentActivities caps activity invocations across all instances, 0 means unbounded
	MaxConcurrentActivities int `yaml:"maxConcurrentActivities" json:"maxConcurrentActivities" env:"ENGINE_MAX_CONCURRENT_ACTIVITIES" env-default:"0"`
	// FailurePolicy is FAIL_FAST or CONTINUE
	FailurePolicy string `yaml:"failurePolicy" json:"failurePolicy" env:"ENGINE_FAILURE_POLICY" env-default:"FAIL_FAST"`
	// ChoicePolicy selects the evaluator of OR split conditions: FIRST_DECLARED, FEEL or JS
	ChoicePolicy      string        `yaml:"choicePolicy" json:"choicePolicy" env:"ENGINE_CHOICE_POLICY" env-default:"FEEL"`
	InstanceCacheSize int           `yaml:"instanceCacheSize" json:"instanceCacheSize" env:"ENGINE_INSTANCE_CACHE_SIZE" env-default:"1000"`
	InstanceCacheTTL  time.Duration `yaml:"instanceCacheTTL" json:"instanceCacheTTL" env:"ENGINE_INSTANCE_CACHE_TTL" env-default:"1h"`
	// TokenHistory is the number of finished tokens each instance keeps in memory, negative keeps all of them
	TokenHistory int `yaml:"tokenHistory" json:"tokenHistory" env:"ENGINE_TOKEN_HISTORY" env-default:"1000"`
	// StopTimeout bounds how long shutdown waits for running activities
	StopTimeout time.Duration `yaml:"stopTimeout" json:"stopTimeout" env:"ENGINE_STOP_TIMEOUT" env-default:"30s"`
}

type Definitions struct {
	// Dir is scanned for *.yaml and *.yml process definitions at startup
	Dir string `yaml:"dir" json:"dir" env:"DEFINITIONS_DIR" env-default:"definitions"`
}

type Script struct {
	MaxVmPoolSize int `yaml:"maxVmPoolSize" json:"maxVmPoolSize" env:"SCRIPT_MAX_VM_POOL_SIZE" env-default:"10"`
	MinVmPoolSize int `yaml:"minVmPoolSize" json:"minVmPoolSize" env:"SCRIPT_MIN_VM_POOL_SIZE" env-default:"1"`
}

func (c Config) defaults() Config {
	if c.Tracing.Name == "" {
		c.Tracing.Name = c.Name
	}
	if c.Script.MaxVmPoolSize < c.Script.MinVmPoolSize {
		c.Script.MaxVmPoolSize = c.Script.MinVmPoolSize
	}
	return c
}

// Validate reports every invalid value at once
func (c Config) Validate() error {
	var errJoin error
	if c.Engine.MaxConcurrentActivities < 0 {
		errJoin = errors.Join(errJoin, fmt.Errorf("engine.maxConcurrentActivities must not be negative, got %d", c.Engine.MaxConcurrentActivities))
	}
	switch c.Engine.ChoicePolicy {
	case ChoicePolicyFirstDeclared, ChoicePolicyFeel, ChoicePolicyJs:
	default:
		errJoin = errors.Join(errJoin, fmt.Errorf("engine.choicePolicy %q is not one of %s, %s, %s", c.Engine.ChoicePolicy, ChoicePolicyFirstDeclared, ChoicePolicyFeel, ChoicePolicyJs))
	}
	if c.Engine.StopTimeout <= 0 {
		errJoin = errors.Join(errJoin, fmt.Errorf("engine.stopTimeout must be positive, got %s", c.Engine.StopTimeout))
	}
	if c.Script.MinVmPoolSize < 1 {
		errJoin = errors.Join(errJoin, fmt.Errorf("script.minVmPoolSize must be at least 1, got %d", c.Script.MinVmPoolSize))
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errJoin = errors.Join(errJoin, errors.New("tracing.endpoint is required when tracing is enabled"))
	}
	return errJoin
}

const (
	ChoicePolicyFirstDeclared = "FIRST_DECLARED"
	ChoicePolicyFeel          = "FEEL"
	ChoicePolicyJs            = "JS"
)

// Load reads the configuration from fileName, environment variables override the file.
// When the file does not exist the configuration is read from the environment only.
func Load(fileName string) (Config, error) {
	c := Config{}
	var err error
	if _, perr := os.Stat(fileName); errors.Is(perr, os.ErrNotExist) {
		err = cleanenv.ReadEnv(&c)
	} else {
		err = cleanenv.ReadConfig(fileName, &c)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	c = c.defaults()
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func InitConfig() Config {
	var fileName string
	confFile := os.Getenv("CONFIG_FILE")
	if confFile == "" {
		wd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		fileName = fmt.Sprintf("%s/conf.yaml", wd)
	} else {
		fileName = confFile
	}
	if _, perr := os.Stat(fileName); errors.Is(perr, os.ErrNotExist) {
		fmt.Printf("Configuration file %s not found. Reading config from ENV.\n", fileName)
	}
	c, err := Load(fileName)
	if err != nil {
		fmt.Printf("Error occurred while reading the configuration: %s\n", err)
		panic(err)
	}
	return c
}

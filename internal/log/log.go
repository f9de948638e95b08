// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package log is the application logger of zenflow, a thin layer over zap.
// The engine packages log through hclog; this logger serves the binary, the REST server and the loaders.
package log

import (
	"context"
	"sync"

	"github.com/pbinitiative/zenflow/internal/appcontext"
	"github.com/pbinitiative/zenflow/internal/profile"
	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// Init builds the logger for the current profile, DEV logs human readable debug output, other profiles log JSON
func Init() {
	var cfg zap.Config
	switch profile.Current {
	case profile.DEV:
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	SetLogger(l)
}

// SetLogger replaces the logger, mostly useful in tests together with zaptest/observer
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l.Sugar()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func withContext(ctx context.Context) *zap.SugaredLogger {
	l := get()
	if requestId, ok := appcontext.RequestIdFromContext(ctx); ok {
		l = l.With("requestId", requestId)
	}
	if instanceKey, ok := appcontext.InstanceKeyFromContext(ctx); ok {
		l = l.With("instanceKey", instanceKey)
	}
	return l
}

func Debugf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Debugf(format, args...)
}

func Info(format string, args ...any) {
	get().Infof(format, args...)
}

func Infof(ctx context.Context, format string, args ...any) {
	withContext(ctx).Infof(format, args...)
}

func Warnf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Warnf(format, args...)
}

func Error(format string, args ...any) {
	get().Errorf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Errorf(format, args...)
}

// Sync flushes buffered entries, call it before the process exits
func Sync() {
	_ = get().Sync()
}

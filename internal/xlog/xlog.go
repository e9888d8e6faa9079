// Package xlog is a thin structured-logging wrapper used only at the
// points spec §4.10 calls "logged": removal-listener failures, refresh-
// loader failures, and executor-rejection fallback notices. Everything
// else in this module is silent.
//
// Grounded on joeycumines-go-utilpkg/logiface-stumpy's
// `stumpy.L.New(stumpy.L.WithStumpy(...))` construction pattern
// (example_test.go).
package xlog

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is a structured logger producing stumpy's compact JSON lines.
// The zero value (nil *Logger) is a valid, fully silent logger: logiface's
// own Logger.canWrite check treats a nil receiver as disabled, so every
// method below is safe to call on a nil *Logger.
type Logger = logiface.Logger[*stumpy.Event]

// New builds a logger writing newline-delimited JSON to w.
func New(w io.Writer) *Logger {
	return stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(w)))
}

// Nop returns the silent default logger used when no logger option is
// configured.
func Nop() *Logger { return nil }

// ListenerFailure logs a removal-listener panic/error (spec §4.10: "logged;
// they never fail the cache operation").
func ListenerFailure(log *Logger, key string, cause string, err error) {
	log.Err().Str(`key`, key).Str(`cause`, cause).Err(err).Log(`removal listener failed`)
}

// LoaderFailure logs a refresh-after-write loader failure (spec §4.10:
// "logged, stats record a load failure, writeTime is restored").
func LoaderFailure(log *Logger, key string, err error) {
	log.Err().Str(`key`, key).Err(err).Log(`refresh loader failed`)
}

// ExecutorRejected logs an executor rejecting a task, and which fallback
// path was taken (spec §4.10: synchronous for maintenance, abort for
// refresh).
func ExecutorRejected(log *Logger, phase string, fallback string) {
	log.Warning().Str(`phase`, phase).Str(`fallback`, fallback).Log(`executor rejected task`)
}

package main

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/gbn-sim/gbn"
	"github.com/lightninglabs/gbn-sim/netsim"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/signal"
)

const Subsystem = "GSIM"

// log is replaced by setupLoggers. Until then it is disabled.
var log = build.NewSubLogger(Subsystem, nil)

// setupLoggers initializes all package-global logger variables.
func setupLoggers(root *build.SubLoggerManager, intercept signal.Interceptor) {
	genLogger := genSubLogger(root, intercept)

	log = build.NewSubLogger(Subsystem, genLogger)
	root.RegisterSubLogger(Subsystem, log)

	addSubLogger(root, gbn.Subsystem, genLogger, gbn.UseLogger)
	addSubLogger(root, netsim.Subsystem, genLogger, netsim.UseLogger)
}

// addSubLogger creates the logger of a subsystem, registers it with the root
// logger and hands it to the package.
func addSubLogger(root *build.SubLoggerManager, subsystem string,
	genLogger func(string) btclog.Logger, useLogger func(btclog.Logger)) {

	logger := build.NewSubLogger(subsystem, genLogger)
	root.RegisterSubLogger(subsystem, logger)
	useLogger(logger)
}

// genSubLogger creates a logger for a subsystem. We provide an instance of
// a signal.Interceptor to be able to shutdown in the case of a critical error.
func genSubLogger(root *build.SubLoggerManager,
	interceptor signal.Interceptor) func(string) btclog.Logger {

	// Create a shutdown function which will request shutdown from our
	// interceptor if it is listening.
	shutdown := func() {
		if !interceptor.Listening() {
			return
		}

		interceptor.RequestShutdown()
	}

	return func(tag string) btclog.Logger {
		return root.GenSubLogger(tag, shutdown)
	}
}

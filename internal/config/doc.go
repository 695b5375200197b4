/*
Package config loads the simulator's configuration: trace reader
parameters, cache settings, admission-gate selection, driver behavior, and
the ambient metrics/logging/health settings.

# Configuration sources

Precedence, highest to lowest:

	Environment variables (CACHESIM_*)
	Configuration file (YAML)
	Compiled-in defaults (NewDefault / applyDefaults)

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("cachesim.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

# Reader parameter grammar

The CLI surface accepts reader parameters as a single comma-separated
key=value string (spec §6), layered onto a TraceConfig:

	trace, err := config.ParseReaderParamString(cfg.Trace, "time-col=1,obj-id-col=2,has-header=true")

Unrecognized keys are a ConfigInvalid error; nothing is silently ignored.

# Validation

Validate rejects configurations the driver cannot run with: an unparseable
cache capacity, an unknown eviction policy or admission-gate name, an
out-of-range sampler ratio, or an invalid log level. All Validate failures
are *simerr.SimError with ErrCodeConfigInvalid and Fatal set, per the error
taxonomy in pkg/errors.
*/
package config

// Package config loads the resilience layer's configuration from YAML
// and the environment.
//
// Configuration is resolved in order: config file, .env file, process
// environment. Every field has a default, so an empty deployment works
// out of the box:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	limiter := ratelimit.NewLimiter(ratelimit.Config{
//	    Tiers:         cfg.Tiers,
//	    IdleTTL:       cfg.Limiter.IdleTTL,
//	    SweepInterval: cfg.Limiter.SweepInterval,
//	})
package config

// Package config holds the plain-struct-plus-defaults configuration
// otterctl builds from CLI flags before handing it to pkg/net, in a
// DefaultXConfig() plain-struct-plus-defaults idiom.
package config

import (
	"github.com/o9nn/otterengine/pkg/net"
	"github.com/o9nn/otterengine/pkg/parallel"
)

// Config is the CLI-facing configuration for compiling and running a
// network: how many worker threads to give the parallel engine,
// whether lightmode intermediate-blob release is on, and whether the
// logger should run at Debug level.
type Config struct {
	Threads   int
	LightMode bool
	Verbose   bool
}

// DefaultConfig mirrors the engine's own defaults: GOMAXPROCS threads
// (0 tells parallel.NewEngine to pick it), lightmode on, quiet logging.
func DefaultConfig() Config {
	return Config{
		Threads:   0,
		LightMode: true,
		Verbose:   false,
	}
}

// NetOptions translates c into the pkg/net functional options that
// configure a freshly constructed Net.
func (c Config) NetOptions() []net.Option {
	return []net.Option{
		net.WithEngine(parallel.NewEngine(c.Threads)),
		net.WithLightMode(c.LightMode),
	}
}

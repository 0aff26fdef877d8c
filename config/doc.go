// Package config holds the runtime configuration shared by the engine,
// the queue consumers and the command line tools.
package config

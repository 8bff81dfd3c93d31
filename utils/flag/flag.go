/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package
*/

package flag

import (
	"flag"
)

const (
	APIServer = "api_server"
	AdminAPI  = "admin_api"
)

var (
	IsDevelopment bool
	ServiceName   string
)

// Registration only; the entrypoint calls flag.Parse() itself. Parsing at
// init breaks test binaries, whose -test.* flags are registered after
// package inits run.
func init() {
	flag.BoolVar(&IsDevelopment, "dev", true, "set to true if the current run is for development. default value is true")
	flag.StringVar(&ServiceName, "service", APIServer, "'api_server' or 'admin_api'")
}

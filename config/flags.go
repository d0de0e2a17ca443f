package config

import "github.com/iancoleman/strcase"

// EnvVars maps a camelCase flag name to its TILEFETCH_ environment variable,
// e.g. listenAddr becomes TILEFETCH_LISTEN_ADDR.
func EnvVars(flag string) []string {
	return []string{Prefix + strcase.ToScreamingSnake(flag)}
}

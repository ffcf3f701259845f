// Package configs provides the embedded configuration template.
//
// The template is embedded at build time with go:embed so it ships in
// every distribution. 'corpusqa config init' writes it out as a
// starting point; the values mirror the defaults in internal/config.
package configs

import _ "embed"

// DefaultConfigTemplate is the commented default configuration written
// by 'corpusqa config init'.
//
//go:embed default.yaml
var DefaultConfigTemplate string

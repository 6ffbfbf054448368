// Package configs provides embedded configuration templates for kbpulse.
//
// Templates are embedded at build time so `kbpulse config init` works from
// any distribution. The hierarchy they feed (see internal/config Load):
//  1. Hardcoded defaults (config.NewConfig)
//  2. User config (~/.config/kbpulse/config.yaml)
//  3. Project config (.kbpulse.yaml)
//  4. Environment variables (KBPULSE_*)
package configs

import _ "embed"

// UserConfigTemplate is written by `kbpulse config init` to the user config
// path. It holds machine-level settings such as the listen address and
// telemetry location.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `kbpulse config init --project` to
// .kbpulse.yaml. It holds settings that travel with the knowledge base.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

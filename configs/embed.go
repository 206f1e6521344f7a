// Package configs provides embedded configuration templates for doclex.
//
// Templates are embedded at build time with go:embed so they ship in
// every distribution. They are written out by:
//   - cmd/doclex/cmd/config.go `doclex config init`           -> user config
//   - cmd/doclex/cmd/config.go `doclex config init --project` -> .doclex.yaml
//
// The configuration hierarchy (see internal/config.Load):
//  1. Hardcoded defaults (internal/config NewConfig)
//  2. User config (~/.config/doclex/config.yaml)
//  3. Project config (.doclex.yaml)
//  4. Environment variables (DOCLEX_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level
// configuration, created at ~/.config/doclex/config.yaml.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for a per-tree .doclex.yaml.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

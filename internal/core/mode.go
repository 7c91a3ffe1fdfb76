// Package core is the orchestration layer of the CLI.  It turns a
// Config into one of three modes, each of which drives a
// serverquery.Session from connect to close.
//
// Architecture layers (bottom → top):
//
//	transport  →  serverquery  →  core  →  cmd (CLI)
package core

import "context"

// Mode is one complete CLI run: exec, shell, or watch.  Each mode owns
// its session lifecycle from Open to Close.
type Mode interface {
	Run(ctx context.Context) error
}

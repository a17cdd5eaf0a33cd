// Package source implements the pluggable "what" side of a backup: adapters
// that produce a dump artifact and enumerate the files that make up the
// current snapshot of a source. Three variants are provided — Folder
// (glob-based filesystem location), Postgres (relational database dumper),
// and ContainerExec (container-exec dumper) — grounded respectively on
// galeone/bacup's services/folders.rs, services/postgresql.rs, and
// services/docker.rs.
//
// Construction of every adapter validates its preconditions eagerly (the
// glob base exists, the database is reachable, the container runtime
// cooperates). A construction failure is fatal only for backups that
// reference that source — the daemon logs it and continues wiring the rest
// of the configuration.
package source

import (
	"context"
	"errors"

	"github.com/galeone/bacup/internal/dump"
)

// ErrDump is wrapped by every error a Dump call returns, so callers and logs
// can identify the failing phase regardless of adapter type.
var ErrDump = errors.New("source: dump failed")

// Source is implemented by every "what" adapter. Dump may invoke an
// external process and must return a *dump.Handle whose Close deletes any
// file it created. Enumerate returns an ordered list of absolute local
// paths that currently make up the source's snapshot — the pipeline relies
// on this list sharing a single common prefix (see pipeline.CommonPrefix).
type Source interface {
	Dump(ctx context.Context) (*dump.Handle, error)
	Enumerate() ([]string, error)
	// Name is the symbolic name the operator gave this source in the
	// configuration document (the part after the dot in "folders.home").
	Name() string
}

package source

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/jackc/pgx/v5"

	"github.com/galeone/bacup/internal/dump"
)

// Postgres is the RelationalDumper source variant for PostgreSQL. The
// reachability and query-permission precondition (spec.md §4.4
// "Construction validates preconditions eagerly") is checked with
// github.com/jackc/pgx/v5 — grounded on other_examples/manifests/orgrim-pg_back,
// a Postgres-focused backup tool in the example pack — replacing the
// original's pg_isready/psql subprocess probes with a single library call.
// The dump itself still shells out to pg_dump: pgx has no dump-file
// equivalent, and pg_dump is the dump tool the original wraps too.
type Postgres struct {
	name     string
	username string
	dbName   string
	host     string
	port     int
	pgDump   string
}

// NewPostgres validates the connection and the database's existence by
// opening a throwaway connection and issuing a one-row existence query,
// then locates pg_dump on PATH. Host defaults to "localhost" and port to
// 5432 when zero-valued, per spec.md §6.
func NewPostgres(ctx context.Context, name, username, dbName, host string, port int) (*Postgres, error) {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 5432
	}

	connString := fmt.Sprintf("postgres://%s@%s:%d/%s", username, host, port, dbName)
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("source %q: unable to reach postgres at %s:%d: %w", name, host, port, err)
	}
	defer conn.Close(ctx)

	var exists bool
	const existsQuery = `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`
	if err := conn.QueryRow(ctx, existsQuery, dbName).Scan(&exists); err != nil {
		return nil, fmt.Errorf("source %q: unable to query pg_database: %w", name, err)
	}
	if !exists {
		return nil, fmt.Errorf("source %q: database %q does not exist or user %q cannot see it",
			name, dbName, username)
	}

	pgDump, err := exec.LookPath("pg_dump")
	if err != nil {
		return nil, fmt.Errorf("source %q: pg_dump not found on PATH: %w", name, err)
	}

	return &Postgres{
		name:     name,
		username: username,
		dbName:   dbName,
		host:     host,
		port:     port,
		pgDump:   pgDump,
	}, nil
}

func (p *Postgres) Name() string { return p.name }

// dumpPath is the fixed location pg_dump writes to, per spec.md §4.4:
// "<source-name>-dump.sql" in the working directory.
func (p *Postgres) dumpPath() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, fmt.Sprintf("%s-dump.sql", p.name)), nil
}

// Dump runs pg_dump --no-password and returns a Handle owning the resulting
// file. The caller (the pipeline) is responsible for calling Close once the
// tick's uploads are done, which removes the file.
func (p *Postgres) Dump(ctx context.Context) (*dump.Handle, error) {
	dest, err := p.dumpPath()
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: %v", ErrDump, p.name, err)
	}

	args := []string{
		"--host", p.host,
		"--port", fmt.Sprintf("%d", p.port),
		"--username", p.username,
		"--dbname", p.dbName,
		"--no-password",
		"-f", dest,
	}
	cmd := exec.CommandContext(ctx, p.pgDump, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: pg_dump failed: %v\n%s", ErrDump, p.name, err, out)
	}
	return dump.New(dest), nil
}

// Enumerate returns the dump artifact's path if it exists, else an empty
// list — per spec.md §4.4.
func (p *Postgres) Enumerate() ([]string, error) {
	dest, err := p.dumpPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dest); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return []string{dest}, nil
}

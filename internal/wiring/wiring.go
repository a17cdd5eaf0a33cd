// Package wiring turns a decoded config.Document into running adapters and
// registers every backup with the scheduler. Grounded on galeone/bacup's
// main.rs wiring sequence (read config → build every source/destination →
// build every backup job → hand off to the scheduler).
package wiring

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/galeone/bacup/internal/config"
	"github.com/galeone/bacup/internal/destination"
	"github.com/galeone/bacup/internal/pipeline"
	"github.com/galeone/bacup/internal/scheduler"
	"github.com/galeone/bacup/internal/source"
)

// Wire constructs every adapter named in doc, builds a pipeline.Backup for
// each [backup.*] section, and registers it with sched. Adapter construction
// failures are logged (in buildSources/buildDestinations) and make the
// referencing backup(s) unschedulable without aborting the rest of the
// configuration — spec.md §7's AdapterConstructionFailed treatment, which is
// "fatal for referencing backup; daemon continues for others", not fatal for
// the process. Wire itself returns an error — and only then is it
// startup-fatal — when a backup's `what` or `where` names a source or
// destination that the document never defines at all (spec.md §8 scenario
// 5), which is a ConfigInvalid typo rather than a transient dependency
// outage, or when sched.Register rejects a backup's cadence.
func Wire(ctx context.Context, doc *config.Document, sched *scheduler.Scheduler, logger *zap.Logger) error {
	sources, sourceFailures := buildSources(ctx, doc, logger)
	destinations, destFailures := buildDestinations(ctx, doc, logger)

	knownSources := knownNames(sources, sourceFailures)
	knownDestinations := knownNames(destinations, destFailures)

	var fatalErrs []string
	skipped := 0
	registered := 0

	names := make([]string, 0, len(doc.Backup))
	for name := range doc.Backup {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b := doc.Backup[name]

		if _, known := knownSources[b.What]; !known {
			fatalErrs = append(fatalErrs, fmt.Sprintf(
				"backup %q: unknown source %q (available: %s)",
				name, b.What, joinNames(availableNames(sources, sourceFailures))))
			continue
		}
		if _, known := knownDestinations[b.Where]; !known {
			fatalErrs = append(fatalErrs, fmt.Sprintf(
				"backup %q: unknown destination %q (available: %s)",
				name, b.Where, joinNames(availableNames(destinations, destFailures))))
			continue
		}

		src, ok := sources[b.What]
		if !ok {
			logger.Error("backup unschedulable: source adapter failed to construct",
				zap.String("backup", name), zap.String("source", b.What))
			skipped++
			continue
		}
		dst, ok := destinations[b.Where]
		if !ok {
			logger.Error("backup unschedulable: destination adapter failed to construct",
				zap.String("backup", name), zap.String("destination", b.Where))
			skipped++
			continue
		}

		backup := pipeline.Backup{
			Name:        name,
			Source:      src,
			Destination: dst,
			RemotePath:  b.RemotePath,
			Compress:    b.Compress,
			KeepLast:    b.KeepLast,
		}
		if err := sched.Register(backup, b.When); err != nil {
			fatalErrs = append(fatalErrs, fmt.Sprintf("backup %q: %v", name, err))
			continue
		}
		registered++
	}

	logger.Info("wiring complete",
		zap.Int("backups_registered", registered),
		zap.Int("backups_skipped", skipped),
		zap.Int("backups_invalid", len(fatalErrs)),
	)

	if len(fatalErrs) > 0 {
		return fmt.Errorf("wiring: %d backup(s) reference undefined names or invalid schedules:\n  %s",
			len(fatalErrs), strings.Join(fatalErrs, "\n  "))
	}
	return nil
}

// knownNames merges adapters that constructed successfully with ones that
// were defined in the document but failed construction, so a lookup against
// it answers "does the document define this name at all" — as opposed to a
// lookup directly against the built map, which conflates "never defined"
// with "defined but unreachable".
func knownNames[T any](built map[string]T, attempted []string) map[string]struct{} {
	known := make(map[string]struct{}, len(built)+len(attempted))
	for name := range built {
		known[name] = struct{}{}
	}
	for _, name := range attempted {
		known[name] = struct{}{}
	}
	return known
}

// availableNames merges the adapters that actually constructed with the
// names that were attempted but failed, so an operator debugging a typo'd
// reference sees every name the document defines, not just the healthy ones.
func availableNames[T any](built map[string]T, attempted []string) []string {
	seen := make(map[string]struct{}, len(built)+len(attempted))
	var names []string
	for name := range built {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for _, name := range attempted {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name+" (construction failed)")
		}
	}
	sort.Strings(names)
	return names
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func buildSources(ctx context.Context, doc *config.Document, logger *zap.Logger) (map[string]source.Source, []string) {
	sources := make(map[string]source.Source)
	var failed []string

	for name, sec := range doc.Folders {
		key := "folders." + name
		f, err := source.NewFolder(name, sec.Pattern)
		if err != nil {
			logger.Error("source construction failed", zap.String("source", key), zap.Error(err))
			failed = append(failed, key)
			continue
		}
		sources[key] = f
	}

	for name, sec := range doc.Postgres {
		key := "postgres." + name
		p, err := source.NewPostgres(ctx, name, sec.Username, sec.DBName, sec.Host, sec.Port)
		if err != nil {
			logger.Error("source construction failed", zap.String("source", key), zap.Error(err))
			failed = append(failed, key)
			continue
		}
		sources[key] = p
	}

	for name, sec := range doc.Docker {
		key := "docker." + name
		d, err := source.NewContainerExec(ctx, name, sec.ContainerName, sec.Command)
		if err != nil {
			logger.Error("source construction failed", zap.String("source", key), zap.Error(err))
			failed = append(failed, key)
			continue
		}
		sources[key] = d
	}

	return sources, failed
}

func buildDestinations(ctx context.Context, doc *config.Document, logger *zap.Logger) (map[string]destination.Destination, []string) {
	destinations := make(map[string]destination.Destination)
	var failed []string

	for name, sec := range doc.AWS {
		key := "aws." + name
		b, err := destination.NewObjectBucket(ctx, name, sec.Bucket, sec.Region, sec.Endpoint, sec.AccessKey, sec.SecretKey)
		if err != nil {
			logger.Error("destination construction failed", zap.String("destination", key), zap.Error(err))
			failed = append(failed, key)
			continue
		}
		destinations[key] = b
	}

	for name, sec := range doc.SSH {
		key := "ssh." + name
		s, err := destination.NewSecureShell(name, sec.Host, sec.Port, sec.Username, sec.PrivateKey)
		if err != nil {
			logger.Error("destination construction failed", zap.String("destination", key), zap.Error(err))
			failed = append(failed, key)
			continue
		}
		destinations[key] = s
	}

	for name, sec := range doc.Localhost {
		key := "localhost." + name
		l, err := destination.NewLocalDirectory(name, sec.Path)
		if err != nil {
			logger.Error("destination construction failed", zap.String("destination", key), zap.Error(err))
			failed = append(failed, key)
			continue
		}
		destinations[key] = l
	}

	for name, sec := range doc.Git {
		key := "git." + name
		v, err := destination.NewVersionControl(ctx, name, sec.Repository, sec.LocalPath, sec.PrivateKey,
			sec.Branch, sec.Host, sec.Port, sec.Username)
		if err != nil {
			logger.Error("destination construction failed", zap.String("destination", key), zap.Error(err))
			failed = append(failed, key)
			continue
		}
		destinations[key] = v
	}

	return destinations, failed
}

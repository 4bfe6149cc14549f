package archive

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"github.com/zeptools/gw-certs/certs"
	"github.com/zeptools/gw-certs/db/kvdb"
	"github.com/zeptools/gw-certs/jobs"
	"github.com/zeptools/gw-certs/locks/keyonlylocks"
	"github.com/zeptools/gw-certs/rw"
	"github.com/zeptools/gw-certs/schedjobs"
)

var ErrRequesterBusy = errors.New("archive: requester archive is being assembled")

// NoItemsMessage is reported when no document could be added
const NoItemsMessage = "no valid certificates found to add to the archive"

type Conf struct {
	OutputDir    string        `json:"output_dir"`
	TempDir      string        `json:"temp_dir"` // staging root, os.TempDir() when empty
	RetentionStr string        `json:"retention"`
	Retention    time.Duration `json:"-"`
}

const DefaultRetention = time.Hour

func (c *Conf) Normalize() error {
	if c.RetentionStr != "" {
		d, err := time.ParseDuration(c.RetentionStr)
		if err != nil {
			return fmt.Errorf("retention: %w", err)
		}
		c.Retention = d
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.OutputDir == "" {
		return errors.New("archive output_dir is required")
	}
	return nil
}

// Outcome of one assembly, persisted on the job by its caller
type Outcome struct {
	Path      string
	Name      string
	URL       string
	ItemCount int
	Errors    []string
}

// Deferrer schedules deferred work, see schedjobs.Scheduler
type Deferrer interface {
	AddOneTimeJob(job *schedjobs.OneTimeJob) error
}

// Assembler packs the documents of a finished job into one zip per request.
// Only the previous archive of the same requester is ever deleted.
type Assembler struct {
	Conf      Conf
	KV        kvdb.Client // previous archive per requester
	Publisher Publisher
	Deferrer  Deferrer // nil: no deferred cleanup

	locks sync.Map // requester hash -> struct{}
	now   func() time.Time
}

func NewAssembler(conf Conf, kv kvdb.Client, publisher Publisher, deferrer Deferrer) *Assembler {
	return &Assembler{Conf: conf, KV: kv, Publisher: publisher, Deferrer: deferrer, now: time.Now}
}

func (a *Assembler) registryKey(requesterHash string) string {
	return kvdb.Key(a.KV, "certarchives", "requester", requesterHash)
}

// Assemble writes the successful documents of job into a new archive and publishes it.
// Per-document problems become Outcome.Errors; a returned error means nothing usable was produced.
func (a *Assembler) Assemble(ctx context.Context, job *jobs.Job) (Outcome, error) {
	acquired, ok := keyonlylocks.AcquireLocks(&a.locks, []string{job.RequesterHash})
	if !ok {
		return Outcome{}, ErrRequesterBusy
	}
	defer keyonlylocks.ReleaseLocks(&a.locks, acquired)

	now := a.now()
	staging := filepath.Join(a.Conf.TempDir, StagingDirName(now))
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return Outcome{}, certs.NewError(certs.KindArchiveWriteFailure, "", fmt.Errorf("staging dir: %w", err))
	}
	name := ArchiveName(job.RequesterHash, now)
	stagedPath := filepath.Join(staging, name)

	count, size, lines, err := a.writeZip(ctx, stagedPath, job.SuccessfulResults(), now)
	if err != nil {
		_ = os.RemoveAll(staging)
		return Outcome{}, certs.NewError(certs.KindArchiveWriteFailure, "", err)
	}
	out := Outcome{Errors: lines}
	if count == 0 {
		_ = os.RemoveAll(staging)
		out.Errors = append(out.Errors, NoItemsMessage)
		log.Printf("[WARN][ARCHIVE] job %s: %s", job.ID, NoItemsMessage)
		return out, nil
	}

	if err = os.MkdirAll(a.Conf.OutputDir, 0o755); err != nil {
		_ = os.RemoveAll(staging)
		return Outcome{}, certs.NewError(certs.KindArchiveWriteFailure, "", err)
	}
	final := filepath.Join(a.Conf.OutputDir, name)
	if err = os.Rename(stagedPath, final); err != nil {
		_ = os.RemoveAll(staging)
		return Outcome{}, certs.NewError(certs.KindArchiveWriteFailure, "", fmt.Errorf("move archive: %w", err))
	}
	a.replacePrevious(ctx, job.RequesterHash, final)

	url, err := a.Publisher.Publish(ctx, final, name)
	if err != nil {
		return Outcome{}, fmt.Errorf("publish %s: %w", name, err)
	}
	out.Path, out.Name, out.URL, out.ItemCount = final, name, url, count
	log.Printf("[INFO][ARCHIVE] job %s: %s with %d documents (%d bytes)", job.ID, name, count, size)
	a.scheduleCleanup(job.RequesterHash, final, staging, now)
	return out, nil
}

// writeZip adds results in sub-chunks of jobs.BatchSize and returns the entry count, archive size and error lines
func (a *Assembler) writeZip(ctx context.Context, path string, results []certs.RenderResult, now time.Time) (int, int64, []string, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()
	cw := rw.NewCountWriter(f)
	zw := zip.NewWriter(cw)

	var (
		count int
		lines []string
		used  = make(map[string]bool, len(results))
	)
	for start := 0; start < len(results); start += jobs.BatchSize {
		if err = ctx.Err(); err != nil {
			return 0, 0, nil, err
		}
		for _, r := range results[start:min(start+jobs.BatchSize, len(results))] {
			data, err := os.ReadFile(r.DocumentPath)
			if err != nil {
				failed := certs.RenderResult{RecordID: r.RecordID, Reason: certs.KindArchiveWriteFailure, Message: err.Error()}
				lines = append(lines, failed.ErrorLine())
				log.Printf("[WARN][ARCHIVE] record %s: %v", r.RecordID, err)
				continue
			}
			w, err := zw.CreateHeader(&zip.FileHeader{
				Name:     uniqueName(EntryName(r, now), used),
				Method:   zip.Deflate,
				Modified: now,
			})
			if err != nil {
				return 0, 0, nil, err
			}
			if _, err = w.Write(data); err != nil {
				return 0, 0, nil, err
			}
			count++
		}
	}
	if err = zw.Close(); err != nil {
		return 0, 0, nil, err
	}
	if err = f.Close(); err != nil {
		return 0, 0, nil, err
	}
	return count, cw.BytesWritten(), lines, nil
}

// replacePrevious deletes the archive last recorded for the requester and records final.
// Caller holds the requester lock.
func (a *Assembler) replacePrevious(ctx context.Context, requesterHash string, final string) {
	key := a.registryKey(requesterHash)
	prev, found, err := a.KV.Get(ctx, key)
	if err != nil {
		log.Printf("[WARN][ARCHIVE] registry lookup for %s: %v", requesterHash, err)
	}
	if found && prev != "" && prev != final {
		if err = os.Remove(prev); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[WARN][ARCHIVE] removing previous archive %s: %v", prev, err)
		}
		if err = a.Publisher.Unpublish(ctx, filepath.Base(prev)); err != nil {
			log.Printf("[WARN][ARCHIVE] unpublishing %s: %v", filepath.Base(prev), err)
		}
	}
	if err = a.KV.Set(ctx, key, final, 2*a.Conf.Retention); err != nil {
		log.Printf("[WARN][ARCHIVE] registry update for %s: %v", requesterHash, err)
	}
}

func (a *Assembler) scheduleCleanup(requesterHash, path, staging string, now time.Time) {
	if a.Deferrer == nil {
		return
	}
	err := a.Deferrer.AddOneTimeJob(&schedjobs.OneTimeJob{
		ID:       "archive-cleanup:" + filepath.Base(path),
		ExecTime: now.Add(a.Conf.Retention),
		Task: func(ctx context.Context) error {
			return a.Cleanup(ctx, requesterHash, path, staging)
		},
	})
	if err != nil {
		log.Printf("[WARN][ARCHIVE] cannot schedule cleanup of %s: %v", path, err)
	}
}

// Cleanup removes an expired archive and its staging dir, and forgets it if it is still the requester's latest
func (a *Assembler) Cleanup(ctx context.Context, requesterHash, path, staging string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.Publisher.Unpublish(gctx, filepath.Base(path))
	})
	g.Go(func() error {
		return os.RemoveAll(staging)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("cleanup %s: %w", filepath.Base(path), err)
	}

	acquired, ok := keyonlylocks.AcquireLocks(&a.locks, []string{requesterHash})
	if !ok {
		return ErrRequesterBusy
	}
	defer keyonlylocks.ReleaseLocks(&a.locks, acquired)
	key := a.registryKey(requesterHash)
	current, found, err := a.KV.Get(ctx, key)
	if err != nil {
		return err
	}
	if found && current == path {
		if _, err = a.KV.Delete(ctx, key); err != nil {
			return err
		}
	}
	log.Printf("[INFO][ARCHIVE] %s expired and removed", filepath.Base(path))
	return nil
}

// Sweep removes archives and staging dirs older than Retention, whoever scheduled them.
// It catches what a restart dropped from the cleanup queue. Returns the number of entries removed.
func (a *Assembler) Sweep(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-a.Conf.Retention)
	targets := []struct {
		dir     string
		pattern string
		archive bool
	}{
		{a.Conf.OutputDir, "certificates_*.zip", true},
		{a.Conf.TempDir, "temp_certificates_*", false},
	}
	n := 0
	var errs []error
	for _, tg := range targets {
		matches, err := filepath.Glob(filepath.Join(tg.dir, tg.pattern))
		if err != nil {
			return n, err
		}
		for _, m := range matches {
			if err = ctx.Err(); err != nil {
				return n, err
			}
			info, err := os.Stat(m)
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err = os.RemoveAll(m); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
			if !tg.archive {
				continue
			}
			if err = a.Publisher.Unpublish(ctx, filepath.Base(m)); err != nil {
				errs = append(errs, fmt.Errorf("unpublish %s: %w", filepath.Base(m), err))
			}
		}
	}
	return n, errors.Join(errs...)
}

// SweepCronJob runs Sweep every minute
func (a *Assembler) SweepCronJob() *schedjobs.CronJob {
	return schedjobs.EveryMinute("archive-sweep", func(ctx context.Context) error {
		n, err := a.Sweep(ctx)
		if n > 0 {
			log.Printf("[INFO][ARCHIVE] swept %d expired archives and staging dirs", n)
		}
		return err
	})
}

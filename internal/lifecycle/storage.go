package lifecycle

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/metrics"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

const partSuffix = ".part"

// EnforceStorageBudget checks that current usage plus outstanding reservations plus
// incomingBytes fits the budget. When it does not, orphaned partial files are swept and,
// if enabled, the least recently modified finished videos are evicted. If usage is still
// over budget afterwards it fails with DISK_FULL.
func (c *Coordinator) EnforceStorageBudget(ctx context.Context, incomingBytes int64) (port.BudgetReport, error) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	return c.enforce(ctx, incomingBytes)
}

// enforce runs one budget check. c.sweepMu must be held.
func (c *Coordinator) enforce(ctx context.Context, incomingBytes int64) (port.BudgetReport, error) {
	rep := port.BudgetReport{Budget: c.opts.StorageBudget}
	if c.opts.StorageBudget <= 0 {
		return rep, nil
	}
	rep.Reserved = c.reserved()
	incomingBytes += rep.Reserved

	usage, err := c.usage()
	if err != nil {
		return rep, model.Errorf(model.CodeDiskFull, "measure storage usage: %w", err)
	}
	rep.UsageBefore, rep.UsageAfter = usage, usage
	metrics.StorageUsageBytes.Set(float64(usage))
	if usage+incomingBytes <= c.opts.StorageBudget {
		return rep, nil
	}

	logger.Warnf(ctx, "storage usage %d + %d bytes exceeds budget %d, sweeping", usage, incomingBytes, c.opts.StorageBudget)
	rep.Swept = true

	removed, freed := c.sweepOrphans(ctx)
	rep.OrphansRemoved = removed
	rep.FreedBytes += freed
	usage -= freed

	if usage+incomingBytes > c.opts.StorageBudget && c.opts.EvictVariants {
		evicted, freed := c.evict(ctx, usage+incomingBytes-c.opts.StorageBudget)
		rep.Evicted = evicted
		rep.FreedBytes += freed
		usage -= freed
	}

	rep.UsageAfter = usage
	metrics.StorageUsageBytes.Set(float64(usage))
	if usage+incomingBytes > c.opts.StorageBudget {
		return rep, model.Errorf(model.CodeDiskFull, "storage usage %d + %d bytes exceeds budget %d after cleanup",
			usage, incomingBytes, c.opts.StorageBudget)
	}
	return rep, nil
}

// SweepOrphans removes partial files older than the grace period that no active job owns,
// and with SweepSources finished uploads no job is transcoding any more.
func (c *Coordinator) SweepOrphans(ctx context.Context) (int, int64) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	return c.sweepOrphans(ctx)
}

func (c *Coordinator) usage() (int64, error) {
	var total int64
	for _, dir := range []string{c.opts.UploadsDir, c.opts.StreamsDir} {
		if dir == "" {
			continue
		}
		n, err := dirSize(dir)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (c *Coordinator) sweepOrphans(ctx context.Context) (int, int64) {
	cutoff := c.now().Add(-c.opts.OrphanGrace)
	var removed int
	var freed int64

	isPart := func(name string) bool { return strings.HasSuffix(name, partSuffix) }
	sweep := func(root string, match func(name string) bool, owner func(path string) string) {
		if root == "" {
			return
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !match(d.Name()) {
				return nil
			}
			info, err := d.Info()
			if err != nil || info.ModTime().After(cutoff) {
				return nil
			}
			if c.isOwned(owner(path)) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				logger.Warnf(ctx, "could not remove orphan %q: %v", path, err)
				return nil
			}
			logger.Warnf(ctx, "removed orphaned file %q (%d bytes)", path, info.Size())
			removed++
			freed += info.Size()
			return nil
		})
	}

	uploads := isPart
	if c.opts.SweepSources {
		uploads = func(string) bool { return true }
	}
	// <uploads>/<uploadId>.<ext>[.part]
	sweep(c.opts.UploadsDir, uploads, func(path string) string {
		name := filepath.Base(path)
		if i := strings.IndexByte(name, '.'); i > 0 {
			return name[:i]
		}
		return name
	})
	// <streams>/<videoId>/<quality>.mp4.part
	sweep(c.opts.StreamsDir, isPart, func(path string) string {
		return filepath.Base(filepath.Dir(path))
	})

	if freed > 0 {
		metrics.StorageFreedBytesTotal.WithLabelValues("orphan").Add(float64(freed))
	}
	return removed, freed
}

// isOwned reports whether id is an active job, an active job's video or an upload
// holding a reservation.
func (c *Coordinator) isOwned(id string) bool {
	c.mu.Lock()
	_, job := c.jobs[id]
	_, video := c.videos[id]
	c.mu.Unlock()
	if job || video {
		return true
	}
	c.resMu.Lock()
	defer c.resMu.Unlock()
	_, ok := c.reservations[id]
	return ok
}

type variantDir struct {
	videoID string
	path    string
	size    int64
	modTime time.Time
	partial bool
}

// evict removes whole video directories under streams, least recently modified first,
// until need bytes were freed. Directories of active videos, directories still holding a
// partial output and directories touched within the grace period are kept.
func (c *Coordinator) evict(ctx context.Context, need int64) ([]string, int64) {
	entries, err := os.ReadDir(c.opts.StreamsDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warnf(ctx, "could not list streams dir: %v", err)
		}
		return nil, 0
	}

	recent := c.now().Add(-c.opts.OrphanGrace)
	var candidates []variantDir
	for _, e := range entries {
		if !e.IsDir() || c.isOwned(e.Name()) {
			continue
		}
		vd, err := inspectVariantDir(filepath.Join(c.opts.StreamsDir, e.Name()))
		if err != nil || vd.partial || vd.modTime.After(recent) {
			continue
		}
		vd.videoID = e.Name()
		candidates = append(candidates, vd)
	}
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].modTime.Before(candidates[k].modTime)
	})

	var evicted []string
	var freed int64
	for _, vd := range candidates {
		if freed >= need {
			break
		}
		if err := os.RemoveAll(vd.path); err != nil {
			logger.Warnf(ctx, "could not evict variants of video %s: %v", vd.videoID, err)
			continue
		}
		logger.Warnf(ctx, "evicted variants of video %s (%d bytes)", vd.videoID, vd.size)
		evicted = append(evicted, vd.videoID)
		freed += vd.size
		if c.opts.OnEvict != nil {
			if err := c.opts.OnEvict(ctx, vd.videoID); err != nil {
				logger.Warnf(ctx, "eviction hook for video %s failed: %v", vd.videoID, err)
			}
		}
	}
	if freed > 0 {
		metrics.StorageFreedBytesTotal.WithLabelValues("eviction").Add(float64(freed))
	}
	return evicted, freed
}

func inspectVariantDir(path string) (variantDir, error) {
	vd := variantDir{path: path}
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(vd.modTime) {
			vd.modTime = info.ModTime()
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), partSuffix) {
			vd.partial = true
		}
		vd.size += info.Size()
		return nil
	})
	return vd, err
}

// dirSize returns the total size of regular files under path; a missing path is empty.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}

// RunJanitor sweeps orphans and checks the budget every interval until ctx ends.
func (c *Coordinator) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, freed := c.SweepOrphans(ctx); n > 0 {
				logger.Infof(ctx, "janitor removed %d orphaned file(s), %d bytes", n, freed)
			}
			if _, err := c.EnforceStorageBudget(ctx, 0); err != nil {
				logger.Warnf(ctx, "janitor: %v", err)
			}
		}
	}
}

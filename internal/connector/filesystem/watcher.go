package filesystem

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/starford/arbor/internal/checksum"
	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/graph"
)

// Change kinds reported by Watch.
const (
	KindCreated = "external-created"
	KindUpdated = "external-updated"
	KindRemoved = "external-removed"
)

const debounce = 200 * time.Millisecond

// Publisher receives the change sets detected by Watch.
type Publisher func(ctx context.Context, changes connector.ChangeSet)

// Watch observes base, the directory holding one sub-directory per
// workspace, and publishes the changes it sees until ctx is cancelled.
// Events are batched over a short debounce window; file writes that leave
// the content unchanged are dropped. Writes made through the connector are
// reported as well, since the watcher cannot tell them apart.
//
// New directories created at runtime are added to the watch list. fsnotify
// reports a rename on the old path only; the new path arrives as a create.
func Watch(ctx context.Context, source, base string, logger *slog.Logger, publish Publisher) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, base); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", base))

	var (
		pending []connector.Change
		timer   *time.Timer
		flushCh <-chan time.Time
		sums    = make(map[string]string)
	)

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			flushCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}
	flush := func() {
		if len(pending) == 0 {
			return
		}
		publish(ctx, connector.ChangeSet{
			Source:      source,
			Transaction: uuid.New(),
			CommittedAt: time.Now(),
			Changes:     pending,
		})
		pending = nil
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			flush()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(ev.Name), tempPrefix) {
				continue
			}
			ws, path, ok := locate(base, ev.Name)
			if !ok {
				continue
			}

			var kind string
			switch {
			case ev.Op&fsnotify.Create != 0:
				info, statErr := os.Stat(ev.Name)
				if statErr != nil {
					continue
				}
				if info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				} else if sum, sumErr := checksum.File(ev.Name); sumErr == nil {
					sums[ev.Name] = sum
				}
				kind = KindCreated

			case ev.Op&fsnotify.Write != 0:
				sum, sumErr := checksum.File(ev.Name)
				if sumErr != nil {
					continue
				}
				if sums[ev.Name] == sum {
					continue
				}
				sums[ev.Name] = sum
				kind = KindUpdated

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(sums, ev.Name)
				kind = KindRemoved

			default:
				continue
			}

			logger.Debug("watcher: change",
				slog.String("workspace", ws),
				slog.String("path", path.String()),
				slog.String("kind", kind))
			pending = append(pending, connector.Change{Kind: kind, Workspace: ws, Path: path})
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// locate maps an absolute file name under base to a workspace and node path.
func locate(base, name string) (string, graph.Path, bool) {
	rel, err := filepath.Rel(base, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", graph.Path{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	segs := make([]graph.Segment, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if graph.Name(p).Validate() != nil {
			return "", graph.Path{}, false
		}
		segs = append(segs, graph.NewSegment(graph.Name(p), 1))
	}
	return parts[0], graph.NewPath(segs...), true
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

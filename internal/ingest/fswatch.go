package ingest

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher layers fsnotify over Watcher as a latency optimization: an
// fs event triggers an out-of-cycle pollOnce rather than replacing the
// poll loop, so the hash-gate and atomic-replace logic always runs
// (contract stays poll-based).
type FSWatcher struct {
	*Watcher
	notify *fsnotify.Watcher
}

// NewFSWatcher wraps w with fsnotify watches on every configured folder.
func NewFSWatcher(w *Watcher) (*FSWatcher, error) {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, folder := range w.opt.Folders {
		_ = notify.Add(folder)
	}
	return &FSWatcher{Watcher: w, notify: notify}, nil
}

// Run polls on the normal interval and additionally triggers an
// out-of-cycle pollOnce whenever fsnotify reports a write or create.
func (fw *FSWatcher) Run(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.notify.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					_ = fw.pollOnce(ctx)
				}
			case <-fw.notify.Errors:
			}
		}
	}()
	defer fw.notify.Close()
	return fw.Watcher.Run(ctx)
}

package file

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// watcher observes a function directory for external modifications and
// invalidates the Backend's in-process read cache on change, the same
// hot-reload pattern GoClode's engine uses to re-read its SQLite file:
// fsnotify drives invalidation, not the actual read, which always happens
// through the normal locked file path.
//
// If the environment cannot create additional filesystem watches, newWatcher
// returns an error, which New ignores, and the Backend degrades to poll-only
// mode (spec §4.4).
type watcher struct {
	w        *fsnotify.Watcher
	onChange func(name string)
	closeMu  sync.Mutex
	closed   bool
}

func newWatcher(dir string, onChange func(name string)) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	wt := &watcher{w: fw, onChange: onChange}
	go wt.loop()
	return wt, nil
}

func (w *watcher) loop() {
	for {
		select {
		case event, ok := <-w.w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.onChange(event.Name)
			}
		case _, ok := <-w.w.Errors:
			if !ok {
				return
			}
			// Errors are not actionable here; the poll-based WaitUntilReady
			// path remains correct regardless of watch health.
		}
	}
}

func (w *watcher) Close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.w.Close()
}

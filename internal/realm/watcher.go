package realm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 100 * time.Millisecond

// Watcher monitors realm directories and reports the ids of cards whose
// files changed.
type Watcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	realms    []Realm
	onChange  func(ctx context.Context, ids []string) error
	logger    *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewWatcher creates a watcher for realms. onChange receives the changed card
// ids, sorted; a card whose files were removed is reported as well.
func NewWatcher(realms []Realm, debounce time.Duration, logger *zap.Logger, onChange func(ctx context.Context, ids []string) error) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{
		watcher:   watcher,
		debouncer: NewDebouncer(debounce),
		realms:    realms,
		onChange:  onChange,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
	return w, nil
}

// Start watches every realm directory and its card directories until ctx is
// done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.debouncer.SetCallback(func(ids []string) {
		if err := w.onChange(ctx, ids); err != nil {
			w.logger.Error("failed to handle card changes", zap.Strings("cards", ids), zap.Error(err))
		}
	})

	for _, r := range w.realms {
		if err := w.add(r.Directory); err != nil {
			return err
		}
		entries, err := os.ReadDir(r.Directory)
		if err != nil {
			return fmt.Errorf("failed to read realm %s: %w", r.Repository, err)
		}
		for _, entry := range entries {
			if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
				if err := w.add(filepath.Join(r.Directory, entry.Name())); err != nil {
					return err
				}
			}
		}
	}

	w.wg.Add(1)
	go w.watch(ctx)
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	select {
	case <-w.stopChan:
		return nil
	default:
		close(w.stopChan)
	}

	w.wg.Wait()
	w.debouncer.Stop()
	return w.watcher.Close()
}

func (w *Watcher) add(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	w.logger.Debug("watching directory", zap.String("dir", dir))
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-ctx.Done():
			return

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	for _, r := range w.realms {
		id, ok := r.CardID(event.Name)
		if !ok {
			continue
		}
		if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(r.Directory) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.add(event.Name); err != nil {
					w.logger.Warn("failed to watch new card directory", zap.String("dir", event.Name), zap.Error(err))
				}
			}
		}
		w.logger.Debug("card file changed", zap.String("card", id), zap.String("file", event.Name), zap.String("op", event.Op.String()))
		w.debouncer.Add(id)
		return
	}
}

// Debouncer collects keys and reports them once no new key arrived for its
// duration.
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	keys     map[string]struct{}
	mutex    sync.Mutex
	callback func([]string)
	stopped  bool
}

// NewDebouncer creates a debouncer that waits duration.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		keys:     make(map[string]struct{}),
	}
}

// Add records a key and restarts the wait.
func (d *Debouncer) Add(key string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.stopped {
		return
	}

	d.keys[key] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.keys) == 0 || d.callback == nil {
		d.mutex.Unlock()
		return
	}
	keys := make([]string, 0, len(d.keys))
	for key := range d.keys {
		keys = append(keys, key)
	}
	d.keys = make(map[string]struct{})
	callback := d.callback
	d.mutex.Unlock()

	sort.Strings(keys)
	callback(keys)
}

// SetCallback sets the function receiving the collected keys.
func (d *Debouncer) SetCallback(callback func([]string)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Stop discards pending keys.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.stopped = true
	d.keys = make(map[string]struct{})
}

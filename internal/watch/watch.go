// Package watch monitors the files behind loaded images and flags
// images whose backing file changed on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/atoll-io/atoll/internal/retry"
	"github.com/atoll-io/atoll/internal/symfile"
)

// fingerprintRetry rides out the window where a toolchain has renamed
// a temp file over the binary and the old path briefly reads ENOENT.
var fingerprintRetry = retry.Config{
	MaxRetries:     4,
	InitialBackoff: 15 * time.Millisecond,
	MaxBackoff:     120 * time.Millisecond,
}

// Watcher marks images stale when their backing files change. Events
// are debounced per path, so tools that write in bursts trigger a
// single check.
type Watcher struct {
	log      zerolog.Logger
	fsw      *fsnotify.Watcher
	debounce time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tracked map[string][]*symfile.Image
	timers  map[string]*time.Timer

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a watcher. Debounce is how long a path must stay quiet
// before its images are checked.
func New(log zerolog.Logger, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		log:      log.With().Str("component", "watch").Logger(),
		fsw:      fsw,
		debounce: debounce,
		ctx:      ctx,
		cancel:   cancel,
		tracked:  make(map[string][]*symfile.Image),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Track watches the file behind img.
func (w *Watcher) Track(img *symfile.Image) error {
	path := img.Path()
	if path == "" {
		return fmt.Errorf("watch: image %s has no backing file", img.Name())
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.tracked[path]) == 0 {
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: %s: %w", path, err)
		}
	}
	w.tracked[path] = append(w.tracked[path], img)
	w.log.Debug().Str("path", path).Str("image", img.Name()).Msg("tracking")
	return nil
}

// Start begins delivering events. Close must be called to release the
// watcher.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.schedule(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

// schedule arms or re-arms the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tracked[path]; !ok {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.check(path) })
}

// check re-fingerprints path and marks its images stale on mismatch.
// A file that stays missing or unreadable counts as changed.
func (w *Watcher) check(path string) {
	w.mu.Lock()
	images := append([]*symfile.Image(nil), w.tracked[path]...)
	delete(w.timers, path)
	w.mu.Unlock()

	// Builds replace binaries by renaming a temp file over the old
	// name. A check can land inside that window, so short ENOENT
	// spells are retried before the file counts as gone.
	var fp uint64
	err := retry.Do(w.ctx, fingerprintRetry, func() error {
		var ferr error
		fp, ferr = symfile.FingerprintFile(path)
		return ferr
	}, func(err error) bool {
		return errors.Is(err, fs.ErrNotExist)
	})
	if w.ctx.Err() != nil {
		return
	}
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("fingerprint failed")
		fp = 0
	} else {
		// A rename-over takes the inotify watch with it, so re-arm
		// for the replacement file.
		if aerr := w.fsw.Add(path); aerr != nil && !errors.Is(aerr, fsnotify.ErrClosed) {
			w.log.Warn().Err(aerr).Str("path", path).Msg("re-watch failed")
		}
		w.log.Debug().Str("path", path).Msg("fingerprint checked")
	}
	for _, img := range images {
		if fp == 0 || fp != img.Fingerprint() {
			img.MarkStale()
			w.log.Warn().Str("path", path).Str("image", img.Name()).Msg("symbol file changed on disk")
		}
	}
}

// Close shuts the watcher down and waits for the event loop to drain.
// In-flight checks are abandoned.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		err = w.fsw.Close()
		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		w.timers = make(map[string]*time.Timer)
		w.mu.Unlock()
		w.wg.Wait()
	})
	return err
}

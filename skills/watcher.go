package skills

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-discovers skills when their directories change, so a host
// application can resume sessions with a fresh skill set without
// restarting. Events are debounced: editors typically fire several write
// events per save.
type Watcher struct {
	dirs     []string
	onChange func([]Skill, error)
	debounce time.Duration

	fs     *fsnotify.Watcher
	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	done   chan struct{}
}

// Watch starts watching dirs and invokes onChange with the re-discovered
// skill set after each change settles. The callback also receives
// discovery errors (for example a half-saved SKILL.md); the watcher keeps
// running after them.
func Watch(dirs []string, onChange func([]Skill, error)) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("skills: start watcher: %w", err)
	}
	w := &Watcher{
		dirs:     dirs,
		onChange: onChange,
		debounce: 200 * time.Millisecond,
		fs:       fs,
		done:     make(chan struct{}),
	}
	for _, dir := range dirs {
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return nil, fmt.Errorf("skills: watch %s: %w", dir, err)
		}
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.schedule()
			}
		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
		}
	}
}

// schedule arms (or re-arms) the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		w.onChange(Discover(w.dirs...))
	})
}

// Close stops the watcher and cancels any pending debounce callback.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.fs.Close()
	<-w.done
	return err
}

package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Notifier signals when something changes under the watched directories so
// the daemon can reconcile before the next tick. It never triggers
// evaluation by itself.
type Notifier struct {
	watcher   *fsnotify.Watcher
	recursive bool
	logger    *zap.SugaredLogger

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewNotifier(dirs []string, recursive bool, logger *zap.SugaredLogger) (*Notifier, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	n := &Notifier{
		watcher:   fw,
		recursive: recursive,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, dir := range dirs {
		n.add(dir)
	}
	n.wg.Add(1)
	go n.loop()
	return n, nil
}

// Wake delivers at most one pending signal; bursts of events collapse.
func (n *Notifier) Wake() <-chan struct{} {
	return n.wake
}

func (n *Notifier) Close() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		err = n.watcher.Close()
		n.wg.Wait()
	})
	return err
}

func (n *Notifier) add(dir string) {
	if err := n.watcher.Add(dir); err != nil {
		n.logger.Warnw("cannot watch directory for changes", "path", dir, "error", err)
		return
	}
	if !n.recursive {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, de := range entries {
		if de.IsDir() && !strings.HasPrefix(de.Name(), ".") {
			n.add(filepath.Join(dir, de.Name()))
		}
	}
}

func (n *Notifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if n.recursive && event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					n.add(event.Name)
				}
			}
			select {
			case n.wake <- struct{}{}:
			default:
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Warnw("file notification error", "error", err)
		}
	}
}

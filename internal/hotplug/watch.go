package hotplug

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventSource yields paths of newly created device nodes until closed.
type EventSource interface {
	Events() <-chan string
	Close() error
}

// DeviceWatcher reports files created in a device directory such as /dev.
type DeviceWatcher struct {
	w    *fsnotify.Watcher
	out  chan string
	done chan struct{}
	once sync.Once
}

// WatchDevices starts watching dir for created entries.
func WatchDevices(dir string) (*DeviceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}
	dw := &DeviceWatcher{
		w:    w,
		out:  make(chan string, 16),
		done: make(chan struct{}),
	}
	go dw.loop()
	return dw, nil
}

func (d *DeviceWatcher) loop() {
	defer close(d.out)
	for {
		select {
		case ev, ok := <-d.w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			select {
			case d.out <- ev.Name:
			case <-d.done:
				return
			}
		case err, ok := <-d.w.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("device watcher error")
		case <-d.done:
			return
		}
	}
}

// Events delivers created paths. It is closed after Close.
func (d *DeviceWatcher) Events() <-chan string { return d.out }

func (d *DeviceWatcher) Close() error {
	var err error
	d.once.Do(func() {
		close(d.done)
		err = d.w.Close()
	})
	return err
}

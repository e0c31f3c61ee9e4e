package lockmon

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// renamePairWindow is how long a Rename waits for the Create of its new name
const renamePairWindow = 25 * time.Millisecond

// FSNotifySource converts fsnotify notifications for a directory into Events.
// fsnotify reports a rename as Rename(old) followed by Create(new); the two
// are paired into one OpRename when they arrive within renamePairWindow.
type FSNotifySource struct {
	watcher *fsnotify.Watcher
	events  chan Event
	logger  *slog.Logger

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// NewFSNotifySource starts watching dir. A nil logger discards output.
func NewFSNotifySource(dir string, logger *slog.Logger) (*FSNotifySource, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	s := &FSNotifySource{
		watcher: fsw,
		events:  make(chan Event, 256),
		logger:  logger,
		closeCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop()
	return s, nil
}

// Events returns the event channel. It is closed by Close.
func (s *FSNotifySource) Events() <-chan Event {
	return s.events
}

// Close stops watching and closes the event channel
func (s *FSNotifySource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.watcher.Close()
		s.wg.Wait()
		close(s.events)
	})
	return err
}

func (s *FSNotifySource) processLoop() {
	defer s.wg.Done()

	var pendingRename string
	var pairTimer *time.Timer
	var pairC <-chan time.Time

	flush := func() {
		if pendingRename == "" {
			return
		}
		s.send(Event{Op: OpRename, OldPath: pendingRename})
		pendingRename = ""
		pairC = nil
	}

	for {
		select {
		case <-s.closeCh:
			return

		case <-pairC:
			flush()

		case fsEvent, ok := <-s.watcher.Events:
			if !ok {
				flush()
				return
			}

			if fsEvent.Has(fsnotify.Create) && pendingRename != "" {
				s.send(Event{Op: OpRename, OldPath: pendingRename, Path: fsEvent.Name})
				pendingRename = ""
				pairC = nil
				continue
			}
			flush()

			switch {
			case fsEvent.Has(fsnotify.Rename):
				pendingRename = fsEvent.Name
				if pairTimer == nil {
					pairTimer = time.NewTimer(renamePairWindow)
				} else {
					pairTimer.Reset(renamePairWindow)
				}
				pairC = pairTimer.C
			case fsEvent.Has(fsnotify.Create):
				s.send(Event{Op: OpCreate, Path: fsEvent.Name})
			case fsEvent.Has(fsnotify.Remove):
				s.send(Event{Op: OpRemove, Path: fsEvent.Name})
			case fsEvent.Has(fsnotify.Write), fsEvent.Has(fsnotify.Chmod):
				s.send(Event{Op: OpChange, Path: fsEvent.Name})
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("lock watcher error", "error", err)
		}
	}
}

// send delivers ev unless the source is closing
func (s *FSNotifySource) send(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closeCh:
	}
}

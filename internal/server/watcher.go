package server

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDelay = 200 * time.Millisecond

// startTemplateWatcher reloads the page templates when files in the
// templates directory change.
func (s *FreqyServer) startTemplateWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(s.templates.dir); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher

	go s.watchTemplates(watcher)

	s.logger.WithField("templates_dir", s.templates.dir).Info("Template watcher started")
	return nil
}

// watchTemplates selects on watcher channels and debounces reloads.
func (s *FreqyServer) watchTemplates(watcher *fsnotify.Watcher) {
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isTemplateFile(event.Name) || event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			pending = time.After(reloadDelay)

		case <-pending:
			pending = nil
			if err := s.templates.load(); err != nil {
				s.logger.WithError(err).Error("Template reload failed, keeping previous templates")
				continue
			}
			s.logger.Info("Templates reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Error("Template watcher error")
		}
	}
}

// stopTemplateWatcher closes the watcher (idempotent).
func (s *FreqyServer) stopTemplateWatcher() {
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}

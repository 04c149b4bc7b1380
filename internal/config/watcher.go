package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch reloads the configuration when the backing file is edited outside the
// server (e.g. with a text editor while the show is running). The store's own
// saves are recognized and skipped. Blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors that save via
	// rename-and-replace swap the inode, which detaches a file-level watch
	// after the first save.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	log.Info().Str("path", s.path).Msg("Watching config file")

	target := filepath.Clean(s.path)

	// Editors often fire several write events per save; collapse them.
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(250*time.Millisecond, func() {
				if err := s.reload(); err != nil {
					log.Error().Err(err).Msg("Config reload failed")
					return
				}
				log.Info().Str("event", event.Op.String()).Msg("Config file changed on disk")
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Config watcher error")
		}
	}
}

package region

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the set whenever the regions file changes. It blocks
// until ctx is done. Editors often replace files instead of writing in
// place, so we watch the parent directory and match on the filename.
func (s *Set) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(s.filename)
	if err := w.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(s.filename)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-w.Events:
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				logger.Errorf("reloading regions: %s", err)
			}
		case err := <-w.Errors:
			logger.Errorf("watching regions file: %s", err)
		}
	}
}

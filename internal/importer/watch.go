package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ImportedSuffix is appended to a workbook once it has been imported.
const ImportedSuffix = ".imported"

// Watch imports every .xlsx file already in dir and then each one that
// appears, renaming it with ImportedSuffix afterwards. It blocks until ctx
// is cancelled.
func (im *Importer) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	im.logger.Info("import watcher started", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && isWorkbook(e.Name()) {
			im.consume(ctx, filepath.Join(dir, e.Name()))
		}
	}

	// writes arrive in bursts; a file is imported once it has been quiet for debounce
	pending := map[string]*time.Timer{}
	ready := make(chan string, 16)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			im.logger.Info("import watcher stopped", "dir", dir)
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isWorkbook(e.Name) || !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
				continue
			}
			if t, ok := pending[e.Name]; ok {
				t.Reset(debounce)
				continue
			}
			name := e.Name
			pending[name] = time.AfterFunc(debounce, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})
		case name := <-ready:
			delete(pending, name)
			im.consume(ctx, name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("import watcher error", "error", err)
		}
	}
}

func (im *Importer) consume(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	report, err := im.ImportFile(ctx, path)
	if err != nil {
		im.logger.Error("import failed", "file", path, "error", err)
		return
	}
	for _, re := range report.Errors {
		im.logger.Warn("import row rejected", "file", path, "row", re.Row, "error", re.Message)
	}
	if err := os.Rename(path, path+ImportedSuffix); err != nil {
		im.logger.Error("rename imported file", "file", path, "error", err)
	}
}

func isWorkbook(name string) bool {
	base := filepath.Base(name)
	return strings.EqualFold(filepath.Ext(base), ".xlsx") && !strings.HasPrefix(base, "~$")
}

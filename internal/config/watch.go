package config

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "thermopool/pkg/logx"
)

// Watch re-parses the config file whenever it changes on disk and invokes
// onChange with the new config. Invalid configs are logged and skipped; the
// previously committed config stays in effect.
//
// Editors often produce several write/rename events per save, so events are
// debounced and content-hashed to avoid redundant publishes. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, path string, log logx.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: rename-and-replace saves drop the watch on the
	// file itself.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var lastHash uint64
	if b, err := os.ReadFile(path); err == nil {
		lastHash = hashBytes(b)
	}

	const debounce = 250 * time.Millisecond
	var pending *time.Timer
	var pendingC <-chan time.Time

	reload := func() {
		b, err := os.ReadFile(path)
		if err != nil {
			log.Warn("config reload: read failed", logx.String("path", path), logx.Err(err))
			return
		}
		h := hashBytes(b)
		if h == lastHash {
			return
		}
		cfg, err := Parse(path, b)
		if err != nil {
			log.Warn("config reload: parse failed, keeping previous config", logx.String("path", path), logx.Err(err))
			return
		}
		lastHash = h
		log.Info("config reloaded", logx.String("path", path))
		onChange(cfg)
	}

	base := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(debounce)
				pendingC = pending.C
			} else {
				if !pending.Stop() {
					select {
					case <-pending.C:
					default:
					}
				}
				pending.Reset(debounce)
			}
		case <-pendingC:
			pending = nil
			pendingC = nil
			reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", logx.Err(err))
		}
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

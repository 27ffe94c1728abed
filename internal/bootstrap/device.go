package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dsmrreader/dsmr-bootstrap/internal/config"
)

// devicePerms allows the unprivileged application user to read the
// P1 telegram stream from the serial adapter.
const devicePerms = 0o666

// FixDevicePermissions relaxes the permission bits of the configured serial
// device. An absent device is not an error: network-socket deployments have
// no serial adapter attached at all.
func FixDevicePermissions(cfg config.DeviceConfig, log *zap.SugaredLogger) error {
	if cfg.Path == "" {
		return nil
	}

	if _, err := os.Stat(cfg.Path); err != nil {
		if os.IsNotExist(err) {
			log.Infof("serial device %s not present, skipping permission fix", cfg.Path)
			return nil
		}
		return fmt.Errorf("checking device %s: %w", cfg.Path, err)
	}

	if err := os.Chmod(cfg.Path, devicePerms); err != nil {
		return fmt.Errorf("relaxing permissions on %s: %w", cfg.Path, err)
	}
	log.Infof("relaxed permissions on %s", cfg.Path)
	return nil
}

// WaitForDevice blocks until the device node appears or the timeout expires.
// USB serial adapters can enumerate after the container starts, so an
// operator may opt in to waiting instead of silently skipping the device.
func WaitForDevice(ctx context.Context, path string, timeout time.Duration) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating device watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	// The device may have appeared between the stat and the watch.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("device %s did not appear within %s", path, timeout)
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("device watcher closed")
			}
			if event.Name == path && event.Op.Has(fsnotify.Create) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("device watcher closed")
			}
			return fmt.Errorf("device watcher: %w", err)
		}
	}
}

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// WatchLogLevel applies observability.log_level from the YAML file at path
// to logger whenever the file changes, until ctx is done. The directory is
// watched rather than the file so that editors replacing the file by rename
// are still seen.
func WatchLogLevel(ctx context.Context, path string, logger *logrus.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				applyLogLevel(abs, logger)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Config watcher error")
			}
		}
	}()

	return nil
}

func applyLogLevel(path string, logger *logrus.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.WithError(err).Warn("Failed to read config file for reload")
		return
	}

	var file struct {
		Observability struct {
			LogLevel string `yaml:"log_level"`
		} `yaml:"observability"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		logger.WithError(err).Warn("Failed to parse config file for reload")
		return
	}

	name := strings.TrimSpace(file.Observability.LogLevel)
	if name == "" {
		return
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		logger.WithField("log_level", name).Warn("Ignoring unknown log level")
		return
	}
	if level != logger.GetLevel() {
		logger.SetLevel(level)
		logger.WithField("log_level", level.String()).Info("Log level changed")
	}
}

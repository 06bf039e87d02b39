package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	applog "github.com/ent0n29/botcall/internal/log"
)

const watchDebounce = 200 * time.Millisecond

// FileStore persists settings as YAML. Writes are atomic; an external edit of
// the file is picked up by Watch.
type FileStore struct {
	path   string
	logger zerolog.Logger

	mu     sync.RWMutex
	cached *Settings

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

func NewFileStore(path string) (*FileStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}
	return &FileStore{path: abs, logger: applog.WithComponent("settings")}, nil
}

// Path returns the absolute file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (Settings, error) {
	s.mu.RLock()
	if s.cached != nil {
		out := *s.cached
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	loaded, err := s.read()
	if err != nil {
		return Settings{}, err
	}
	s.mu.Lock()
	s.cached = &loaded
	s.mu.Unlock()
	return loaded, nil
}

func (s *FileStore) Save(_ context.Context, creds Credentials) error {
	current, err := s.read()
	if err != nil {
		return err
	}
	next := current.apply(creds)

	data, err := yaml.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending settings file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			s.logger.Debug().Err(err).Msg("cleanup pending settings file")
		}
	}()
	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace settings file: %w", err)
	}

	s.mu.Lock()
	s.cached = &next
	s.mu.Unlock()
	return nil
}

// Watch refreshes the cache when the file changes on disk, until ctx is done
// or Close is called.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("create settings dir: %w", err)
	}
	// The directory is watched because atomic replaces swap the inode.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch settings dir: %w", err)
	}

	s.watchMu.Lock()
	s.watcher = watcher
	s.watchMu.Unlock()

	s.logger.Info().
		Str("event", "settings.watcher_started").
		Str("path", s.path).
		Msg("watching settings file")

	s.wg.Add(1)
	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *FileStore) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer s.wg.Done()
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, s.refresh)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Str("event", "settings.watcher_error").Msg("settings watcher error")
		}
	}
}

func (s *FileStore) refresh() {
	loaded, err := s.read()
	if err != nil {
		s.mu.Lock()
		s.cached = nil
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("event", "settings.reload_failed").Msg("settings reload failed")
		return
	}
	s.mu.Lock()
	s.cached = &loaded
	s.mu.Unlock()
	s.logger.Info().
		Str("event", "settings.reloaded").
		Str("endpoint_url", loaded.EndpointURL).
		Bool("has_api_key", loaded.APIKey != "").
		Msg("settings reloaded from disk")
}

func (s *FileStore) read() (Settings, error) {
	out := Defaults()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return Settings{}, fmt.Errorf("decode settings %s: %w", s.path, err)
	}
	return out, nil
}

func (s *FileStore) Close() error {
	s.watchMu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.watchMu.Unlock()

	var err error
	if watcher != nil {
		err = watcher.Close()
	}
	s.wg.Wait()
	return err
}

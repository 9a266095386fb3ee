// Package store persists the download manifest and user preferences.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"spokestack-tray/internal/domain"
)

// Versioned keys. Bumping a suffix abandons the previous layout.
const (
	KeyDownloads = "spokestack-tray-downloads-v1"
	KeySilent    = "spokestack-tray-silent-v1"
	KeyMinimized = "spokestack-tray-minimized-v1"
)

// Preferences are the user toggles kept across launches.
type Preferences struct {
	Silent    bool `json:"silent"`
	Minimized bool `json:"minimized"`
}

// KV is a badger-backed key-value store.
type KV struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens or creates a store under dir. An empty dir keeps everything in memory.
func Open(dir string, logger *zap.Logger) (*KV, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &KV{db: db, logger: logger}, nil
}

// Close releases the underlying database.
func (s *KV) Close() error {
	return s.db.Close()
}

// LoadManifest reads the download manifest, returning an empty one when unset.
func (s *KV) LoadManifest() (domain.Manifest, error) {
	var manifest domain.Manifest
	found, err := s.getJSON(KeyDownloads, &manifest)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if !found {
		return domain.Manifest{}, nil
	}
	return manifest, nil
}

// SaveManifest replaces the persisted download manifest.
func (s *KV) SaveManifest(manifest domain.Manifest) error {
	if manifest == nil {
		manifest = domain.Manifest{}
	}
	if err := s.setJSON(KeyDownloads, manifest); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// Silent reports whether speech output is muted. Missing or unreadable
// values count as false.
func (s *KV) Silent() bool {
	return s.flag(KeySilent)
}

// SetSilent persists the silent toggle.
func (s *KV) SetSilent(silent bool) error {
	return s.setJSON(KeySilent, silent)
}

// Minimized reports whether the tray starts minimized.
func (s *KV) Minimized() bool {
	return s.flag(KeyMinimized)
}

// SetMinimized persists the minimized toggle.
func (s *KV) SetMinimized(minimized bool) error {
	return s.setJSON(KeyMinimized, minimized)
}

// Preferences returns both toggles.
func (s *KV) Preferences() Preferences {
	return Preferences{Silent: s.Silent(), Minimized: s.Minimized()}
}

// SavePreferences writes both toggles in one transaction.
func (s *KV) SavePreferences(p Preferences) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for key, value := range map[string]bool{KeySilent: p.Silent, KeyMinimized: p.Minimized} {
			data, err := json.Marshal(value)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(key), data); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *KV) flag(key string) bool {
	var value bool
	if _, err := s.getJSON(key, &value); err != nil {
		s.logger.Warn("read preference", zap.String("key", key), zap.Error(err))
		return false
	}
	return value
}

func (s *KV) getJSON(key string, dst any) (bool, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *KV) setJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

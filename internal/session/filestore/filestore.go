// Package filestore persists the session as a sealed file under the user's
// config directory.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cc "github.com/and161185/nftmarket/internal/crypto/clientcrypto"
	"github.com/and161185/nftmarket/internal/model"
	"github.com/and161185/nftmarket/internal/session"
)

const (
	keyFile  = "device.key"
	saltFile = "kdf.salt"
)

// Store implements session.Persister on the local filesystem.
type Store struct {
	dir    string
	master []byte
}

var _ session.Persister = (*Store)(nil)

// DefaultDir returns $XDG_CONFIG_HOME/nftmarket or ~/.config/nftmarket.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "nftmarket")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "nftmarket")
}

// New opens dir. With an empty passphrase a random per-install key is kept in
// dir; otherwise the key is derived from the passphrase and a stored salt.
func New(dir, passphrase string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	var (
		master []byte
		err    error
	)
	if passphrase == "" {
		master, err = loadOrCreate(filepath.Join(dir, keyFile), cc.KeyLen)
	} else {
		var salt []byte
		salt, err = loadOrCreate(filepath.Join(dir, saltFile), cc.SaltLen)
		if err == nil {
			master = cc.DeriveMasterKey([]byte(passphrase), salt)
		}
	}
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, master: master}, nil
}

func loadOrCreate(p string, n int) ([]byte, error) {
	b, err := os.ReadFile(p)
	if err == nil {
		if len(b) != n {
			return nil, fmt.Errorf("%s: unexpected length %d", filepath.Base(p), len(b))
		}
		return b, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	b, err = cc.Rand(n)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return nil, err
	}
	return b, nil
}

// Path returns the file holding the named record.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name+".bin") }

func (s *Store) Load(_ context.Context, name string) (model.Session, error) {
	blob, err := os.ReadFile(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return model.Session{}, session.ErrNoRecord
	}
	if err != nil {
		return model.Session{}, err
	}
	key, err := cc.DeriveRecordKey(s.master, name)
	if err != nil {
		return model.Session{}, err
	}
	pt, err := cc.Open(key, []byte(name), blob)
	if err != nil {
		return model.Session{}, fmt.Errorf("open %s: %w", name, err)
	}
	var rec model.Session
	if err := json.Unmarshal(pt, &rec); err != nil {
		return model.Session{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return rec, nil
}

func (s *Store) Save(_ context.Context, name string, rec model.Session) error {
	pt, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key, err := cc.DeriveRecordKey(s.master, name)
	if err != nil {
		return err
	}
	blob, err := cc.Seal(key, []byte(name), pt)
	if err != nil {
		return err
	}
	tmp := s.Path(name) + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path(name))
}

func (s *Store) Clear(_ context.Context, name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

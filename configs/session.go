package configs

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/gregriff/parley/internal/session"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenSessionKV opens the key-value backend the credential store persists
// to. The returned closer releases it.
func OpenSessionKV(s Settings) (session.KV, io.Closer, error) {
	path := s.SessionPath

	switch s.SessionBackend {
	case "", "file":
		if path == "" {
			dir, err := GetStateDir()
			if err != nil {
				return nil, nil, err
			}
			path = filepath.Join(dir, "session.toml")
		}
		return session.NewFileKV(path), nopCloser{}, nil
	case "sqlite":
		if path == "" {
			dir, err := GetStateDir()
			if err != nil {
				return nil, nil, err
			}
			path = filepath.Join(dir, "session.db")
		}
		kv, err := session.OpenSQLiteKV(path)
		if err != nil {
			return nil, nil, err
		}
		return kv, kv, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q (want file or sqlite)", s.SessionBackend)
	}
}

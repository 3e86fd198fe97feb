package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gagmm/claude-code-to-openai/internal/credential"
)

const (
	credentialSuffix = ".cred.json"
	statsFileName    = "stats.json"
)

// FileStore keeps one JSON document per credential under a directory. It is
// the zero-dependency alternative to the SQLite backend.
type FileStore struct {
	dir string
}

// OpenFileStore creates the directory if needed and returns the store.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) credentialPath(label string) string {
	return filepath.Join(s.dir, url.PathEscape(label)+credentialSuffix)
}

func (s *FileStore) Get(_ context.Context, label string) (*credential.Credential, error) {
	data, err := os.ReadFile(s.credentialPath(label))
	if os.IsNotExist(err) {
		return nil, credential.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return decodeCredential(data)
}

func (s *FileStore) Put(_ context.Context, cred *credential.Credential) error {
	if err := cred.Normalize(); err != nil {
		return err
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	if err = writeFileAtomic(s.credentialPath(cred.Label), data); err != nil {
		return fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, label string) error {
	err := os.Remove(s.credentialPath(label))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return nil
}

func (s *FileStore) List(_ context.Context) ([]*credential.Credential, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	var out []*credential.Credential
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), credentialSuffix) {
			continue
		}
		data, errRead := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if errRead != nil {
			continue
		}
		cred, errDecode := decodeCredential(data)
		if errDecode != nil {
			continue
		}
		out = append(out, cred)
	}
	return out, nil
}

func (s *FileStore) GetStats(_ context.Context) (*credential.UsageStats, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, statsFileName))
	if os.IsNotExist(err) {
		return &credential.UsageStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	stats := &credential.UsageStats{}
	if err = json.Unmarshal(data, stats); err != nil {
		return &credential.UsageStats{}, nil
	}
	return stats, nil
}

func (s *FileStore) PutStats(_ context.Context, stats *credential.UsageStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	if err = writeFileAtomic(filepath.Join(s.dir, statsFileName), data); err != nil {
		return fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

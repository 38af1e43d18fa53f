package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TokenKey is the entry the token is stored under.
const TokenKey = "herd_auth_token"

// DefaultSessionFile is the file name used beside the CLI config.
const DefaultSessionFile = "session.yaml"

// FilePersister stores the token in a YAML key-value file. Other keys in the file
// are preserved. The file is written with mode 0600.
type FilePersister struct {
	Path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

// Load returns the stored token, or "" when the file or key is absent.
func (f *FilePersister) Load() (string, error) {
	values, err := f.read()
	if err != nil {
		return "", err
	}
	token, _ := values[TokenKey].(string)
	return token, nil
}

// Save stores token, replacing any previous one.
func (f *FilePersister) Save(token string) error {
	values, err := f.read()
	if err != nil {
		return err
	}
	if token == "" {
		delete(values, TokenKey)
	} else {
		values[TokenKey] = token
	}
	return f.write(values)
}

// Clear removes the token. The file is deleted when nothing else is left in it.
func (f *FilePersister) Clear() error {
	values, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := values[TokenKey]; !ok {
		return nil
	}
	delete(values, TokenKey)
	if len(values) == 0 {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unable to remove session file: %w", err)
		}
		return nil
	}
	return f.write(values)
}

func (f *FilePersister) read() (map[string]any, error) {
	values := make(map[string]any)
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read session file: %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unable to parse session file: %w", err)
	}
	if values == nil {
		values = make(map[string]any)
	}
	return values, nil
}

func (f *FilePersister) write(values map[string]any) error {
	if f.Path == "" {
		return errors.New("session file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("unable to create session directory: %w", err)
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("unable to encode session: %w", err)
	}
	if err := os.WriteFile(f.Path, data, os.FileMode(0600)); err != nil {
		return fmt.Errorf("unable to write session file: %w", err)
	}
	return nil
}

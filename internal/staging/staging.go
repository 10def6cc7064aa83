// Package staging keeps already ingested sbd files on local disk, one
// directory per device:
//
//	<root>/<device-id>/<device-id>_<rest>.sbd
//
// Files are written whole and never appended to. A Store owns its root; two
// stores (or processes) writing the same root need external coordination.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const Ext = ".sbd"

// ErrInvalidName is returned for names that cannot be staged. No filesystem
// operation is attempted for such names.
var ErrInvalidName = errors.New("invalid staged file name")

type Store struct {
	root string
	temp bool
}

// Open returns a store rooted at an existing directory.
func Open(root string) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("'%s' is not a directory", root)
	}
	return &Store{root: root}, nil
}

// NewTemp returns a store rooted at a fresh temporary directory that Close
// removes.
func NewTemp() (*Store, error) {
	root, err := os.MkdirTemp("", "sbd-staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	log.Debug().Str("root", root).Msg("Created temporary staging directory")
	return &Store{root: root, temp: true}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Close removes the root of a temporary store. It is a no-op for stores
// opened with Open.
func (s *Store) Close() error {
	if !s.temp {
		return nil
	}
	return os.RemoveAll(s.root)
}

// DeviceID returns the device identifier encoded in name: everything before
// the first underscore.
func DeviceID(name string) (string, error) {
	i := strings.IndexByte(name, '_')
	if i < 0 {
		return "", fmt.Errorf("%w: can't extract device id from '%s'", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, Ext) {
		return "", fmt.Errorf("%w: '%s' does not end with %s", ErrInvalidName, name, Ext)
	}
	if i == 0 || strings.ContainsAny(name, `/\`) || name[:i] == ".." {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}
	return name[:i], nil
}

// Valid reports whether name can be staged.
func Valid(name string) bool {
	_, err := DeviceID(name)
	return err == nil
}

func (s *Store) path(name string) (string, error) {
	device, err := DeviceID(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, device, name), nil
}

// Has reports whether name has been staged.
func (s *Store) Has(name string) (bool, error) {
	path, err := s.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// List returns the paths of the sbd files staged for device. A device that
// has never been staged yields an error wrapping fs.ErrNotExist.
func (s *Store) List(device string) ([]string, error) {
	dir := filepath.Join(s.root, device)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), Ext) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// ListAll returns the staged files of every device.
func (s *Store) ListAll() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := s.List(e.Name())
		if err != nil {
			return nil, err
		}
		paths = append(paths, files...)
	}
	return paths, nil
}

// Devices returns the device identifiers that have staged files.
func (s *Store) Devices() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var devices []string
	for _, e := range entries {
		if e.IsDir() {
			devices = append(devices, e.Name())
		}
	}
	return devices, nil
}

// Put stages content under name, replacing any earlier file of that name.
// The file is written to a temporary name and renamed into place so readers
// never observe a partial file.
func (s *Store) Put(name string, content []byte) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create device directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return nil
}

// Remove unstages name. Removing a name that was never staged is not an
// error.
func (s *Store) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to unstage %s: %w", name, err)
	}
	return nil
}

// Get returns the staged content of name.
func (s *Store) Get(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

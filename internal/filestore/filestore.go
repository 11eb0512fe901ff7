// Package filestore persists report attachments on local disk, one
// subdirectory per department. Stored names are collision-free: uploads with
// identical display names each get a distinct name, and the mapping back to
// the display name is kept by the caller, not here.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound means the department+filename pair does not resolve to a file.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidDepartment means the department is not one of the enumerated set.
	ErrInvalidDepartment = errors.New("unknown department")
	// ErrInvalidName means the filename is empty or carries path segments.
	ErrInvalidName = errors.New("invalid filename")
)

// Store is a department-partitioned attachment store rooted at one directory.
type Store struct {
	root  string
	depts map[string]bool
}

// New creates the root and one subdirectory per department.
func New(root string, departments []string) (*Store, error) {
	s := &Store{root: root, depts: make(map[string]bool, len(departments))}
	for _, d := range departments {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir for %s: %w", d, err)
		}
		s.depts[d] = true
	}
	return s, nil
}

func (s *Store) deptDir(department string) (string, error) {
	if !s.depts[department] {
		return "", ErrInvalidDepartment
	}
	return filepath.Join(s.root, department), nil
}

// checkName rejects anything that is not a plain filename. Stored names are
// opaque lookup keys, never paths.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\") {
		return ErrInvalidName
	}
	return nil
}

// Save writes the upload under a collision-free name derived from desiredName
// and returns the stored name. O_EXCL guards the small window between picking
// a name and creating the file when two saves race.
func (s *Store) Save(department, desiredName string, r io.Reader) (string, error) {
	dir, err := s.deptDir(department)
	if err != nil {
		return "", err
	}
	desired := SanitizeName(desiredName)
	for {
		existing, err := listNames(dir)
		if err != nil {
			return "", fmt.Errorf("list %s uploads: %w", department, err)
		}
		name, ok := NextFreeName(existing, desired)
		if !ok {
			return "", fmt.Errorf("no free name for %q in %s", desired, department)
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue // lost the race, pick again
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := io.Copy(f, r); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("close %s: %w", name, err)
		}
		return name, nil
	}
}

// Delete removes a stored file. Deleting a file that is already gone is a
// success; only real IO failures are reported.
func (s *Store) Delete(department, storedName string) error {
	dir, err := s.deptDir(department)
	if err != nil {
		return err
	}
	if err := checkName(storedName); err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, storedName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", storedName, err)
	}
	return nil
}

// Resolve returns the absolute path of a stored file for download.
func (s *Store) Resolve(department, storedName string) (string, error) {
	dir, err := s.deptDir(department)
	if err != nil {
		return "", err
	}
	if err := checkName(storedName); err != nil {
		return "", err
	}
	path := filepath.Join(dir, storedName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat %s: %w", storedName, err)
	}
	return filepath.Abs(path)
}

func listNames(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	return names, nil
}

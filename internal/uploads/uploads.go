package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	fallbackName = "upload"
)

var (
	ErrInvalidNetwork = errors.New("invalid network name")

	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// Store places uploaded reports under <root>/<network>/<filename>.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("cannot create upload root, %w", err)
	}

	return &Store{root: root}, nil
}

// NetworkDir returns the directory of a network, creating it on first use.
func (s *Store) NetworkDir(network string) (string, error) {
	name := SafeFilename(network)
	if name == fallbackName && network != fallbackName {
		return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, network)
	}

	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("cannot create network directory, %w", err)
	}

	return dir, nil
}

// Upload is a report written to a private temporary file of its network directory. Path
// belongs to this upload alone until Commit moves it to its final name.
type Upload struct {
	Path  string
	final string
}

// Stage writes r into a temporary file of the network directory. The caller either commits
// or discards it.
func (s *Store) Stage(network string, filename string, r io.Reader) (*Upload, error) {
	dir, err := s.NetworkDir(network)
	if err != nil {
		return nil, err
	}

	tmp, err := os.OpenFile(filepath.Join(dir, ".tmp-"+uuid.NewString()), os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return nil, fmt.Errorf("cannot create temporary file, %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return nil, fmt.Errorf("cannot write upload, %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return nil, fmt.Errorf("cannot close upload, %w", err)
	}

	return &Upload{Path: tmp.Name(), final: filepath.Join(dir, SafeFilename(filename))}, nil
}

// Commit renames the upload to its sanitized name and returns the final path. Uploads of the
// same name replace each other, the last commit wins.
func (u *Upload) Commit() (string, error) {
	if err := os.Rename(u.Path, u.final); err != nil {
		return "", fmt.Errorf("cannot move upload into place, %w", err)
	}

	u.Path = u.final

	return u.final, nil
}

// Discard removes an uncommitted upload. It does nothing after Commit.
func (u *Upload) Discard() error {
	if u.Path == u.final {
		return nil
	}

	if err := os.Remove(u.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot remove upload, %w", err)
	}

	return nil
}

// SafeFilename drops any directory part and every character outside [A-Za-z0-9_.-].
// Whitespace becomes an underscore. Names that end up empty are replaced by "upload".
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "._")

	if name == "" {
		return fallbackName
	}

	return name
}

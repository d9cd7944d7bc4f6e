package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/programme-lv/assessor/internal/domain"
)

// DirStore reads content from a directory laid out as
//
//	problems/<id>.toml
//	tests/<id>.toml
//
// Either file may instead be zstd-compressed as <id>.toml.zst.
type DirStore struct {
	root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (s *DirStore) Problem(_ context.Context, id string) (*domain.Problem, error) {
	data, err := s.read("problems", id)
	if err != nil {
		return nil, err
	}
	return DecodeProblem(id, data)
}

func (s *DirStore) Test(_ context.Context, id string) (*domain.Test, error) {
	data, err := s.read("tests", id)
	if err != nil {
		return nil, err
	}
	return DecodeTest(id, data)
}

// TestIDs lists the tests present in the directory.
func (s *DirStore) TestIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "tests"))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".zst")
		if e.IsDir() || !strings.HasSuffix(name, ".toml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".toml"))
	}
	return ids, nil
}

func (s *DirStore) read(kind, id string) ([]byte, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, fmt.Errorf("invalid %s id %q: %w", kind, id, domain.ErrNotFound)
	}
	base := filepath.Join(s.root, kind, id+".toml")

	data, err := os.ReadFile(base)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err = os.ReadFile(base + ".zst")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decompress(bytes.NewReader(data))
}

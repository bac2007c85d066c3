package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/keagan/momentforge/pkg/util"
)

const (
	stagingPrefix = ".staging-"
	trashPrefix   = ".trash-"
)

// stage is a private directory inside the video dir where one run writes
// its outputs before they are published together.
type stage struct {
	paths VideoPaths
	dir   string
	trash string
}

func newStage(paths VideoPaths) (*stage, error) {
	id := uuid.NewString()
	s := &stage{
		paths: paths,
		dir:   filepath.Join(paths.Dir, stagingPrefix+id),
		trash: filepath.Join(paths.Dir, trashPrefix+id),
	}
	if err := util.EnsureDir(s.dir); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return s, nil
}

// path returns the staged location of an artifact name.
func (s *stage) path(name string) string {
	return filepath.Join(s.dir, name)
}

// commit publishes every staged artifact over its previous version. A
// previous artifact this run did not produce is removed.
func (s *stage) commit() error {
	for _, name := range s.paths.artifacts() {
		staged := s.path(name)
		final := filepath.Join(s.paths.Dir, name)

		if _, err := os.Lstat(staged); errors.Is(err, os.ErrNotExist) {
			if err := os.RemoveAll(final); err != nil {
				return fmt.Errorf("remove stale %s: %w", name, err)
			}
			continue
		}
		if err := util.ReplacePath(staged, final, s.trash); err != nil {
			return fmt.Errorf("publish %s: %w", name, err)
		}
	}
	return nil
}

// discard removes whatever is left of the stage.
func (s *stage) discard() {
	util.CleanupPaths(s.dir, s.trash)
}

// removeLeftovers deletes staging and trash dirs abandoned by crashed runs.
func removeLeftovers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !(strings.HasPrefix(name, stagingPrefix) || strings.HasPrefix(name, trashPrefix)) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return removed, err
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// Package recordstore provides durable splits.RecordStore backends.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"speedy/internal/splits"
)

const (
	sequenceFile  = "sections.yaml"
	pbFile        = "pb.yaml"
	sumOfBestFile = "sum_of_best.yaml"
	historyDir    = "history"

	historyStampLayout = "2006-01-02T15-04-05.000Z"
)

// FileStore keeps one directory per game under root:
//
//	<root>/<game>/sections.yaml
//	<root>/<game>/pb.yaml
//	<root>/<game>/sum_of_best.yaml
//	<root>/<game>/history/<start time>.yaml
type FileStore struct {
	root string
}

type sequenceDoc struct {
	Sections []string `yaml:"sections"`
}

// NewFileStore creates a FileStore, ensuring the root directory exists.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

// LoadSequence implements splits.RecordStore.LoadSequence.
func (s *FileStore) LoadSequence(_ context.Context, game string) (splits.SectionSequence, error) {
	dir, err := s.gameDir(game)
	if err != nil {
		return nil, err
	}
	fn := filepath.Join(dir, sequenceFile)
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", splits.ErrUnknownGame, game)
		}
		return nil, fmt.Errorf("read %s: %w", fn, err)
	}
	var doc sequenceDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", splits.ErrMalformedRecord, fn, err)
	}
	seq := splits.SectionSequence(doc.Sections)
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return seq, nil
}

// SaveSequence implements splits.RecordStore.SaveSequence.
func (s *FileStore) SaveSequence(_ context.Context, game string, seq splits.SectionSequence) error {
	if err := seq.Validate(); err != nil {
		return err
	}
	dir, err := s.makeGameDir(game)
	if err != nil {
		return err
	}
	return writeYAML(filepath.Join(dir, sequenceFile), sequenceDoc{Sections: seq})
}

// Games implements splits.RecordStore.Games. Only directories holding a
// section sequence count as games.
func (s *FileStore) Games(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.root, err)
	}
	var games []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), sequenceFile)); err == nil {
			games = append(games, e.Name())
		}
	}
	sort.Strings(games)
	return games, nil
}

// Load implements splits.RecordStore.Load. The two records are read
// independently; a broken personal best does not hide the sum of best.
func (s *FileStore) Load(_ context.Context, game string, seq splits.SectionSequence) (*splits.Record, *splits.Record, error) {
	dir, err := s.gameDir(game)
	if err != nil {
		return nil, nil, err
	}

	pb, pbErr := readRecord(filepath.Join(dir, pbFile))
	if pbErr == nil {
		pb, pbErr = splits.CheckLoaded(splits.KindPB, pb, seq)
	}
	sob, sobErr := readRecord(filepath.Join(dir, sumOfBestFile))
	if sobErr == nil {
		sob, sobErr = splits.CheckLoaded(splits.KindSumOfBest, sob, seq)
	}
	return pb, sob, errors.Join(pbErr, sobErr)
}

// PersistHistory implements splits.RecordStore.PersistHistory.
func (s *FileStore) PersistHistory(_ context.Context, run splits.Record) error {
	dir, err := s.gameDir(run.Game)
	if err != nil {
		return err
	}
	hdir := filepath.Join(dir, historyDir)
	if err := os.MkdirAll(hdir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", hdir, err)
	}
	name := run.StartedAt.UTC().Format(historyStampLayout) + ".yaml"
	return writeYAML(filepath.Join(hdir, name), run)
}

// PersistPB implements splits.RecordStore.PersistPB.
func (s *FileStore) PersistPB(_ context.Context, run splits.Record) error {
	dir, err := s.makeGameDir(run.Game)
	if err != nil {
		return err
	}
	return writeYAML(filepath.Join(dir, pbFile), run)
}

// PersistSumOfBest implements splits.RecordStore.PersistSumOfBest.
func (s *FileStore) PersistSumOfBest(_ context.Context, sob splits.Record) error {
	dir, err := s.makeGameDir(sob.Game)
	if err != nil {
		return err
	}
	return writeYAML(filepath.Join(dir, sumOfBestFile), sob)
}

// History implements splits.RecordStore.History. Unreadable entries are
// skipped and reported in the returned error alongside the readable ones.
func (s *FileStore) History(_ context.Context, game string) ([]splits.Record, error) {
	dir, err := s.gameDir(game)
	if err != nil {
		return nil, err
	}
	hdir := filepath.Join(dir, historyDir)
	entries, err := os.ReadDir(hdir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", hdir, err)
	}

	var (
		runs []splits.Record
		errs []error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		rec, err := readRecord(filepath.Join(hdir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rec != nil {
			runs = append(runs, *rec)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, errors.Join(errs...)
}

// gameDir returns the directory of game without creating it, so lookups of an
// unknown game leave the data directory untouched.
func (s *FileStore) gameDir(game string) (string, error) {
	if game == "" || game == "." || game == ".." || strings.ContainsAny(game, `/\`) {
		return "", fmt.Errorf("invalid game id %q", game)
	}
	return filepath.Join(s.root, game), nil
}

// makeGameDir is gameDir for write paths.
func (s *FileStore) makeGameDir(game string) (string, error) {
	dir, err := s.gameDir(game)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// readRecord returns nil, nil when fn does not exist.
func readRecord(fn string) (*splits.Record, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", fn, err)
	}
	var rec splits.Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", splits.ErrMalformedRecord, fn, err)
	}
	return &rec, nil
}

// writeYAML replaces fn atomically so a crash mid-write keeps the old record.
func writeYAML(fn string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fn), filepath.Base(fn)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", fn, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), fn); err != nil {
		return fmt.Errorf("rename %s: %w", fn, err)
	}
	return nil
}

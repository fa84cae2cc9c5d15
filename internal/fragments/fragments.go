// Package fragments keeps the editable per-type field selections.
package fragments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	discovery "github.com/hanpama/graphsync/internal/discovery"
	introspection "github.com/hanpama/graphsync/internal/introspection"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

// Ext is the extension of fragment files. Other files are ignored.
const Ext = ".graphql"

// ErrNoDirectory is returned when the fragment directory is missing.
var ErrNoDirectory = errors.New("fragment directory does not exist")

// Store reads and writes fragment files under one directory URL. Plain
// paths and any scheme afs supports (file://, mem://, gs://, s3://) work.
type Store struct {
	dir    string
	fs     afs.Service
	logger *slog.Logger
}

type Option func(*Store)

func WithFS(fs afs.Service) Option { return func(s *Store) { s.fs = fs } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, fs: afs.New(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Dir() string { return s.dir }

// Path returns the file URL of a type's fragment.
func (s *Store) Path(typeName string) string {
	return url.Join(s.dir, typeName+Ext)
}

// EnsureDir creates the directory when it does not exist yet.
func (s *Store) EnsureDir(ctx context.Context) error {
	ok, err := s.fs.Exists(ctx, s.dir)
	if err != nil {
		return fmt.Errorf("check fragment directory: %w", err)
	}
	if ok {
		return nil
	}
	if err := s.fs.Create(ctx, s.dir, os.ModeDir|0o755, true); err != nil {
		return fmt.Errorf("create fragment directory: %w", err)
	}
	return nil
}

// EnsureDefaults writes a default fragment for every node type that has no
// file yet and returns the names of the types it wrote. Existing files are
// left untouched.
func (s *Store) EnsureDefaults(ctx context.Context, rs *introspection.RemoteSchema, types []discovery.NodeType) ([]string, error) {
	if err := s.EnsureDir(ctx); err != nil {
		return nil, err
	}
	var written []string
	for _, nt := range types {
		path := s.Path(nt.RemoteTypeName)
		exists, err := s.fs.Exists(ctx, path)
		if err != nil {
			return written, fmt.Errorf("check fragment %s: %w", path, err)
		}
		if exists {
			continue
		}
		text, ok := Default(rs.Model, nt.RemoteTypeName, types)
		if !ok {
			s.logger.InfoContext(ctx, "no selectable fields for default fragment", "remote_type", nt.RemoteTypeName)
			continue
		}
		if err := s.fs.Upload(ctx, path, 0o644, strings.NewReader(text)); err != nil {
			return written, fmt.Errorf("write fragment %s: %w", path, err)
		}
		written = append(written, nt.RemoteTypeName)
	}
	if len(written) > 0 {
		s.logger.InfoContext(ctx, "wrote default fragments", "dir", s.dir, "count", len(written))
	}
	return written, nil
}

// CollectAll returns the text of every fragment file, ordered by file name.
func (s *Store) CollectAll(ctx context.Context) ([]string, error) {
	ok, err := s.fs.Exists(ctx, s.dir)
	if err != nil {
		return nil, fmt.Errorf("check fragment directory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDirectory, s.dir)
	}
	objects, err := s.fs.List(ctx, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name() < objects[j].Name() })

	var out []string
	for _, obj := range objects {
		if obj.IsDir() || !strings.HasSuffix(obj.Name(), Ext) {
			continue
		}
		data, err := s.fs.DownloadWithURL(ctx, obj.URL())
		if err != nil {
			return nil, fmt.Errorf("read fragment %s: %w", obj.URL(), err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		out = append(out, string(data))
	}
	return out, nil
}

// Package file provides the file-system persistence backend. Each entity is
// stored as one JSON document under a per-kind directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowmesh/flowmesh/pkg/persistence"
)

const dirPermissions = 0o755

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root string
}

// NewPersistence creates a file backend rooted at the given directory. A
// file:// prefix is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

// Close performs any necessary cleanup; nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) dir(kind string) string {
	return filepath.Join(p.root, kind)
}

func (p *Persistence) docPath(kind, id string) string {
	return filepath.Join(p.root, kind, id+".json")
}

func (p *Persistence) writeDoc(kind, id string, doc any) error {
	if err := os.MkdirAll(p.dir(kind), dirPermissions); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", kind, err)
	}

	if err := os.WriteFile(p.docPath(kind, id), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s document: %w", kind, err)
	}

	return nil
}

// readDoc decodes one document into out. Returns notFound sentinel handling
// to the caller via os.IsNotExist.
func (p *Persistence) readDoc(kind, id string, out any) error {
	data, err := os.ReadFile(p.docPath(kind, id))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s document %s: %w", kind, id, err)
	}

	return nil
}

func (p *Persistence) removeDoc(kind, id string) error {
	return os.Remove(p.docPath(kind, id))
}

// listIDs returns the document ids stored under a kind directory.
func (p *Persistence) listIDs(kind string) ([]string, error) {
	root := os.DirFS(p.dir(kind))

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s documents: %w", kind, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

var _ persistence.Persistence = (*Persistence)(nil)

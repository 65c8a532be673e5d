package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/twistedxcom/vigil/internal/monitor"
)

// fileState is the on-disk shape written by an external observer process.
// Each poll reads the whole file; the observer replaces it atomically.
type fileState struct {
	Apps []fileApp `json:"apps"`
}

type fileApp struct {
	PID     int          `json:"pid"`
	Name    string       `json:"name"`
	Windows []fileWindow `json:"windows"`
}

type fileWindow struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	DocumentPath string `json:"document_path,omitempty"`
	Signature    string `json:"signature"`
	Gone         bool   `json:"gone,omitempty"`
	Unreadable   bool   `json:"unreadable,omitempty"`
}

// FileSource reads observation sets from a JSON state file maintained by
// an external observer. A missing file means nothing is being observed
// and yields an empty set, not an error.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Snapshot(ctx context.Context) ([]monitor.AppSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", f.path, err)
	}

	apps := make([]monitor.AppSnapshot, 0, len(state.Apps))
	for _, a := range state.Apps {
		windows := make([]monitor.WindowSnapshot, 0, len(a.Windows))
		for _, w := range a.Windows {
			windows = append(windows, monitor.WindowSnapshot{
				ID:           w.ID,
				Title:        w.Title,
				DocumentPath: w.DocumentPath,
				Signature:    w.Signature,
				Gone:         w.Gone,
				Unreadable:   w.Unreadable,
			})
		}
		apps = append(apps, monitor.AppSnapshot{
			PID:     a.PID,
			Name:    a.Name,
			Windows: windows,
		})
	}
	return apps, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nwtk/flowrec/internal/model"
)

// FileStore writes one JSON document per flow under a directory. It exists
// for portable exports and environments without SQLite; files are written to
// a temp path and renamed so readers never see a torn flow.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

func OpenFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create flows dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Save(_ context.Context, flow *model.Flow) error {
	if err := flow.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	raw, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return fmt.Errorf("encode flow %s: %w", flow.ID, err)
	}
	tmp, err := os.CreateTemp(s.dir, flow.ID+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrStorage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("%w: write flow %s: %v", ErrStorage, flow.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("%w: close temp: %v", ErrStorage, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("%w: chmod temp: %v", ErrStorage, err)
	}
	if err := os.Rename(tmpName, s.path(flow.ID)); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("%w: rename flow %s: %v", ErrStorage, flow.ID, err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, id string) (*model.Flow, error) {
	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read flow %s: %v", ErrStorage, id, err)
	}
	var flow model.Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, fmt.Errorf("%w: decode flow %s: %v", ErrCorrupt, id, err)
	}
	if err := flow.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &flow, nil
}

// flowEnvelope decodes only the summary fields of a stored flow document,
// skipping payload decoding during listing.
type flowEnvelope struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	StartedAt    string            `json:"started_at"`
	EndedAt      *string           `json:"ended_at"`
	Status       model.FlowStatus  `json:"status"`
	Actions      []json.RawMessage `json:"actions"`
	EvidenceRefs []string          `json:"evidence_refs"`
}

// List walks the directory and summarizes every readable flow document.
// Stray or damaged files are skipped with a warning; one bad file must not
// hide the others.
func (s *FileStore) List(_ context.Context) ([]model.FlowSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read flows dir: %v", ErrStorage, err)
	}
	summaries := []model.FlowSummary{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable flow file", "file", entry.Name(), "error", err)
			continue
		}
		var env flowEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Warn("skipping undecodable flow file", "file", entry.Name(), "error", err)
			continue
		}
		summary := model.FlowSummary{
			ID:            env.ID,
			Name:          env.Name,
			Description:   env.Description,
			Status:        env.Status,
			ActionCount:   len(env.Actions),
			EvidenceCount: len(env.EvidenceRefs),
		}
		if summary.StartedAt, err = parseTS(env.StartedAt); err != nil {
			s.logger.Warn("skipping flow file with bad started_at", "file", entry.Name(), "error", err)
			continue
		}
		if env.EndedAt != nil {
			t, err := parseTS(*env.EndedAt)
			if err != nil {
				s.logger.Warn("skipping flow file with bad ended_at", "file", entry.Name(), "error", err)
				continue
			}
			summary.EndedAt = &t
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].StartedAt.Equal(summaries[j].StartedAt) {
			return summaries[i].StartedAt.After(summaries[j].StartedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

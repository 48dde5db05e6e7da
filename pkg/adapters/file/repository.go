package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

// DefaultPath is used when no base path is configured.
var DefaultPath = filepath.Join(".scenaria", "scenarios")

// Repository implements ports.ScenarioRepository using the local filesystem.
// Each scenario is one JSON document named after its id.
// Version checks are serialized within the process only.
type Repository struct {
	BasePath string
	mu       sync.Mutex
}

// New creates a new Repository with the given base path.
// If basePath is empty, it defaults to DefaultPath.
func New(basePath string) *Repository {
	if basePath == "" {
		basePath = DefaultPath
	}
	return &Repository{BasePath: basePath}
}

func (r *Repository) path(scenarioID string) (string, error) {
	if scenarioID == "" {
		return "", fmt.Errorf("scenarioID cannot be empty")
	}
	if strings.ContainsAny(scenarioID, `/\`) || scenarioID == "." || scenarioID == ".." {
		return "", fmt.Errorf("invalid scenarioID %q", scenarioID)
	}
	return filepath.Join(r.BasePath, scenarioID+".json"), nil
}

func (r *Repository) read(path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrScenarioNotFound
		}
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario: %w", err)
	}
	return &doc, nil
}

// Apply writes the next version of the document atomically.
func (r *Repository) Apply(ctx context.Context, scenarioID string, baseVersion int, ops []domain.Operation) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := r.path(scenarioID)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := domain.Document{ScenarioID: scenarioID}
	stored, err := r.read(path)
	switch {
	case err == nil:
		current = *stored
	case err != domain.ErrScenarioNotFound:
		return 0, err
	}
	if current.Version != baseVersion {
		return 0, &domain.SyncConflictError{
			ScenarioID: scenarioID,
			Err:        fmt.Errorf("stored version %d, expected %d", current.Version, baseVersion),
		}
	}

	next, err := current.Next(ops)
	if err != nil {
		return 0, err
	}
	if err := r.write(path, scenarioID, next); err != nil {
		return 0, err
	}
	return next.Version, nil
}

// write persists doc to a temporary file first, syncs it and renames it to path.
func (r *Repository) write(path, scenarioID string, doc domain.Document) error {
	if err := os.MkdirAll(r.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure scenario directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}

	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(r.BasePath, "tmp-"+scenarioID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads the stored document.
func (r *Repository) Load(ctx context.Context, scenarioID string) (*domain.Document, error) {
	path, err := r.path(scenarioID)
	if err != nil {
		return nil, err
	}
	doc, err := r.read(path)
	if err != nil {
		return nil, err
	}
	domain.SortRecords(doc.Records)
	return doc, nil
}

// Delete removes the scenario file.
func (r *Repository) Delete(ctx context.Context, scenarioID string) error {
	path, err := r.path(scenarioID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete scenario file: %w", err)
	}
	return nil
}

// List returns the ids of the stored scenarios.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

var _ ports.ScenarioRepository = (*Repository)(nil)

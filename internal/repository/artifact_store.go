package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// ArtifactStore хранит выходные PDF прогонов.
type ArtifactStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Load(ctx context.Context, key string) ([]byte, error)
	Healthy(ctx context.Context) bool
}

type localStore struct {
	baseDir string
	logger  zerolog.Logger
}

// NewLocalStore кладёт артефакты в каталог на диске. Используется в
// разработке и тестах вместо объектного хранилища.
func NewLocalStore(baseDir string, logger zerolog.Logger) (ArtifactStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &localStore{baseDir: baseDir, logger: logger}, nil
}

func (s *localStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid artifact key: %s", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *localStore) Save(_ context.Context, key string, data []byte, _ string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact subdirectory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("Artifact saved")
	return nil
}

func (s *localStore) Load(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", key, err)
	}
	return data, nil
}

func (s *localStore) Healthy(_ context.Context) bool {
	info, err := os.Stat(s.baseDir)
	return err == nil && info.IsDir()
}

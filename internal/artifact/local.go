package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"landing-page-generator/internal/apperrors"
)

const localScheme = "local://"

// LocalStore keeps artifacts under a directory. Meant for development and tests.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) (*LocalStore, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		baseDir = "./output"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: ensure base dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) Upload(ctx context.Context, content, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := sanitizeKey(name)
	if err != nil {
		return "", apperrors.ArtifactStore("invalid artifact name", err)
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", apperrors.ArtifactStore("create artifact dir", err)
	}
	// write-then-rename so a reader never sees a half written page
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return "", apperrors.ArtifactStore("write artifact", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", apperrors.ArtifactStore("write artifact", err)
	}
	return localScheme + key, nil
}

func (s *LocalStore) Fetch(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.resolve(location)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.NotFound("artifact not found")
		}
		return "", apperrors.ArtifactStore("read artifact", err)
	}
	return string(raw), nil
}

func (s *LocalStore) Replace(ctx context.Context, oldLocation, content, name string) (string, error) {
	location, err := s.Upload(ctx, content, name)
	if err != nil {
		return "", err
	}
	if oldLocation != "" && oldLocation != location {
		if err := s.Delete(ctx, oldLocation); err != nil && !apperrors.HasCode(err, apperrors.CodeNotFound) {
			return "", err
		}
	}
	return location, nil
}

func (s *LocalStore) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.NotFound("artifact not found")
		}
		return apperrors.ArtifactStore("delete artifact", err)
	}
	return nil
}

func (s *LocalStore) resolve(location string) (string, error) {
	if !strings.HasPrefix(location, localScheme) {
		return "", apperrors.ArtifactStore(fmt.Sprintf("unsupported location %q", location), nil)
	}
	key, err := sanitizeKey(strings.TrimPrefix(location, localScheme))
	if err != nil {
		return "", apperrors.ArtifactStore("invalid artifact location", err)
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(key)), nil
}

// sanitizeKey normalizes a key and keeps it inside the store root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("key escapes store root")
	}
	return cleaned, nil
}

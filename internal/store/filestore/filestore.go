// Package filestore retains original statement files on local disk under
// <root>/<tenant>/<session>/<name>.
package filestore

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// Store writes each artifact once; later writes to the same reference
// return the existing artifact.
type Store struct {
	root   string
	logger logger.Logger
}

// New creates a store rooted at root. The directory is created on first
// write.
func New(root string) *Store {
	return &Store{
		root:   root,
		logger: logger.GetGlobalLogger().WithComponent("file_store"),
	}
}

// SanitizeName reduces name to a safe single path element.
func SanitizeName(name string) string {
	base := path.Base(filepath.ToSlash(strings.TrimSpace(name)))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" {
		return "statement.csv"
	}
	return cleaned
}

func (s *Store) Put(ctx context.Context, tenantID, sessionID, name string, data []byte) (*models.CSVSource, error) {
	if tenantID == "" {
		return nil, errors.ContextError("tenant")
	}
	if sessionID == "" {
		return nil, errors.ValidationError(errors.CodeInvalidValue, "session id", sessionID, nil)
	}

	ref := path.Join(SanitizeName(tenantID), SanitizeName(sessionID), SanitizeName(name))
	full := filepath.Join(s.root, filepath.FromSlash(ref))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, errors.PersistenceError(errors.CodeWriteFailed, "create upload directory", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if stderrors.Is(err, fs.ErrExist) {
		info, statErr := os.Stat(full)
		if statErr != nil {
			return nil, errors.PersistenceError(errors.CodeReadFailed, "stat upload", statErr)
		}
		s.logger.WithField("ref", ref).Debug("Original already retained, keeping existing file")
		return &models.CSVSource{FileRef: ref, FileName: name, Size: info.Size()}, nil
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeWriteFailed, "create upload", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(full)
		return nil, errors.PersistenceError(errors.CodeWriteFailed, "write upload", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return nil, errors.PersistenceError(errors.CodeWriteFailed, "close upload", err)
	}

	s.logger.WithFields(logger.Fields{"ref": ref, "size": len(data)}).Info("Retained original statement")
	return &models.CSVSource{FileRef: ref, FileName: name, Size: int64(len(data))}, nil
}

func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	clean := path.Clean(ref)
	if clean == "." || strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return nil, errors.ValidationError(errors.CodeInvalidValue, "file reference", ref, nil)
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(clean)))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.NotFoundError("file", ref)
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "read upload", err)
	}
	return data, nil
}

var _ ports.FileStore = (*Store)(nil)

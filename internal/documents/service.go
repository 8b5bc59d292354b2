package documents

import (
	"context"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/platform/storage"
	"github.com/tramitex/tramitex/internal/shared"
)

// RepositoryPort abstracts document metadata persistence.
type RepositoryPort interface {
	Create(ctx context.Context, d *Document) error
	Get(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service stores files and their metadata rows together. The file is written
// before the row so a failed insert leaves at worst an orphan file, never a
// row pointing at nothing.
type Service struct {
	repo   RepositoryPort
	store  storage.Store
	logger *slog.Logger
}

// NewService wires the document service.
func NewService(repo RepositoryPort, store storage.Store, logger *slog.Logger) *Service {
	return &Service{repo: repo, store: store, logger: logger}
}

// AttachInput carries an upload destined for a case folder.
type AttachInput struct {
	CaseID     uuid.UUID
	Kind       Kind
	Filename   string
	Data       []byte
	Year       int
	DealerCode string
	Number     int
}

// Attach writes the file under the case folder and records its metadata.
func (s *Service) Attach(ctx context.Context, in AttachInput) (*Document, error) {
	if !in.Kind.IsValid() {
		return nil, shared.E(shared.ErrValidation, "invalid document kind", map[string]any{"kind": in.Kind})
	}
	if in.Filename == "" || path.Base(in.Filename) != in.Filename {
		return nil, shared.E(shared.ErrValidation, "invalid filename", map[string]any{"filename": in.Filename})
	}
	if len(in.Data) == 0 {
		return nil, shared.E(shared.ErrValidation, "empty file", nil)
	}

	relPath := storage.CasePath(in.Year, in.DealerCode, in.Number, in.Filename)
	if err := s.store.Write(relPath, in.Data); err != nil {
		return nil, err
	}
	doc := &Document{
		CaseID:    in.CaseID,
		Kind:      in.Kind,
		Filename:  in.Filename,
		Path:      relPath,
		SizeBytes: int64(len(in.Data)),
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if delErr := s.store.DeleteIfExists(relPath); delErr != nil {
			s.logger.Error("orphan file cleanup failed", "path", relPath, "error", delErr)
		}
		return nil, err
	}
	s.logger.Info("document attached", "document_id", doc.ID, "case_id", doc.CaseID, "kind", doc.Kind)
	return doc, nil
}

// Get looks up a document.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// ListByCase returns a case's documents.
func (s *Service) ListByCase(ctx context.Context, caseID uuid.UUID) ([]Document, error) {
	return s.repo.ListByCase(ctx, caseID)
}

// Remove deletes the metadata row first, then the file. A file that will not
// delete is logged and left behind rather than resurrecting the row.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteIfExists(doc.Path); err != nil {
		s.logger.Error("document file delete failed", "path", doc.Path, "error", err)
	}
	return nil
}

package documents

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tramitex/tramitex/internal/platform/storage"
	"github.com/tramitex/tramitex/internal/shared"
)

type memoryRepo struct {
	docs       map[uuid.UUID]*Document
	failCreate error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{docs: map[uuid.UUID]*Document{}}
}

func (m *memoryRepo) Create(_ context.Context, d *Document) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	m.docs[d.ID] = d
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (*Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, shared.E(shared.ErrNotFound, "document not found", nil)
	}
	return d, nil
}

func (m *memoryRepo) ListByCase(_ context.Context, caseID uuid.UUID) ([]Document, error) {
	var out []Document
	for _, d := range m.docs {
		if d.CaseID == caseID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.docs[id]; !ok {
		return shared.E(shared.ErrNotFound, "document not found", nil)
	}
	delete(m.docs, id)
	return nil
}

func newTestService(t *testing.T, repo RepositoryPort) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocal(dir)
	require.NoError(t, err)
	return NewService(repo, store, slog.New(slog.NewTextHandler(io.Discard, nil))), dir
}

func TestAttachWritesFileAndRow(t *testing.T) {
	repo := newMemoryRepo()
	svc, dir := newTestService(t, repo)

	doc, err := svc.Attach(context.Background(), AttachInput{
		CaseID:     uuid.New(),
		Kind:       KindDealerInvoice,
		Filename:   "invoice.pdf",
		Data:       []byte("pdf-bytes"),
		Year:       2026,
		DealerCode: "BOG01",
		Number:     7,
	})
	require.NoError(t, err)
	require.Equal(t, "2026/BOG01/0007/invoice.pdf", doc.Path)
	require.EqualValues(t, 9, doc.SizeBytes)

	data, err := os.ReadFile(filepath.Join(dir, "2026", "BOG01", "0007", "invoice.pdf"))
	require.NoError(t, err)
	require.Equal(t, []byte("pdf-bytes"), data)
}

func TestAttachCleansUpFileWhenRowFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.failCreate = errors.New("insert failed")
	svc, dir := newTestService(t, repo)

	_, err := svc.Attach(context.Background(), AttachInput{
		CaseID:     uuid.New(),
		Kind:       KindPaymentReceipt,
		Filename:   "receipt.pdf",
		Data:       []byte("x"),
		Year:       2026,
		DealerCode: "BOG01",
		Number:     7,
	})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "2026", "BOG01", "0007", "receipt.pdf"))
	require.True(t, os.IsNotExist(statErr))
}

func TestAttachRejectsTraversalFilename(t *testing.T) {
	svc, _ := newTestService(t, newMemoryRepo())

	_, err := svc.Attach(context.Background(), AttachInput{
		CaseID:   uuid.New(),
		Kind:     KindOther,
		Filename: "../escape.pdf",
		Data:     []byte("x"),
		Year:     2026,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRemoveDeletesRowAndFile(t *testing.T) {
	repo := newMemoryRepo()
	svc, dir := newTestService(t, repo)
	ctx := context.Background()

	doc, err := svc.Attach(ctx, AttachInput{
		CaseID:     uuid.New(),
		Kind:       KindRegistrationCard,
		Filename:   "card.pdf",
		Data:       []byte("x"),
		Year:       2026,
		DealerCode: "BOG01",
		Number:     1,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, doc.ID))
	_, err = svc.Get(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, statErr := os.Stat(filepath.Join(dir, doc.Path))
	require.True(t, os.IsNotExist(statErr))
}

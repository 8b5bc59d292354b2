package clients

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/shared"
)

// RepositoryPort abstracts client persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (*Client, error)
	GetByDocument(ctx context.Context, documentNumber string) (*Client, error)
	GetByDocumentKey(ctx context.Context, docKey string) (*Client, error)
	FindByNameKey(ctx context.Context, nameKey string) ([]Client, error)
	Create(ctx context.Context, c *Client) error
	Update(ctx context.Context, c *Client) error
	List(ctx context.Context, limit, offset int) ([]Client, error)
}

// Service resolves and manages clients.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService wires the client service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// ResolveInput carries the identity fields captured on a case intake form.
type ResolveInput struct {
	Name           string `validate:"required"`
	DocumentType   string
	DocumentNumber string
	Phone          string
	Email          string
	Address        string
	CityID         *uuid.UUID
}

// Resolve finds an existing client for the intake data or creates one.
// Matching cascades from strongest to weakest signal: exact document number,
// then normalized document key, then accent-insensitive name. A name that
// matches more than one client is ambiguous and refused.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (*Client, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, shared.E(shared.ErrValidation, "client name is required", nil)
	}
	doc := strings.TrimSpace(in.DocumentNumber)

	if doc != "" {
		c, err := s.repo.GetByDocument(ctx, doc)
		if err == nil {
			return s.refresh(ctx, c, name, doc, in)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		c, err = s.repo.GetByDocumentKey(ctx, DocumentKey(doc))
		if err == nil {
			return s.refresh(ctx, c, name, doc, in)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	matches, err := s.repo.FindByNameKey(ctx, NameKey(name))
	if err != nil {
		return nil, err
	}
	switch {
	case len(matches) == 1:
		return s.refresh(ctx, &matches[0], name, doc, in)
	case len(matches) > 1:
		return nil, shared.E(shared.ErrConflict, "multiple clients match this name, provide a document number", map[string]any{
			"name": name, "matches": len(matches),
		})
	}

	c := &Client{
		Name:           name,
		DocumentType:   in.DocumentType,
		DocumentNumber: doc,
		Phone:          in.Phone,
		Email:          in.Email,
		Address:        in.Address,
		CityID:         in.CityID,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("client created", "client_id", c.ID, "name", c.Name)
	return c, nil
}

// refresh carries new intake data onto a matched client: a changed name or
// document replaces the stored one, contact fields overwrite when supplied.
// No write happens when nothing differs.
func (s *Service) refresh(ctx context.Context, c *Client, name, doc string, in ResolveInput) (*Client, error) {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&c.Name, name)
	set(&c.DocumentNumber, doc)
	set(&c.DocumentType, in.DocumentType)
	set(&c.Phone, in.Phone)
	set(&c.Email, in.Email)
	set(&c.Address, in.Address)
	if in.CityID != nil && (c.CityID == nil || *c.CityID != *in.CityID) {
		c.CityID = in.CityID
		changed = true
	}
	if !changed {
		return c, nil
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("client refreshed", "client_id", c.ID, "name", c.Name)
	return c, nil
}

// Get looks up a client.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	return s.repo.Get(ctx, id)
}

// Update rewrites a client's mutable fields.
func (s *Service) Update(ctx context.Context, c *Client) error {
	if strings.TrimSpace(c.Name) == "" {
		return shared.E(shared.ErrValidation, "client name is required", nil)
	}
	return s.repo.Update(ctx, c)
}

// List pages through clients.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Client, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

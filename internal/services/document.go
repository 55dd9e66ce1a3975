package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/assaytrack/apiserver/internal/storage"
	"github.com/assaytrack/apiserver/types"
	"github.com/google/uuid"
)

const documentKeyPrefix = "documents/"

// DocumentRepository defines persistence operations for document metadata.
type DocumentRepository interface {
	Create(ctx context.Context, doc types.Document) (types.Document, error)
	GetByID(ctx context.Context, id int) (types.Document, error)
	GetByKey(ctx context.Context, key string) (types.Document, error)
	ListBySample(ctx context.Context, sampleID int) ([]types.Document, error)
	Delete(ctx context.Context, id int) error
}

// DocumentService attaches files to samples. Bytes live in object
// storage; the repository keeps only metadata.
type DocumentService struct {
	repo    DocumentRepository
	samples SampleRepository
	store   *storage.Storage
	logger  *slog.Logger
}

func NewDocumentService(repo DocumentRepository, samples SampleRepository, store *storage.Storage, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{repo: repo, samples: samples, store: store, logger: logger}
}

// Upload stores the bytes under a fresh key and records the metadata row.
// The orphaned object is removed if the row cannot be written.
func (s *DocumentService) Upload(ctx context.Context, sampleID int, filename, contentType string, size int64, r io.Reader, uploader types.Identity) (types.Document, error) {
	sample, err := s.samples.GetByID(ctx, sampleID)
	if err != nil {
		return types.Document{}, err
	}
	if err := RequireAccess(uploader, Ownership{ClientID: sample.ClientID, AnalystID: sample.AnalystID}); err != nil {
		return types.Document{}, err
	}

	key := documentKeyPrefix + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	if err := s.store.Put(ctx, key, r, size, contentType); err != nil {
		return types.Document{}, err
	}

	doc, err := s.repo.Create(ctx, types.Document{
		SampleID:    sample.ID,
		Key:         key,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  uploader.UserID,
	})
	if err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Error("failed to remove orphaned object", "key", key, "error", delErr)
		}
		return types.Document{}, err
	}
	return doc, nil
}

// ListForSample returns a sample's documents, policy-checked.
func (s *DocumentService) ListForSample(ctx context.Context, sampleID int, requester types.Identity) ([]types.Document, error) {
	sample, err := s.samples.GetByID(ctx, sampleID)
	if err != nil {
		return nil, err
	}
	if err := RequireAccess(requester, Ownership{ClientID: sample.ClientID, AnalystID: sample.AnalystID}); err != nil {
		return nil, err
	}
	return s.repo.ListBySample(ctx, sample.ID)
}

// Open returns the metadata and a reader over the stored bytes,
// policy-checked against the owning sample.
func (s *DocumentService) Open(ctx context.Context, id int, requester types.Identity) (types.Document, io.ReadCloser, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Document{}, nil, err
	}
	sample, err := s.samples.GetByID(ctx, doc.SampleID)
	if err != nil {
		return types.Document{}, nil, err
	}
	if err := RequireAccess(requester, Ownership{ClientID: sample.ClientID, AnalystID: sample.AnalystID}); err != nil {
		return types.Document{}, nil, err
	}

	rc, err := s.store.Get(ctx, doc.Key)
	if err != nil {
		return types.Document{}, nil, err
	}
	return doc, rc, nil
}

// OpenByKey serves a stored object on the designated public file route.
// The key is unguessable (a UUID) and carries no client identity.
func (s *DocumentService) OpenByKey(ctx context.Context, key string) (types.Document, io.ReadCloser, error) {
	doc, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		return types.Document{}, nil, err
	}
	rc, err := s.store.Get(ctx, doc.Key)
	if err != nil {
		return types.Document{}, nil, err
	}
	return doc, rc, nil
}

// Delete removes the metadata row and best-effort deletes the object.
func (s *DocumentService) Delete(ctx context.Context, id int, requester types.Identity) error {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	sample, err := s.samples.GetByID(ctx, doc.SampleID)
	if err != nil {
		return err
	}
	if err := RequireAccess(requester, Ownership{ClientID: sample.ClientID, AnalystID: sample.AnalystID}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, doc.Key); err != nil {
		s.logger.Error("failed to delete stored object", "key", doc.Key, "error", err)
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/folioapp/folio-server/internal/search"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// SearchService answers library search queries. Writes keep the index
// current through the novel and annotation services; this service owns
// querying and the full rebuild.
type SearchService struct {
	index  *search.SearchIndex
	store  *sqlite.Store
	logger *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(index *search.SearchIndex, st *sqlite.Store, logger *slog.Logger) *SearchService {
	return &SearchService{
		index:  index,
		store:  st,
		logger: logger,
	}
}

// Search runs a query scoped to one user's library. The owner scope is
// applied here so no caller can query across users.
func (s *SearchService) Search(ctx context.Context, ownerID string, params search.SearchParams) (*search.SearchResult, error) {
	params.OwnerID = ownerID
	return s.index.Search(ctx, params)
}

// DocumentCount returns the number of indexed documents.
func (s *SearchService) DocumentCount() (uint64, error) {
	return s.index.DocumentCount()
}

// ReindexAll rebuilds the entire search index from the store. Heavy;
// used at startup when the index is missing and by admin tooling.
func (s *SearchService) ReindexAll(ctx context.Context) error {
	s.logger.Info("starting full reindex")

	if err := s.index.Rebuild(); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var novelCount, annotationCount int
	for _, user := range users {
		novels, err := s.store.ListAllNovels(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("list novels for %s: %w", user.ID, err)
		}

		novelDocs := make([]*search.SearchDocument, 0, len(novels))
		for _, novel := range novels {
			novelDocs = append(novelDocs, search.NovelToSearchDocument(novel))
		}
		if len(novelDocs) > 0 {
			if err := s.index.IndexDocuments(novelDocs); err != nil {
				return fmt.Errorf("index novels: %w", err)
			}
		}
		novelCount += len(novelDocs)

		for _, novel := range novels {
			annotations, err := s.store.ListAnnotationsByNovel(ctx, user.ID, novel.ID)
			if err != nil {
				return fmt.Errorf("list annotations for %s: %w", novel.ID, err)
			}
			docs := make([]*search.SearchDocument, 0, len(annotations))
			for _, a := range annotations {
				docs = append(docs, search.AnnotationToSearchDocument(a))
			}
			if len(docs) > 0 {
				if err := s.index.IndexDocuments(docs); err != nil {
					return fmt.Errorf("index annotations: %w", err)
				}
			}
			annotationCount += len(docs)
		}
	}

	total, _ := s.index.DocumentCount()
	s.logger.Info("full reindex complete",
		"novels", novelCount,
		"annotations", annotationCount,
		"total_documents", total,
	)

	return nil
}

package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"github.com/spigell/hh-researcher/internal/logger"
	"go.uber.org/zap"
)

const defaultCollection = "recruitment-rag"

// Config holds vector store configuration.
type Config struct {
	// PersistPath is the directory chromem writes its gob files to. Empty keeps
	// the store in memory.
	PersistPath string
	Collection  string
}

// Item is a vector with its metadata.
type Item struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// Hit is a single similarity match.
type Hit struct {
	ID         string
	Similarity float64
	Metadata   map[string]string
}

// Filter restricts a query by metadata. Equals keys must match exactly; In
// keys must match one of the listed values.
type Filter struct {
	Equals map[string]string
	In     map[string][]string
}

// Store is a chromem-go backed vector index. Vectors are always supplied by
// the caller.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	logger     *zap.Logger
}

var errNoEmbeddingFunc = errors.New("vector store requires precomputed embeddings")

func New(cfg Config, log *zap.Logger) (*Store, error) {
	name := strings.TrimSpace(cfg.Collection)
	if name == "" {
		name = defaultCollection
	}

	var (
		db  *chromem.DB
		err error
	)
	if path := strings.TrimSpace(cfg.PersistPath); path != "" {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open persistent vector db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Embeddings are produced upstream, chromem must never embed on its own.
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }

	collection, err := db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}

	return &Store{
		db:         db,
		collection: collection,
		name:       name,
		logger:     logger.WithFields(log, zap.String("collection", name)),
	}, nil
}

// Upsert inserts items, replacing any existing item with the same id.
func (s *Store) Upsert(ctx context.Context, items []Item) error {
	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return errors.New("vector item id is required")
		}
		if len(item.Vector) == 0 {
			return fmt.Errorf("vector item %s has no vector", item.ID)
		}
		err := s.collection.AddDocument(ctx, chromem.Document{
			ID:        item.ID,
			Content:   item.Content,
			Embedding: item.Vector,
			Metadata:  item.Metadata,
		})
		if err != nil {
			return fmt.Errorf("add vector item %s: %w", item.ID, err)
		}
	}

	s.logger.Debug("upserted vector items", zap.Int("count", len(items)), zap.Int("total", s.collection.Count()))
	return nil
}

// Query returns up to topK hits ordered by similarity descending, ties broken
// by id ascending.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	total := s.collection.Count()
	if total == 0 {
		return nil, nil
	}

	// chromem supports only equality filters; set membership is applied
	// afterwards, so ask for everything when In is used.
	n := topK
	if len(filter.In) > 0 {
		n = total
	}
	if n > total {
		n = total
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, n, filter.Equals, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", s.name, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		if !matchesIn(r.Metadata, filter.In) {
			continue
		}
		hits = append(hits, Hit{
			ID:         r.ID,
			Similarity: clampSimilarity(float64(r.Similarity)),
			Metadata:   maps.Clone(r.Metadata),
		})
	}

	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete removes items by id.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete vector items: %w", err)
	}
	return nil
}

// Truncate removes every item in the collection.
func (s *Store) Truncate(ctx context.Context) error {
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("drop collection %s: %w", s.name, err)
	}
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }
	collection, err := s.db.GetOrCreateCollection(s.name, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("recreate collection %s: %w", s.name, err)
	}
	s.collection = collection
	return nil
}

// Count returns the number of stored items.
func (s *Store) Count() int { return s.collection.Count() }

func matchesIn(metadata map[string]string, in map[string][]string) bool {
	for key, allowed := range in {
		value, ok := metadata[key]
		if !ok {
			return false
		}
		found := false
		for _, a := range allowed {
			if a == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
}

func clampSimilarity(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

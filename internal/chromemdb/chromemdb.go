package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"arcane-scribe/internal/models"
)

// StoreError wraps any failure of the vector database.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
	dbPath     string
}

// NewVectorDBManager opens the persistent database at dbPath and gets or creates
// the rulebook collection. embed is only used by Stats to probe for a sample record.
func NewVectorDBManager(dbPath string, embed chromem.EmbeddingFunc) (*VectorDBManager, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, &StoreError{Op: "open", Err: errors.New("db path is required")}
	}
	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("failed to create database: %w", err)}
	}
	m := &VectorDBManager{db: db, embed: embed, dbPath: dbPath}
	if err := m.getOrCreateCollection(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VectorDBManager) getOrCreateCollection() error {
	c, err := m.db.GetOrCreateCollection(models.CollectionName, map[string]string{
		"description": models.CollectionDescription,
	}, m.embed)
	if err != nil {
		return &StoreError{Op: "collection", Err: fmt.Errorf("failed to create/get collection: %w", err)}
	}
	m.collection = c
	return nil
}

// Path returns the database directory.
func (m *VectorDBManager) Path() string {
	return m.dbPath
}

// Add stores chunks with precomputed embeddings. Existing ids are overwritten.
func (m *VectorDBManager) Add(ctx context.Context, ids, texts []string, embeddings [][]float32, metadatas []models.ChunkMetadata) error {
	if len(ids) != len(texts) || len(ids) != len(embeddings) || len(ids) != len(metadatas) {
		return &StoreError{Op: "add", Err: fmt.Errorf("length mismatch: %d ids, %d texts, %d embeddings, %d metadatas",
			len(ids), len(texts), len(embeddings), len(metadatas))}
	}
	if len(ids) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(ids))
	for i := range ids {
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   texts[i],
			Metadata:  metadatas[i].ToMap(),
			Embedding: embeddings[i],
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return &StoreError{Op: "add", Err: fmt.Errorf("failed to add documents: %w", err)}
	}
	return nil
}

// Query returns up to k hits ordered by ascending cosine distance.
func (m *VectorDBManager) Query(ctx context.Context, embedding []float32, k int) ([]models.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := min(k, m.collection.Count())
	if n <= 0 {
		return []models.Hit{}, nil
	}
	results, err := m.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, &StoreError{Op: "query", Err: fmt.Errorf("failed to query by similarity: %w", err)}
	}

	hits := make([]models.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, models.Hit{
			Document: r.Content,
			Metadata: models.ParseChunkMetadata(r.Metadata),
			Distance: 1 - r.Similarity,
		})
	}
	return hits, nil
}

// Count returns the number of stored chunks.
func (m *VectorDBManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection.Count()
}

// Reset drops the collection and creates it again, empty.
func (m *VectorDBManager) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "reset", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.DeleteCollection(models.CollectionName); err != nil {
		return &StoreError{Op: "reset", Err: fmt.Errorf("failed to drop collection: %w", err)}
	}
	return m.getOrCreateCollection()
}

// Stats reports the chunk count and one sample record.
func (m *VectorDBManager) Stats(ctx context.Context) (models.CollectionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := models.CollectionStats{
		TotalChunks:    m.collection.Count(),
		CollectionName: models.CollectionName,
	}
	if stats.TotalChunks == 0 || m.embed == nil {
		return stats, nil
	}
	results, err := m.collection.Query(ctx, models.CollectionDescription, 1, nil, nil)
	if err != nil {
		return stats, &StoreError{Op: "stats", Err: fmt.Errorf("failed to sample collection: %w", err)}
	}
	if len(results) > 0 {
		sample := models.ParseChunkMetadata(results[0].Metadata)
		stats.SampleMetadata = &sample
	}
	return stats, nil
}

// Export writes the collection to a single gob file. A non-empty encryptionKey
// must be 32 bytes and encrypts the file with AES-256; a ".gz" suffix compresses it.
func (m *VectorDBManager) Export(path, encryptionKey string) error {
	if path == "" {
		return &StoreError{Op: "export", Err: errors.New("export path is required")}
	}
	compress := strings.HasSuffix(strings.TrimSuffix(path, ".enc"), ".gz")

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.db.ExportToFile(path, compress, encryptionKey, models.CollectionName); err != nil {
		return &StoreError{Op: "export", Err: fmt.Errorf("failed to export database: %w", err)}
	}
	return nil
}

// Import replaces the collection with the one stored in an Export file and
// persists it to the database directory. The backup is decoded into memory
// first; the stored collection is left untouched when that fails.
func (m *VectorDBManager) Import(path, encryptionKey string) error {
	if _, err := os.Stat(path); err != nil {
		return &StoreError{Op: "import", Err: err}
	}
	scratch := chromem.NewDB()
	if err := scratch.ImportFromFile(path, encryptionKey, models.CollectionName); err != nil {
		return &StoreError{Op: "import", Err: fmt.Errorf("failed to read backup: %w", err)}
	}
	if _, ok := scratch.ListCollections()[models.CollectionName]; !ok {
		return &StoreError{Op: "import", Err: fmt.Errorf("backup %s has no %s collection", path, models.CollectionName)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// stale document files of the old collection would otherwise reappear on reopen
	if err := m.db.DeleteCollection(models.CollectionName); err != nil {
		return &StoreError{Op: "import", Err: fmt.Errorf("failed to drop collection: %w", err)}
	}
	if err := m.db.ImportFromFile(path, encryptionKey, models.CollectionName); err != nil {
		_ = m.getOrCreateCollection()
		return &StoreError{Op: "import", Err: fmt.Errorf("failed to import database: %w", err)}
	}
	return m.getOrCreateCollection()
}

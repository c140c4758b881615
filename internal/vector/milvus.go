package vector

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/soyeahso/docent/internal/config"
	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/logging"
)

const (
	fieldID       = "id"
	fieldDocument = "document_id"
	fieldSource   = "source"
	fieldText     = "text"
	fieldVector   = "vector"
)

// MilvusStore keeps embeddings in a Milvus collection. The collection
// and its index are created on first connect if missing.
type MilvusStore struct {
	c          client.Client
	collection string
	dims       int
	log        *logging.Logger
}

func NewMilvusStore(ctx context.Context, cfg config.VectorConfig, dims int, log *logging.Logger) (*MilvusStore, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	c, err := client.NewClient(ctx, client.Config{
		Address:  addr,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus at %s: %w", addr, err)
	}

	s := &MilvusStore{
		c:          c,
		collection: cfg.Collection,
		dims:       dims,
		log:        log.Sub("vector.milvus"),
	}
	if err := s.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := s.c.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if has {
		return s.c.LoadCollection(ctx, s.collection, false)
	}

	schema := entity.NewSchema().
		WithName(s.collection).
		WithDescription("document chunks with embeddings").
		WithField(entity.NewField().
			WithName(fieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(64).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(fieldDocument).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(64)).
		WithField(entity.NewField().
			WithName(fieldSource).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(512)).
		WithField(entity.NewField().
			WithName(fieldText).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(65535)).
		WithField(entity.NewField().
			WithName(fieldVector).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(s.dims)))

	if err := s.c.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}

	idx, err := entity.NewIndexAUTOINDEX(entity.COSINE)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := s.c.CreateIndex(ctx, s.collection, fieldVector, idx, false); err != nil {
		return fmt.Errorf("create index on %s: %w", s.collection, err)
	}

	s.log.Info().Str("collection", s.collection).Int("dims", s.dims).Msg("created vector collection")
	return s.c.LoadCollection(ctx, s.collection, false)
}

func (s *MilvusStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	docs := make([]string, len(records))
	sources := make([]string, len(records))
	texts := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		ids[i] = r.ID
		docs[i] = r.DocumentID
		sources[i] = r.Source
		texts[i] = r.Text
		vectors[i] = r.Vector
	}

	_, err := s.c.Upsert(ctx, s.collection, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldDocument, docs),
		entity.NewColumnVarChar(fieldSource, sources),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnFloatVector(fieldVector, s.dims, vectors),
	)
	if err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return nil
}

func (s *MilvusStore) Search(ctx context.Context, vec []float32, topK int) ([]domain.Passage, error) {
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, fmt.Errorf("build search param: %w", err)
	}

	results, err := s.c.Search(ctx, s.collection, nil, "",
		[]string{fieldSource, fieldText},
		[]entity.Vector{entity.FloatVector(vec)},
		fieldVector, entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.collection, err)
	}

	var passages []domain.Passage
	for _, res := range results {
		srcCol, _ := res.Fields.GetColumn(fieldSource).(*entity.ColumnVarChar)
		textCol, _ := res.Fields.GetColumn(fieldText).(*entity.ColumnVarChar)
		if srcCol == nil || textCol == nil {
			continue
		}
		for i := 0; i < res.ResultCount; i++ {
			passages = append(passages, domain.Passage{
				Text:   textCol.Data()[i],
				Source: srcCol.Data()[i],
				Rank:   len(passages) + 1,
			})
		}
	}
	return passages, nil
}

func (s *MilvusStore) DeleteByDocument(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf("%s == %q", fieldDocument, documentID)
	if err := s.c.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

func (s *MilvusStore) Health(ctx context.Context) error {
	_, err := s.c.HasCollection(ctx, s.collection)
	return err
}

func (s *MilvusStore) Close() error {
	return s.c.Close()
}

package retrieval

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantVectorIndex is the production VectorIndex, backed by a Qdrant
// collection keyed by chunk_id. Grounded on the teacher's
// providers/vectorstores/qdrant.VectorStore: a thin translation layer over
// *qdrant.Client, no ORM, no query builder.
type QdrantVectorIndex struct {
	client         *qdrant.Client
	collectionName string
}

// NewQdrantVectorIndex wraps an existing Qdrant client for a collection
// that has already been created with the embedder's output dimensionality
// and cosine distance.
func NewQdrantVectorIndex(client *qdrant.Client, collectionName string) *QdrantVectorIndex {
	return &QdrantVectorIndex{client: client, collectionName: collectionName}
}

var _ VectorIndex = (*QdrantVectorIndex)(nil)

// EnsureCollection creates the collection if it doesn't already exist,
// sized for dimensions-wide cosine vectors.
func (q *QdrantVectorIndex) EnsureCollection(ctx context.Context, dimensions int) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return errUnavailable("retrieval.EnsureCollection", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return errUnavailable("retrieval.EnsureCollection", err)
	}
	return nil
}

func (q *QdrantVectorIndex) Upsert(ctx context.Context, chunkID string, vector []float32) error {
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(chunkID),
				Vectors: qdrant.NewVectors(vector...),
			},
		},
	})
	if err != nil {
		return errUnavailable(fmt.Sprintf("retrieval.Upsert(%s)", chunkID), err)
	}
	return nil
}

func (q *QdrantVectorIndex) Delete(ctx context.Context, chunkID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points:         qdrant.NewPointsSelectorFilter(idsFilter([]string{chunkID})),
	})
	if err != nil {
		return errUnavailable(fmt.Sprintf("retrieval.Delete(%s)", chunkID), err)
	}
	return nil
}

// Search restricts the query to candidateIDs via an Id-membership filter,
// the same pre-filter-then-score sequencing the in-memory index uses.
func (q *QdrantVectorIndex) Search(ctx context.Context, query []float32, candidateIDs []string, limit int) ([]ScoredID, error) {
	queryPoints := &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrantLimit(limit),
		WithPayload:    qdrant.NewWithPayload(false),
	}
	if len(candidateIDs) > 0 {
		queryPoints.Filter = idsFilter(candidateIDs)
	}

	points, err := q.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, errUnavailable("retrieval.Search", err)
	}

	out := make([]ScoredID, 0, len(points))
	for _, p := range points {
		out = append(out, ScoredID{ChunkID: p.GetId().GetUuid(), Score: float64(p.GetScore())})
	}
	return out, nil
}

// idsFilter builds a Qdrant filter matching any point whose id is in ids,
// via one HasId condition per id combined with Should (logical OR).
func idsFilter(ids []string) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(ids))
	for _, id := range ids {
		conditions = append(conditions, qdrant.NewHasID(qdrant.NewID(id)))
	}
	return &qdrant.Filter{Should: conditions}
}

func qdrantLimit(limit int) *uint64 {
	v := uint64(limit)
	return &v
}

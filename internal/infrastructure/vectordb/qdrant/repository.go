// Package qdrant provides a CharacterIndex implementation using Qdrant.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/config"
)

// Payload keys.
const (
	fieldCharacterID     = "character_id"
	fieldBookID          = "book_id"
	fieldName            = "name"
	fieldFirstAppearance = "first_appearance"
)

// pointNamespace derives stable point IDs for character IDs that are not UUIDs.
var pointNamespace = uuid.MustParse("6f1c1a52-3c4e-4b8e-9a57-0d7c2b5e8f10")

// Repository implements the CharacterIndex interface using Qdrant.
type Repository struct {
	client     pb.CollectionsClient
	points     pb.PointsClient
	collection string
	apiKey     string
	conn       *grpc.ClientConn
}

// NewRepository creates a new Qdrant repository.
func NewRepository(cfg config.QdrantConfig) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	creds := insecure.NewCredentials()
	if cfg.APIKey != "" {
		// Qdrant Cloud only accepts keys over TLS.
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return newRepository(conn, cfg.Collection, cfg.APIKey), nil
}

func newRepository(conn *grpc.ClientConn, collection, apiKey string) *Repository {
	return &Repository{
		client:     pb.NewCollectionsClient(conn),
		points:     pb.NewPointsClient(conn),
		collection: collection,
		apiKey:     apiKey,
		conn:       conn,
	}
}

// Close closes the gRPC connection.
func (r *Repository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// auth attaches the API key to outgoing calls.
func (r *Repository) auth(ctx context.Context) context.Context {
	if r.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", r.apiKey)
}

// EnsureCollection creates the collection and its payload indexes if the
// collection doesn't exist.
func (r *Repository) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	ctx = r.auth(ctx)
	_, err := r.client.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collection,
	})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("getting collection info: %w", err)
	}

	_, err = r.client.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	indexes := map[string]pb.FieldType{
		fieldBookID:          pb.FieldType_FieldTypeKeyword,
		fieldFirstAppearance: pb.FieldType_FieldTypeInteger,
	}
	for field, fieldType := range indexes {
		_, err := r.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collection,
			FieldName:      field,
			FieldType:      pb.PtrOf(fieldType),
			Wait:           pb.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("creating %s index: %w", field, err)
		}
	}

	return nil
}

// Upsert stores or replaces the given characters.
func (r *Repository) Upsert(ctx context.Context, docs []ports.IndexedCharacter) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(docs))
	for _, doc := range docs {
		c := doc.Character
		point := &pb.PointStruct{
			Id: pointID(c.ID),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{
						Data: doc.Embedding,
					},
				},
			},
			Payload: map[string]*pb.Value{
				fieldCharacterID:     {Kind: &pb.Value_StringValue{StringValue: c.ID}},
				fieldBookID:          {Kind: &pb.Value_StringValue{StringValue: c.BookID}},
				fieldName:            {Kind: &pb.Value_StringValue{StringValue: c.Name}},
				fieldFirstAppearance: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.FirstAppearance)}},
			},
		}
		points = append(points, point)
	}

	_, err := r.points.Upsert(r.auth(ctx), &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	return nil
}

// Delete removes characters by ID.
func (r *Repository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*pb.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, pointID(id))
	}

	_, err := r.points.Delete(r.auth(ctx), &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: pointIDs,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	return nil
}

// DeleteByBook removes every character of a book.
func (r *Repository) DeleteByBook(ctx context.Context, bookID string) error {
	_, err := r.points.Delete(r.auth(ctx), &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{bookCondition(bookID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points by book: %w", err)
	}

	return nil
}

// DeleteAll removes all characters.
func (r *Repository) DeleteAll(ctx context.Context) error {
	_, err := r.points.Delete(r.auth(ctx), &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting all points: %w", err)
	}

	return nil
}

// Search performs a semantic search within one book, hiding characters who
// first appear after uptoChapter.
func (r *Repository) Search(ctx context.Context, bookID string, embedding []float32, uptoChapter, limit int) ([]ports.SearchHit, error) {
	if limit <= 0 {
		return nil, nil
	}

	resp, err := r.points.Search(r.auth(ctx), &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		Filter:         searchFilter(bookID, uptoChapter),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	return scoredPointsToHits(resp.Result), nil
}

// searchFilter restricts a search to one book up to a chapter.
func searchFilter(bookID string, uptoChapter int) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			bookCondition(bookID),
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: fieldFirstAppearance,
						Range: &pb.Range{
							Lte: pb.PtrOf(float64(uptoChapter)),
						},
					},
				},
			},
		},
	}
}

func bookCondition(bookID string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: fieldBookID,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{
						Keyword: bookID,
					},
				},
			},
		},
	}
}

// pointID maps a character ID to a Qdrant point ID. Qdrant only accepts
// UUIDs and unsigned integers, so other IDs are hashed into a UUID.
func pointID(characterID string) *pb.PointId {
	id := characterID
	if _, err := uuid.Parse(characterID); err != nil {
		id = uuid.NewSHA1(pointNamespace, []byte(characterID)).String()
	}
	return &pb.PointId{
		PointIdOptions: &pb.PointId_Uuid{
			Uuid: id,
		},
	}
}

// scoredPointsToHits converts scored points to search hits.
func scoredPointsToHits(points []*pb.ScoredPoint) []ports.SearchHit {
	hits := make([]ports.SearchHit, 0, len(points))
	for _, point := range points {
		id := getStringValue(point.Payload, fieldCharacterID)
		if id == "" {
			id = point.Id.GetUuid()
		}
		hits = append(hits, ports.SearchHit{
			CharacterID: id,
			Name:        getStringValue(point.Payload, fieldName),
			Score:       point.Score,
		})
	}
	return hits
}

// Helper functions for payload extraction.
func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func getIntValue(payload map[string]*pb.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

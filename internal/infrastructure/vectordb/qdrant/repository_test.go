package qdrant

import (
	"context"
	"net"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
)

// fakeState is a tiny in-process stand-in for a Qdrant collection.
type fakeState struct {
	mu         sync.Mutex
	exists     bool
	vectorSize uint64
	indexes    map[string]pb.FieldType
	points     map[string]*pb.PointStruct
	apiKeys    []string
}

func (s *fakeState) recordKey(ctx context.Context) {
	md, _ := metadata.FromIncomingContext(ctx)
	s.apiKeys = append(s.apiKeys, md.Get("api-key")...)
}

type fakeCollections struct {
	pb.UnimplementedCollectionsServer
	state *fakeState
}

func (f *fakeCollections) Get(_ context.Context, _ *pb.GetCollectionInfoRequest) (*pb.GetCollectionInfoResponse, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	if !f.state.exists {
		return nil, status.Error(codes.NotFound, "collection not found")
	}
	return &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{}}, nil
}

func (f *fakeCollections) Create(_ context.Context, req *pb.CreateCollection) (*pb.CollectionOperationResponse, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	f.state.exists = true
	f.state.vectorSize = req.GetVectorsConfig().GetParams().GetSize()
	return &pb.CollectionOperationResponse{Result: true}, nil
}

type fakePoints struct {
	pb.UnimplementedPointsServer
	state *fakeState
}

func (f *fakePoints) CreateFieldIndex(_ context.Context, req *pb.CreateFieldIndexCollection) (*pb.PointsOperationResponse, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	f.state.indexes[req.GetFieldName()] = req.GetFieldType()
	return &pb.PointsOperationResponse{Result: &pb.UpdateResult{}}, nil
}

func (f *fakePoints) Upsert(ctx context.Context, req *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	f.state.recordKey(ctx)
	for _, p := range req.GetPoints() {
		f.state.points[p.GetId().GetUuid()] = p
	}
	return &pb.PointsOperationResponse{Result: &pb.UpdateResult{}}, nil
}

func (f *fakePoints) Delete(_ context.Context, req *pb.DeletePoints) (*pb.PointsOperationResponse, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	selector := req.GetPoints()
	if ids := selector.GetPoints(); ids != nil {
		for _, id := range ids.GetIds() {
			delete(f.state.points, id.GetUuid())
		}
	}
	if filter := selector.GetFilter(); filter != nil {
		for id, p := range f.state.points {
			if matches(filter, p.GetPayload()) {
				delete(f.state.points, id)
			}
		}
	}
	return &pb.PointsOperationResponse{Result: &pb.UpdateResult{}}, nil
}

func (f *fakePoints) Search(_ context.Context, req *pb.SearchPoints) (*pb.SearchResponse, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	var result []*pb.ScoredPoint
	for _, p := range f.state.points {
		if !matches(req.GetFilter(), p.GetPayload()) {
			continue
		}
		var score float32
		data := p.GetVectors().GetVector().GetData()
		for i := range req.GetVector() {
			if i < len(data) {
				score += req.GetVector()[i] * data[i]
			}
		}
		result = append(result, &pb.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: score})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Score > result[j].Score })
	if uint64(len(result)) > req.GetLimit() {
		result = result[:req.GetLimit()]
	}
	return &pb.SearchResponse{Result: result}, nil
}

// matches evaluates the keyword and range conditions used by the repository.
func matches(filter *pb.Filter, payload map[string]*pb.Value) bool {
	for _, cond := range filter.GetMust() {
		field := cond.GetField()
		if m := field.GetMatch(); m != nil && getStringValue(payload, field.GetKey()) != m.GetKeyword() {
			return false
		}
		if r := field.GetRange(); r != nil && float64(getIntValue(payload, field.GetKey())) > r.GetLte() {
			return false
		}
	}
	return true
}

// setupTestRepo starts a fake Qdrant on an in-memory listener.
func setupTestRepo(t *testing.T, apiKey string) (*Repository, *fakeState) {
	t.Helper()
	state := &fakeState{
		indexes: make(map[string]pb.FieldType),
		points:  make(map[string]*pb.PointStruct),
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pb.RegisterCollectionsServer(srv, &fakeCollections{state: state})
	pb.RegisterPointsServer(srv, &fakePoints{state: state})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	repo := newRepository(conn, "test_characters", apiKey)
	t.Cleanup(func() { repo.Close() })
	return repo, state
}

func doc(id, bookID, name string, first int, vec ...float32) ports.IndexedCharacter {
	return ports.IndexedCharacter{
		Character: &entities.Character{ID: id, BookID: bookID, Name: name, FirstAppearance: first},
		Embedding: vec,
	}
}

func TestPointID(t *testing.T) {
	id := uuid.New().String()
	assert.Equal(t, id, pointID(id).GetUuid())

	derived := pointID("char-1").GetUuid()
	_, err := uuid.Parse(derived)
	require.NoError(t, err)
	assert.Equal(t, derived, pointID("char-1").GetUuid(), "derivation is stable")
	assert.NotEqual(t, derived, pointID("char-2").GetUuid())
}

func TestRepository_EnsureCollection(t *testing.T) {
	repo, state := setupTestRepo(t, "")
	ctx := context.Background()

	require.NoError(t, repo.EnsureCollection(ctx, 26))
	assert.True(t, state.exists)
	assert.Equal(t, uint64(26), state.vectorSize)
	assert.Equal(t, pb.FieldType_FieldTypeKeyword, state.indexes[fieldBookID])
	assert.Equal(t, pb.FieldType_FieldTypeInteger, state.indexes[fieldFirstAppearance])

	// Existing collections are left alone.
	state.vectorSize = 0
	require.NoError(t, repo.EnsureCollection(ctx, 26))
	assert.Zero(t, state.vectorSize)
}

func TestRepository_UpsertAndSearch(t *testing.T) {
	repo, _ := setupTestRepo(t, "")
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []ports.IndexedCharacter{
		doc("char-1", "book-1", "Ahab", 1, 1, 0),
		doc("char-2", "book-1", "Ishmael", 1, 0.5, 0.5),
		doc("char-3", "book-1", "Moby Dick", 5, 1, 0),
		doc("char-4", "book-2", "Nemo", 1, 1, 0),
	}))

	hits, err := repo.Search(ctx, "book-1", []float32{1, 0}, 3, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "char-1", hits[0].CharacterID)
	assert.Equal(t, "Ahab", hits[0].Name)
	assert.Equal(t, float32(1), hits[0].Score)
	assert.Equal(t, "char-2", hits[1].CharacterID)

	hits, err = repo.Search(ctx, "book-1", []float32{1, 0}, 5, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = repo.Search(ctx, "book-1", []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRepository_Deletes(t *testing.T) {
	repo, state := setupTestRepo(t, "")
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []ports.IndexedCharacter{
		doc("char-1", "book-1", "A", 1, 1),
		doc("char-2", "book-1", "B", 1, 1),
		doc("char-3", "book-2", "C", 1, 1),
	}))
	require.Len(t, state.points, 3)

	require.NoError(t, repo.Delete(ctx, []string{"char-1"}))
	assert.Len(t, state.points, 2)
	assert.NotContains(t, state.points, pointID("char-1").GetUuid())

	require.NoError(t, repo.DeleteByBook(ctx, "book-1"))
	assert.Len(t, state.points, 1)
	assert.Contains(t, state.points, pointID("char-3").GetUuid())

	require.NoError(t, repo.DeleteAll(ctx))
	assert.Empty(t, state.points)

	// Empty input makes no call.
	require.NoError(t, repo.Delete(ctx, nil))
	require.NoError(t, repo.Upsert(ctx, nil))
}

func TestRepository_SendsAPIKey(t *testing.T) {
	repo, state := setupTestRepo(t, "secret")
	require.NoError(t, repo.Upsert(context.Background(), []ports.IndexedCharacter{doc("c", "b", "C", 1, 1)}))
	assert.Equal(t, []string{"secret"}, state.apiKeys)
}

func TestRepository_Unavailable(t *testing.T) {
	repo, _ := setupTestRepo(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, repo.EnsureCollection(ctx, 4))
	_, err := repo.Search(ctx, "b", []float32{1}, 1, 1)
	require.Error(t, err)
}

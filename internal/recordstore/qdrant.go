package recordstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// DefaultQdrantCollection is the collection holding alert embeddings
const DefaultQdrantCollection = "alertwatch_embeddings"

// Payload keys
const (
	payloadAlertID     = "alert_id"
	payloadSourceText  = "source_text"
	payloadLastUpdated = "last_updated"
)

// pointNamespace derives stable point IDs from alert IDs
var pointNamespace = uuid.MustParse("5b1f1c0e-9a57-4c1e-8d0f-6f1f3a2e7c41")

// pointsAPI is the subset of pb.PointsClient used here
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient used here
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Qdrant stores embedding records as points in a Qdrant collection
type Qdrant struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// NewQdrant connects to Qdrant's gRPC API at addr
func NewQdrant(addr, collection string) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	q := newQdrantWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection)
	q.conn = conn
	return q, nil
}

func newQdrantWithClients(points pointsAPI, collections collectionsAPI, collection string) *Qdrant {
	if collection == "" {
		collection = DefaultQdrantCollection
	}
	return &Qdrant{
		points:      points,
		collections: collections,
		collection:  collection,
	}
}

// Close closes the underlying gRPC connection
func (q *Qdrant) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if it doesn't exist
func (q *Qdrant) EnsureCollection(ctx context.Context, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	return nil
}

// PointID returns the Qdrant point ID used for alertID
func PointID(alertID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(alertID)).String()
}

func pointID(alertID string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(alertID)}}
}

// GetEmbeddingRecord returns the record for alertID, or nil if none is stored
func (q *Qdrant) GetEmbeddingRecord(ctx context.Context, alertID string) (*types.EmbeddingRecord, error) {
	resp, err := q.points.Get(ctx, &pb.GetPoints{
		CollectionName: q.collection,
		Ids:            []*pb.PointId{pointID(alertID)},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get %s: %w", alertID, err)
	}

	for _, p := range resp.GetResult() {
		rec := recordFromPoint(p)
		if rec.AlertID == alertID {
			return rec, nil
		}
	}
	return nil, nil
}

// PutEmbeddingRecord upserts the point for rec
func (q *Qdrant) PutEmbeddingRecord(ctx context.Context, rec *types.EmbeddingRecord) error {
	if rec == nil || rec.AlertID == "" {
		return types.ErrEmptyAlertID
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{pointFromRecord(rec)},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", rec.AlertID, err)
	}
	return nil
}

// DeleteEmbeddingRecord removes the point for alertID
func (q *Qdrant) DeleteEmbeddingRecord(ctx context.Context, alertID string) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID(alertID)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete %s: %w", alertID, err)
	}
	return nil
}

func pointFromRecord(rec *types.EmbeddingRecord) *pb.PointStruct {
	return &pb.PointStruct{
		Id: pointID(rec.AlertID),
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: rec.Vector},
			},
		},
		Payload: map[string]*pb.Value{
			payloadAlertID:     {Kind: &pb.Value_StringValue{StringValue: rec.AlertID}},
			payloadSourceText:  {Kind: &pb.Value_StringValue{StringValue: rec.SourceText}},
			payloadLastUpdated: {Kind: &pb.Value_IntegerValue{IntegerValue: rec.LastUpdated.UnixMilli()}},
		},
	}
}

func recordFromPoint(p *pb.RetrievedPoint) *types.EmbeddingRecord {
	payload := p.GetPayload()
	rec := &types.EmbeddingRecord{
		AlertID:    payload[payloadAlertID].GetStringValue(),
		SourceText: payload[payloadSourceText].GetStringValue(),
	}
	if ms := payload[payloadLastUpdated].GetIntegerValue(); ms > 0 {
		rec.LastUpdated = time.UnixMilli(ms).UTC()
	}

	out := p.GetVectors().GetVector()
	if dense := out.GetDense().GetData(); len(dense) > 0 {
		rec.Vector = dense
	} else {
		rec.Vector = out.GetData()
	}
	return rec
}

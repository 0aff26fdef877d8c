// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package qdrant implements storage.VectorIndex on a Qdrant collection.
//
// Records are points with numeric IDs. The level and point type live in the
// payload. Scans use Qdrant's scroll API, which orders points by ID, so the
// cursor is the decimal ID of the first point of the next page.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// DefaultCollection is the collection holding classified posts.
const DefaultCollection = "santa_images"

// Client defines the Qdrant client interface used by this package.
// This allows for easy mocking in tests.
type Client interface {
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	SetPayload(ctx context.Context, request *qdrant.SetPayloadPoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Close() error
}

var _ Client = (*qdrant.Client)(nil)

// Options configures a Qdrant connection.
type Options struct {
	Host   string
	Port   int
	APIKey string
	TLS    bool
}

// NewClient opens a gRPC connection to Qdrant.
func NewClient(opts Options) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.TLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                30 * time.Second,
				Timeout:             10 * time.Second,
				PermitWithoutStream: true,
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant at %s:%d: %w", opts.Host, opts.Port, err)
	}
	return client, nil
}

// Config holds index settings.
type Config struct {
	Collection string
	// Wait makes writes return only after they are applied.
	Wait bool
}

func (c Config) withDefaults() Config {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	return c
}

// VectorIndex implements storage.VectorIndex for Qdrant.
type VectorIndex struct {
	client Client
	config Config
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// New creates an index over one collection.
func New(client Client, config Config) *VectorIndex {
	return &VectorIndex{
		client: client,
		config: config.withDefaults(),
	}
}

// Close is a no-op; the client is owned by the caller.
func (x *VectorIndex) Close() error {
	return nil
}

// EnsureCollection creates the collection with cosine distance if it does not exist.
func (x *VectorIndex) EnsureCollection(ctx context.Context, dimension int) (bool, error) {
	exists, err := x.client.CollectionExists(ctx, x.config.Collection)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upsert stores a point.
func (x *VectorIndex) Upsert(ctx context.Context, id core.ID, vector core.Vector, payload map[string]any) error {
	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.config.Collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDNum(uint64(id)),
				Vectors: qdrant.NewVectors(vector...),
				Payload: toPayload(payload),
			},
		},
		Wait: qdrant.PtrOf(x.config.Wait),
	})
	return err
}

// Retrieve returns the points that exist among ids.
func (x *VectorIndex) Retrieve(ctx context.Context, ids []core.ID, withVector bool) ([]*core.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDNum(uint64(id))
	}

	resp, err := x.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: x.config.Collection,
		Ids:            pointIDs,
		WithVectors:    qdrant.NewWithVectors(withVector),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	records := make([]*core.Record, 0, len(resp))
	for _, point := range resp {
		records = append(records, toRecord(point, withVector))
	}
	return records, nil
}

// Scroll returns up to pageSize points starting at cursor.
// One extra point is requested; its ID becomes the next cursor.
func (x *VectorIndex) Scroll(ctx context.Context, pageSize int, cursor storage.Cursor) ([]*core.Record, storage.Cursor, error) {
	if pageSize <= 0 {
		return nil, "", fmt.Errorf("%w: page size %d", storage.ErrInvalidQuery, pageSize)
	}

	req := &qdrant.ScrollPoints{
		CollectionName: x.config.Collection,
		Limit:          qdrant.PtrOf(uint32(pageSize + 1)),
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if cursor != "" {
		n, err := strconv.ParseUint(string(cursor), 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: cursor %q", storage.ErrInvalidQuery, cursor)
		}
		req.Offset = qdrant.NewIDNum(n)
	}

	resp, err := x.client.Scroll(ctx, req)
	if err != nil {
		return nil, "", err
	}

	var next storage.Cursor
	if len(resp) > pageSize {
		next = storage.Cursor(strconv.FormatUint(resp[pageSize].GetId().GetNum(), 10))
		resp = resp[:pageSize]
	}

	records := make([]*core.Record, 0, len(resp))
	for _, point := range resp {
		records = append(records, toRecord(point, true))
	}
	return records, next, nil
}

// SetPayload merges fields into the payload of id.
func (x *VectorIndex) SetPayload(ctx context.Context, id core.ID, fields map[string]any) error {
	_, err := x.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: x.config.Collection,
		Payload:        toPayload(fields),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDNum(uint64(id))),
		Wait:           qdrant.PtrOf(x.config.Wait),
	})
	return err
}

// Count returns the exact number of points in the collection.
func (x *VectorIndex) Count(ctx context.Context) (int, error) {
	n, err := x.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: x.config.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	return int(n), err
}

func toRecord(point *qdrant.RetrievedPoint, withVector bool) *core.Record {
	record := &core.Record{Id: core.ID(point.GetId().GetNum())}
	if withVector && point.GetVectors() != nil {
		record.Vector = core.Vector(point.GetVectors().GetVector().GetData())
	}
	payload := fromPayload(point.GetPayload())
	record.Level, record.Labeled = storage.LevelFromPayload(payload)
	record.Type = storage.TypeFromPayload(payload)
	return record
}

func toPayload(m map[string]any) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(m))
	for k, v := range m {
		payload[k] = toValue(v)
	}
	return payload
}

func toValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case core.Level:
		return qdrant.NewValueInt(int64(val))
	case bool:
		return qdrant.NewValueBool(val)
	default:
		data, _ := json.Marshal(v)
		return qdrant.NewValueString(string(data))
	}
}

func fromPayload(payload map[string]*qdrant.Value) map[string]any {
	m := make(map[string]any, len(payload))
	for k, v := range payload {
		m[k] = fromValue(v)
	}
	return m
}

func fromValue(v *qdrant.Value) any {
	switch v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return v.GetStringValue()
	case *qdrant.Value_DoubleValue:
		return v.GetDoubleValue()
	case *qdrant.Value_IntegerValue:
		return v.GetIntegerValue()
	case *qdrant.Value_BoolValue:
		return v.GetBoolValue()
	default:
		return nil
	}
}

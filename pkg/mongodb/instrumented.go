package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/scanner-service/pkg/metrics"
)

// InstrumentedCollection wraps a collection with metrics and tracing for the
// operations the scanner repositories use.
type InstrumentedCollection struct {
	collection *mongo.Collection
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// NewInstrumentedCollection wraps collection. m may be nil.
func NewInstrumentedCollection(collection *mongo.Collection, m *metrics.Metrics) *InstrumentedCollection {
	return &InstrumentedCollection{
		collection: collection,
		metrics:    m,
		tracer:     otel.Tracer("mongodb"),
	}
}

func (c *InstrumentedCollection) Name() string {
	return c.collection.Name()
}

// observe wraps one driver call in a span and records its metrics.
// ErrNoDocuments is not treated as a failure.
func (c *InstrumentedCollection) observe(ctx context.Context, operation string, call func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(c.collection.Database().Name()),
			semconv.DBOperationKey.String(operation),
			attribute.String("db.collection", c.collection.Name()),
		),
	)
	defer span.End()

	err := call(ctx)
	failed := err != nil && !errors.Is(err, mongo.ErrNoDocuments)
	c.metrics.RecordMongoDBOperation(c.collection.Name(), operation, !failed, time.Since(start))

	if failed {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// FindOne decodes the first match into out.
func (c *InstrumentedCollection) FindOne(ctx context.Context, filter interface{}, out interface{}, opts ...*options.FindOneOptions) error {
	return c.observe(ctx, "findOne", func(ctx context.Context) error {
		return c.collection.FindOne(ctx, filter, opts...).Decode(out)
	})
}

// FindAll decodes every match into out, which must be a pointer to a slice.
func (c *InstrumentedCollection) FindAll(ctx context.Context, filter interface{}, out interface{}, opts ...*options.FindOptions) error {
	return c.observe(ctx, "find", func(ctx context.Context) error {
		cursor, err := c.collection.Find(ctx, filter, opts...)
		if err != nil {
			return err
		}
		return cursor.All(ctx, out)
	})
}

func (c *InstrumentedCollection) UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	var result *mongo.UpdateResult
	err := c.observe(ctx, "updateOne", func(ctx context.Context) error {
		var err error
		result, err = c.collection.UpdateOne(ctx, filter, update, opts...)
		return err
	})
	return result, err
}

func (c *InstrumentedCollection) DeleteOne(ctx context.Context, filter interface{}) (*mongo.DeleteResult, error) {
	var result *mongo.DeleteResult
	err := c.observe(ctx, "deleteOne", func(ctx context.Context) error {
		var err error
		result, err = c.collection.DeleteOne(ctx, filter)
		return err
	})
	return result, err
}

func (c *InstrumentedCollection) DeleteMany(ctx context.Context, filter interface{}) (*mongo.DeleteResult, error) {
	var result *mongo.DeleteResult
	err := c.observe(ctx, "deleteMany", func(ctx context.Context) error {
		var err error
		result, err = c.collection.DeleteMany(ctx, filter)
		return err
	})
	return result, err
}

func (c *InstrumentedCollection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) error {
	return c.observe(ctx, "createIndexes", func(ctx context.Context) error {
		_, err := c.collection.Indexes().CreateMany(ctx, models)
		return err
	})
}

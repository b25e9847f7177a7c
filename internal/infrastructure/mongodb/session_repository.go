package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/scanner-service/internal/application"
	"github.com/wms-platform/scanner-service/pkg/metrics"
	wmsmongo "github.com/wms-platform/scanner-service/pkg/mongodb"
)

// CollectionSessions holds one document per scanner session.
const CollectionSessions = "scanner_sessions"

// DefaultRetention is how long an untouched session snapshot is kept.
const DefaultRetention = 24 * time.Hour

// SessionRepository is the MongoDB SnapshotStore.
type SessionRepository struct {
	collection *wmsmongo.InstrumentedCollection
	retention  time.Duration
}

// NewSessionRepository creates a repository on db. Call EnsureIndexes once at
// startup.
func NewSessionRepository(db *mongo.Database, m *metrics.Metrics, retention time.Duration) *SessionRepository {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SessionRepository{
		collection: wmsmongo.NewInstrumentedCollection(db.Collection(CollectionSessions), m),
		retention:  retention,
	}
}

// EnsureIndexes creates the session id and expiry indexes.
func (r *SessionRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "sessionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "deviceId", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(int32(r.retention.Seconds()))},
	}
	if err := r.collection.CreateIndexes(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}

// Save upserts record unless the stored snapshot has a newer revision. A
// stale write loses the upsert race on the unique sessionId index and is
// dropped silently.
func (r *SessionRepository) Save(ctx context.Context, record application.SessionRecord) error {
	filter := bson.M{
		"sessionId":      record.SessionID,
		"state.revision": bson.M{"$lte": record.State.Revision},
	}
	update := bson.M{"$set": record}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to save session %s: %w", record.SessionID, err)
	}
	return nil
}

// Load returns the stored record or application.ErrSessionNotFound.
func (r *SessionRepository) Load(ctx context.Context, sessionID string) (*application.SessionRecord, error) {
	var record application.SessionRecord
	err := r.collection.FindOne(ctx, bson.M{"sessionId": sessionID}, &record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, application.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return &record, nil
}

// Delete removes the record. Unknown ids return application.ErrSessionNotFound.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	if result.DeletedCount == 0 {
		return application.ErrSessionNotFound
	}
	return nil
}

// FindByDevice returns the sessions last used on deviceID, newest first, so
// a restarted handheld can offer to resume.
func (r *SessionRepository) FindByDevice(ctx context.Context, deviceID string, limit int64) ([]application.SessionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	records := []application.SessionRecord{}
	if err := r.collection.FindAll(ctx, bson.M{"deviceId": deviceID}, &records, opts); err != nil {
		return nil, fmt.Errorf("failed to list sessions for device %s: %w", deviceID, err)
	}
	return records, nil
}

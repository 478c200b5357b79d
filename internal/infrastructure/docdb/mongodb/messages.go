package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unifiedui/livechat-service/internal/core/docdb"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// MessagesCollectionName is the name of the archive collection.
const MessagesCollectionName = "chat_messages"

// archivedMessage is the stored form of a message.
type archivedMessage struct {
	models.Message `bson:",inline"`
	ArchivedAt     time.Time `bson:"archivedAt"`
}

// MessagesCollection implements docdb.MessagesCollection for MongoDB.
type MessagesCollection struct {
	collection *mongo.Collection
}

// NewMessagesCollection creates a new messages collection wrapper.
func NewMessagesCollection(db *mongo.Database) *MessagesCollection {
	return &MessagesCollection{
		collection: db.Collection(MessagesCollectionName),
	}
}

// Add archives a message. Re-archiving the same ID is ignored.
func (c *MessagesCollection) Add(ctx context.Context, message *models.Message) error {
	if message == nil || message.ID == "" {
		return fmt.Errorf("message ID is required")
	}
	if message.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	doc := archivedMessage{Message: *message, ArchivedAt: time.Now().UTC()}
	_, err := c.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to archive message: %w", err)
	}
	return nil
}

// ListBySession lists archived messages with pagination and sorting.
func (c *MessagesCollection) ListBySession(ctx context.Context, opts *docdb.ListMessagesOptions) ([]models.Message, error) {
	if opts == nil || opts.SessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	cursor, err := c.collection.Find(ctx, bson.M{"sessionId": opts.SessionID}, buildFindOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []archivedMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	out := make([]models.Message, len(docs))
	for i := range docs {
		out[i] = docs[i].Message
	}
	return out, nil
}

// CountBySession returns how many messages a session archived.
func (c *MessagesCollection) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	n, err := c.collection.CountDocuments(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// DeleteBySession removes the archive of a session.
func (c *MessagesCollection) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("session ID is required")
	}
	result, err := c.collection.DeleteMany(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return result.DeletedCount, nil
}

// EnsureIndexes creates necessary indexes for the archive.
func (c *MessagesCollection) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "sessionId", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_session_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "archivedAt", Value: -1}},
			Options: options.Index().SetName("idx_archived_at"),
		},
	}

	if _, err := c.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create messages indexes: %w", err)
	}
	return nil
}

// buildFindOptions creates MongoDB find options from list options.
func buildFindOptions(opts *docdb.ListMessagesOptions) *options.FindOptions {
	findOpts := options.Find()

	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}

	sortOrder := -1
	if opts.OrderBy == docdb.SortOrderAsc {
		sortOrder = 1
	}
	findOpts.SetSort(bson.D{{Key: "timestamp", Value: sortOrder}})

	return findOpts
}

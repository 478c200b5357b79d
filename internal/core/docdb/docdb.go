// Package docdb defines the document database used as the durable conversation archive.
package docdb

import (
	"context"

	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// Type represents the type of document database.
type Type string

const (
	// TypeMongoDB represents a MongoDB database.
	TypeMongoDB Type = "mongodb"
	// TypeCosmosDB represents an Azure Cosmos DB database (MongoDB API).
	TypeCosmosDB Type = "cosmosdb"
	// TypeNone disables archiving.
	TypeNone Type = "none"
)

// SortOrder represents the sort direction.
type SortOrder string

const (
	// SortOrderAsc represents ascending order.
	SortOrderAsc SortOrder = "asc"
	// SortOrderDesc represents descending order.
	SortOrderDesc SortOrder = "desc"
)

// ListMessagesOptions contains options for listing archived messages.
type ListMessagesOptions struct {
	SessionID string
	Limit     int64
	Skip      int64
	OrderBy   SortOrder // by timestamp, default desc
}

// MessagesCollection stores every message that passed through a session.
type MessagesCollection interface {
	// Add archives a message. Adding an ID twice is not an error.
	Add(ctx context.Context, message *models.Message) error

	// ListBySession lists archived messages of one session.
	ListBySession(ctx context.Context, opts *ListMessagesOptions) ([]models.Message, error)

	// CountBySession returns how many messages a session archived.
	CountBySession(ctx context.Context, sessionID string) (int64, error)

	// DeleteBySession removes a session's archive.
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)

	// EnsureIndexes creates necessary indexes for the collection.
	EnsureIndexes(ctx context.Context) error
}

// Client defines the interface for a document database client.
type Client interface {
	// Messages returns the message archive.
	Messages() MessagesCollection

	// EnsureIndexes creates all necessary indexes.
	EnsureIndexes(ctx context.Context) error

	// Ping verifies the database connection.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close(ctx context.Context) error
}

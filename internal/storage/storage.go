// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"kufar_bot/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	SetFilterURL(ctx context.Context, chatID int64, url string) error
	ClearFilterURL(ctx context.Context, chatID int64) error
	GetSubscriber(ctx context.Context, chatID int64) (*model.Subscriber, error)
	ListSubscribed(ctx context.Context) ([]model.Subscriber, error)

	WasSent(ctx context.Context, kufarID, chatID int64) (bool, error)
	MarkSent(ctx context.Context, listing *model.Listing, chatID int64) error

	Close() error
}

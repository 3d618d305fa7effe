package ports

import (
	"context"
	"errors"

	"feedbackpay/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key (deposit transaction,
	// wallet) is already taken.
	ErrDuplicate = errors.New("duplicate")
	// ErrNoSlotsRemaining is a normal outcome of TryConsume, not a failure.
	ErrNoSlotsRemaining = errors.New("no reward slots remaining")
)

// DocumentRepository stores documents. Creation fails with ErrDuplicate when
// the deposit transaction already backs another document.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc domain.Document) error
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	// ListOpenDocuments returns documents with remaining slots, newest first.
	ListOpenDocuments(ctx context.Context, offset, limit int) (docs []domain.Document, total int, err error)
	ListDocumentsByOwner(ctx context.Context, wallet string, offset, limit int) (docs []domain.Document, total int, err error)
}

// SlotLedger guards the remaining reward slots of a document.
//
// TryConsume must decrement by one only if the stored value is positive, as a
// single conditional update enforced by the data store. It returns the value
// left after the decrement, ErrNoSlotsRemaining, or ErrNotFound.
type SlotLedger interface {
	TryConsume(ctx context.Context, documentID string) (remaining int, err error)
	RemainingSlots(ctx context.Context, documentID string) (int, error)
}

// FeedbackRepository stores terminal feedback submissions. There is no
// update operation.
type FeedbackRepository interface {
	InsertFeedback(ctx context.Context, fb domain.FeedbackSubmission) error
	GetFeedback(ctx context.Context, id string) (domain.FeedbackSubmission, error)
	ListFeedbackByDocument(ctx context.Context, documentID string) ([]domain.FeedbackSubmission, error)
}

// UserRepository stores users by wallet address.
type UserRepository interface {
	GetOrCreateUser(ctx context.Context, wallet, nickname string) (domain.User, error)
	GetUserByWallet(ctx context.Context, wallet string) (domain.User, error)
}

// Store is the full persistence surface a backend provides.
type Store interface {
	DocumentRepository
	SlotLedger
	FeedbackRepository
	UserRepository
	Close()
}

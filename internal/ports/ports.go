package ports

import (
	"context"

	"feedbackpay/internal/domain"
)

// Deposits accepts documents backed by verified deposits.
type Deposits interface {
	PrepareDeposit(ctx context.Context, ownerWallet string, amount domain.Lamports, rewardSlots int) (domain.DepositIntent, error)
	SubmitDeposit(ctx context.Context, proof domain.DepositProof) (domain.Document, error)
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	ListOpen(ctx context.Context, page, limit int) (domain.Page[domain.Document], error)
	ListByOwner(ctx context.Context, wallet string, page, limit int) (domain.Page[domain.Document], error)
}

// Settlement runs feedback through the gate, the slot ledger and the reward
// payout.
type Settlement interface {
	Submit(ctx context.Context, documentID, reviewerWallet, content string) (domain.FeedbackSubmission, error)
	RemainingSlots(ctx context.Context, documentID string) (int, error)
	GetFeedback(ctx context.Context, id string) (domain.FeedbackSubmission, error)
	ListFeedback(ctx context.Context, documentID string) ([]domain.FeedbackSubmission, error)
}

// Users registers reviewers and document owners by wallet.
type Users interface {
	Signup(ctx context.Context, wallet string) (domain.User, error)
	Get(ctx context.Context, wallet string) (domain.User, error)
}

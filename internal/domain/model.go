package domain

import "time"

// Core domain models used internally. HTTP shapes live in the http adapter;
// keep these decoupled from any wire format.

// Document is a reviewable item backed by a verified on-chain deposit.
// RemainingSlots only ever moves through SlotLedger.TryConsume.
type Document struct {
	ID             string
	OwnerWallet    string
	Title          string
	Content        string
	DepositAmount  Lamports
	DepositTx      string
	RewardSlots    int
	RemainingSlots int
	CreatedAt      time.Time
}

// DepositProof is what a document owner claims to have paid. It is checked
// against the ledger and never persisted as-is.
type DepositProof struct {
	OwnerWallet string
	Title       string
	Content     string
	Amount      Lamports
	TxRef       string
	RewardSlots int // 0 means the configured default
}

// DepositIntent is an unsigned deposit transfer prepared for an owner's
// wallet to sign and send.
type DepositIntent struct {
	OwnerWallet   string
	EscrowAddress string
	Amount        Lamports
	RewardSlots   int
	Transaction   string // base64 wire transaction with an empty signature slot
}

type FeedbackStatus string

const (
	FeedbackPending         FeedbackStatus = "pending"
	FeedbackAIRejected      FeedbackStatus = "ai-rejected"
	FeedbackSlotUnavailable FeedbackStatus = "slot-unavailable"
	FeedbackRewardFailed    FeedbackStatus = "reward-failed"
	FeedbackSettled         FeedbackStatus = "settled"
)

// Terminal reports whether s is a final status.
func (s FeedbackStatus) Terminal() bool {
	switch s {
	case FeedbackAIRejected, FeedbackSlotUnavailable, FeedbackRewardFailed, FeedbackSettled:
		return true
	}
	return false
}

// RewardFailedRef marks a reward that was attempted and recorded as failed.
const RewardFailedRef = "FAILED"

// FeedbackSubmission is a review of a document. It is written once, in its
// terminal status.
type FeedbackSubmission struct {
	ID             string
	DocumentID     string
	ReviewerWallet string
	Content        string
	Status         FeedbackStatus
	GateReason     string
	RewardAmount   Lamports
	RewardTx       string
	RewardError    string
	CreatedAt      time.Time
}

type User struct {
	ID            string
	WalletAddress string
	Nickname      string
	CreatedAt     time.Time
}

// Page is one slice of a listing.
type Page[T any] struct {
	Items []T
	Total int
	Page  int
	Limit int
}

func (p Page[T]) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// Package settlement turns a feedback submission into exactly one terminal,
// persisted outcome: rejected, out of slots, paid, or paid-failed.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/metrics"
	"feedbackpay/internal/ports"
	"feedbackpay/internal/services/disbursement"
	"feedbackpay/internal/services/gate"
)

// ReasonAccepted is stored as the gate reason of approved feedback.
const ReasonAccepted = "feedback accepted"

// ErrInvalidInput is returned before any work is done for submissions that
// are missing a reviewer wallet or content.
var ErrInvalidInput = errors.New("invalid feedback")

// ContentGate judges feedback text.
type ContentGate interface {
	Evaluate(ctx context.Context, text string) gate.Verdict
}

// Disburser pays a reward.
type Disburser interface {
	Send(ctx context.Context, wallet string, amount domain.Lamports) (disbursement.Receipt, error)
}

type Service struct {
	docs      ports.DocumentRepository
	slots     ports.SlotLedger
	feedback  ports.FeedbackRepository
	gate      ContentGate
	disburser Disburser
	reward    domain.Lamports
	log       logrus.FieldLogger
	now       func() time.Time
}

var _ ports.Settlement = (*Service)(nil)

func New(
	docs ports.DocumentRepository,
	slots ports.SlotLedger,
	feedback ports.FeedbackRepository,
	g ContentGate,
	d Disburser,
	reward domain.Lamports,
	log logrus.FieldLogger,
) *Service {
	return &Service{
		docs:      docs,
		slots:     slots,
		feedback:  feedback,
		gate:      g,
		disburser: d,
		reward:    reward,
		log:       log,
		now:       time.Now,
	}
}

// Submit runs the submission through the gate, the slot ledger and the
// payout, then persists it once in its terminal status. It keeps running if
// the caller goes away; a reward failure is recorded on the submission, not
// returned as an error.
func (s *Service) Submit(ctx context.Context, documentID, reviewerWallet, content string) (domain.FeedbackSubmission, error) {
	reviewerWallet = strings.TrimSpace(reviewerWallet)
	if reviewerWallet == "" {
		return domain.FeedbackSubmission{}, fmt.Errorf("%w: reviewer wallet is required", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return domain.FeedbackSubmission{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}

	ctx = context.WithoutCancel(ctx)

	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return domain.FeedbackSubmission{}, err
	}

	fb := domain.FeedbackSubmission{
		ID:             uuid.NewString(),
		DocumentID:     documentID,
		ReviewerWallet: reviewerWallet,
		Content:        content,
		Status:         domain.FeedbackPending,
	}
	log := s.log.WithFields(logrus.Fields{
		"feedback_id": fb.ID,
		"document_id": documentID,
		"wallet":      reviewerWallet,
	})

	verdict := s.gate.Evaluate(ctx, content)
	if !verdict.Approved {
		fb.Status = domain.FeedbackAIRejected
		fb.GateReason = verdict.Reason
		return s.finish(ctx, log, fb)
	}
	fb.GateReason = ReasonAccepted

	left, err := s.slots.TryConsume(ctx, documentID)
	switch {
	case errors.Is(err, ports.ErrNoSlotsRemaining):
		metrics.RecordSlotConsume("empty")
		fb.Status = domain.FeedbackSlotUnavailable
		return s.finish(ctx, log, fb)
	case err != nil:
		metrics.RecordSlotConsume("error")
		return domain.FeedbackSubmission{}, fmt.Errorf("consume slot: %w", err)
	}
	metrics.RecordSlotConsume("consumed")
	log.WithField("remaining_slots", left).Debug("slot consumed")

	receipt, err := s.disburser.Send(ctx, reviewerWallet, s.reward)
	if err != nil {
		// The slot stays consumed.
		log.WithError(err).Warn("reward not paid")
		fb.Status = domain.FeedbackRewardFailed
		fb.RewardTx = domain.RewardFailedRef
		fb.RewardError = err.Error()
		return s.finish(ctx, log, fb)
	}
	fb.Status = domain.FeedbackSettled
	fb.RewardAmount = s.reward
	fb.RewardTx = receipt.Signature
	return s.finish(ctx, log, fb)
}

func (s *Service) finish(ctx context.Context, log logrus.FieldLogger, fb domain.FeedbackSubmission) (domain.FeedbackSubmission, error) {
	fb.CreatedAt = s.now().UTC()
	if err := s.feedback.InsertFeedback(ctx, fb); err != nil {
		entry := log.WithError(err).WithField("status", fb.Status)
		if fb.Status == domain.FeedbackSettled {
			entry = entry.WithField("signature", fb.RewardTx)
		}
		entry.Error("persist feedback")
		return domain.FeedbackSubmission{}, fmt.Errorf("persist feedback: %w", err)
	}
	metrics.RecordSettlement(string(fb.Status))
	log.WithField("status", fb.Status).Info("feedback settled")
	return fb, nil
}

func (s *Service) RemainingSlots(ctx context.Context, documentID string) (int, error) {
	return s.slots.RemainingSlots(ctx, documentID)
}

func (s *Service) GetFeedback(ctx context.Context, id string) (domain.FeedbackSubmission, error) {
	return s.feedback.GetFeedback(ctx, id)
}

// ListFeedback returns the submissions of a document, newest first.
func (s *Service) ListFeedback(ctx context.Context, documentID string) ([]domain.FeedbackSubmission, error) {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.feedback.ListFeedbackByDocument(ctx, documentID)
}

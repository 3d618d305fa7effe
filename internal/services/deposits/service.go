// Package deposits accepts documents backed by a verified ledger deposit.
package deposits

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
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxRewardSlots bounds the slots one deposit can buy.
	MaxRewardSlots = 10000
)

// ErrInvalidInput is returned for proofs that are refused before the ledger
// is consulted.
var ErrInvalidInput = errors.New("invalid deposit")

type Config struct {
	EscrowAddress      string
	RewardAmount       domain.Lamports
	DefaultRewardSlots int
}

type Service struct {
	verifier *Verifier
	builder  ports.TransferBuilder
	docs     ports.DocumentRepository
	cfg      Config
	log      logrus.FieldLogger
	now      func() time.Time
}

var _ ports.Deposits = (*Service)(nil)

func New(verifier *Verifier, builder ports.TransferBuilder, docs ports.DocumentRepository, cfg Config, log logrus.FieldLogger) *Service {
	return &Service{verifier: verifier, builder: builder, docs: docs, cfg: cfg, log: log, now: time.Now}
}

// PrepareDeposit builds the unsigned escrow transfer an owner signs to fund
// a document. The signed transaction's reference is later passed to
// SubmitDeposit.
func (s *Service) PrepareDeposit(ctx context.Context, ownerWallet string, amount domain.Lamports, rewardSlots int) (domain.DepositIntent, error) {
	ownerWallet = strings.TrimSpace(ownerWallet)
	switch {
	case ownerWallet == "":
		return domain.DepositIntent{}, fmt.Errorf("%w: owner wallet is required", ErrInvalidInput)
	case ownerWallet == s.cfg.EscrowAddress:
		return domain.DepositIntent{}, fmt.Errorf("%w: owner wallet is the escrow account", ErrInvalidInput)
	case amount == 0:
		return domain.DepositIntent{}, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidInput)
	case rewardSlots < 0:
		return domain.DepositIntent{}, fmt.Errorf("%w: reward slots cannot be negative", ErrInvalidInput)
	}
	if err := s.builder.ValidateAddress(ownerWallet); err != nil {
		return domain.DepositIntent{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	slots := s.slotsOrDefault(rewardSlots)
	if err := s.checkCoverage(amount, slots, ""); err != nil {
		return domain.DepositIntent{}, err
	}

	tx, err := s.builder.BuildTransfer(ctx, ownerWallet, s.cfg.EscrowAddress, amount)
	if err != nil {
		return domain.DepositIntent{}, fmt.Errorf("build deposit transfer: %w", err)
	}
	s.log.WithFields(logrus.Fields{"wallet": ownerWallet, "lamports": uint64(amount)}).Debug("deposit prepared")
	return domain.DepositIntent{
		OwnerWallet:   ownerWallet,
		EscrowAddress: s.cfg.EscrowAddress,
		Amount:        amount,
		RewardSlots:   slots,
		Transaction:   tx,
	}, nil
}

// SubmitDeposit verifies proof on the ledger and creates the document it
// pays for. A transaction reference backs at most one document.
func (s *Service) SubmitDeposit(ctx context.Context, proof domain.DepositProof) (domain.Document, error) {
	if err := s.checkProof(&proof); err != nil {
		return domain.Document{}, err
	}

	slots := s.slotsOrDefault(proof.RewardSlots)
	if err := s.checkCoverage(proof.Amount, slots, proof.TxRef); err != nil {
		return domain.Document{}, err
	}

	log := s.log.WithFields(logrus.Fields{"wallet": proof.OwnerWallet, "tx": proof.TxRef})

	verified, err := s.verifier.Verify(ctx, proof.TxRef, proof.OwnerWallet, s.cfg.EscrowAddress, proof.Amount)
	if err != nil {
		var derr *Error
		if errors.As(err, &derr) {
			metrics.RecordDepositVerification(string(derr.Kind))
			log.WithError(err).Info("deposit refused")
		} else {
			metrics.RecordDepositVerification("error")
			log.WithError(err).Warn("deposit verification failed")
		}
		return domain.Document{}, err
	}
	metrics.RecordDepositVerification("ok")

	doc := domain.Document{
		ID:             uuid.NewString(),
		OwnerWallet:    verified.Payer,
		Title:          proof.Title,
		Content:        proof.Content,
		DepositAmount:  verified.Amount,
		DepositTx:      verified.TxRef,
		RewardSlots:    slots,
		RemainingSlots: slots,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.docs.CreateDocument(ctx, doc); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return domain.Document{}, &Error{Kind: KindAlreadyUsed, TxRef: proof.TxRef, Msg: "deposit already backs a document"}
		}
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}

	log.WithFields(logrus.Fields{"document_id": doc.ID, "slots": slots}).Info("document accepted")
	return doc, nil
}

func (s *Service) slotsOrDefault(slots int) int {
	if slots == 0 {
		return s.cfg.DefaultRewardSlots
	}
	return slots
}

// checkCoverage refuses slot counts the deposit cannot pay for. The
// comparison divides so that large slot counts cannot wrap the product.
func (s *Service) checkCoverage(amount domain.Lamports, slots int, txRef string) error {
	if slots > MaxRewardSlots {
		return fmt.Errorf("%w: at most %d reward slots per document", ErrInvalidInput, MaxRewardSlots)
	}
	if s.cfg.RewardAmount == 0 {
		return nil
	}
	if uint64(slots) > uint64(amount)/uint64(s.cfg.RewardAmount) {
		return &Error{
			Kind:  KindInsufficientDeposit,
			TxRef: txRef,
			Msg:   fmt.Sprintf("%d slots at %s SOL each exceed the deposit of %s SOL", slots, s.cfg.RewardAmount.SOL(), amount.SOL()),
		}
	}
	return nil
}

func (s *Service) checkProof(p *domain.DepositProof) error {
	p.OwnerWallet = strings.TrimSpace(p.OwnerWallet)
	p.TxRef = strings.TrimSpace(p.TxRef)
	p.Title = strings.TrimSpace(p.Title)
	switch {
	case p.OwnerWallet == "":
		return fmt.Errorf("%w: owner wallet is required", ErrInvalidInput)
	case strings.TrimSpace(p.Content) == "":
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	case p.Amount == 0:
		return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidInput)
	case p.RewardSlots < 0:
		return fmt.Errorf("%w: reward slots cannot be negative", ErrInvalidInput)
	}
	return nil
}

func (s *Service) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return s.docs.GetDocument(ctx, id)
}

// ListOpen returns documents that still have reward slots, newest first.
func (s *Service) ListOpen(ctx context.Context, page, limit int) (domain.Page[domain.Document], error) {
	page, limit = normalizePage(page, limit)
	docs, total, err := s.docs.ListOpenDocuments(ctx, (page-1)*limit, limit)
	if err != nil {
		return domain.Page[domain.Document]{}, err
	}
	return domain.Page[domain.Document]{Items: docs, Total: total, Page: page, Limit: limit}, nil
}

// ListByOwner returns every document of wallet, newest first.
func (s *Service) ListByOwner(ctx context.Context, wallet string, page, limit int) (domain.Page[domain.Document], error) {
	page, limit = normalizePage(page, limit)
	docs, total, err := s.docs.ListDocumentsByOwner(ctx, wallet, (page-1)*limit, limit)
	if err != nil {
		return domain.Page[domain.Document]{}, err
	}
	return domain.Page[domain.Document]{Items: docs, Total: total, Page: page, Limit: limit}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

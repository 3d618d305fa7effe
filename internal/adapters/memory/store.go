// Package memory is an in-process Store used in development and tests. It
// gives the same guarantees as the postgres store within one process only.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/ports"
)

type Store struct {
	mu        sync.Mutex
	docs      map[string]domain.Document
	depositTx map[string]string // deposit tx -> document id
	feedback  map[string]domain.FeedbackSubmission
	users     map[string]domain.User // by wallet
	now       func() time.Time
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		docs:      make(map[string]domain.Document),
		depositTx: make(map[string]string),
		feedback:  make(map[string]domain.FeedbackSubmission),
		users:     make(map[string]domain.User),
		now:       time.Now,
	}
}

func (s *Store) Close() {}

func (s *Store) CreateDocument(_ context.Context, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.depositTx[doc.DepositTx]; ok {
		return ports.ErrDuplicate
	}
	if _, ok := s.docs[doc.ID]; ok {
		return ports.ErrDuplicate
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now().UTC()
	}
	s.docs[doc.ID] = doc
	s.depositTx[doc.DepositTx] = doc.ID
	return nil
}

func (s *Store) GetDocument(_ context.Context, id string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, ports.ErrNotFound
	}
	return doc, nil
}

func (s *Store) ListOpenDocuments(_ context.Context, offset, limit int) ([]domain.Document, int, error) {
	return s.listDocuments(offset, limit, func(d domain.Document) bool { return d.RemainingSlots > 0 })
}

func (s *Store) ListDocumentsByOwner(_ context.Context, wallet string, offset, limit int) ([]domain.Document, int, error) {
	return s.listDocuments(offset, limit, func(d domain.Document) bool { return d.OwnerWallet == wallet })
}

func (s *Store) listDocuments(offset, limit int, keep func(domain.Document) bool) ([]domain.Document, int, error) {
	s.mu.Lock()
	var all []domain.Document
	for _, d := range s.docs {
		if keep(d) {
			all = append(all, d)
		}
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	if offset >= total {
		return []domain.Document{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

// TryConsume decrements under the store lock, so the check and the
// decrement cannot interleave with another caller.
func (s *Store) TryConsume(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return 0, ports.ErrNotFound
	}
	if doc.RemainingSlots <= 0 {
		return 0, ports.ErrNoSlotsRemaining
	}
	doc.RemainingSlots--
	s.docs[documentID] = doc
	return doc.RemainingSlots, nil
}

func (s *Store) RemainingSlots(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return 0, ports.ErrNotFound
	}
	return doc.RemainingSlots, nil
}

func (s *Store) InsertFeedback(_ context.Context, fb domain.FeedbackSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.feedback[fb.ID]; ok {
		return ports.ErrDuplicate
	}
	if _, ok := s.docs[fb.DocumentID]; !ok {
		return ports.ErrNotFound
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now().UTC()
	}
	s.feedback[fb.ID] = fb
	return nil
}

func (s *Store) GetFeedback(_ context.Context, id string) (domain.FeedbackSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb, ok := s.feedback[id]
	if !ok {
		return domain.FeedbackSubmission{}, ports.ErrNotFound
	}
	return fb, nil
}

func (s *Store) ListFeedbackByDocument(_ context.Context, documentID string) ([]domain.FeedbackSubmission, error) {
	s.mu.Lock()
	out := []domain.FeedbackSubmission{}
	for _, fb := range s.feedback {
		if fb.DocumentID == documentID {
			out = append(out, fb)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetOrCreateUser(_ context.Context, wallet, nickname string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[wallet]; ok {
		return u, nil
	}
	u := domain.User{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		Nickname:      nickname,
		CreatedAt:     s.now().UTC(),
	}
	s.users[wallet] = u
	return u, nil
}

func (s *Store) GetUserByWallet(_ context.Context, wallet string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[wallet]
	if !ok {
		return domain.User{}, ports.ErrNotFound
	}
	return u, nil
}

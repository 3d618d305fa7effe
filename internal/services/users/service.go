package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/ports"
)

// ErrInvalidWallet is returned for wallet strings that are not ledger addresses.
var ErrInvalidWallet = errors.New("invalid wallet address")

// AddressValidator checks that a string is a well-formed ledger address.
type AddressValidator interface {
	ValidateAddress(address string) error
}

type Service struct {
	users   ports.UserRepository
	address AddressValidator
}

var _ ports.Users = (*Service)(nil)

func New(users ports.UserRepository, address AddressValidator) *Service {
	return &Service{users: users, address: address}
}

// Signup returns the user of wallet, creating it on first sight with the
// wallet as nickname.
func (s *Service) Signup(ctx context.Context, wallet string) (domain.User, error) {
	wallet = strings.TrimSpace(wallet)
	if err := s.address.ValidateAddress(wallet); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}
	return s.users.GetOrCreateUser(ctx, wallet, wallet)
}

func (s *Service) Get(ctx context.Context, wallet string) (domain.User, error) {
	return s.users.GetUserByWallet(ctx, strings.TrimSpace(wallet))
}

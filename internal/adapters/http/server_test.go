package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/logging"
	"feedbackpay/internal/ports"
	"feedbackpay/internal/services/deposits"
	"feedbackpay/internal/services/settlement"
	"feedbackpay/internal/services/users"
)

type fakeDeposits struct {
	prepare  func(owner string, amount domain.Lamports, slots int) (domain.DepositIntent, error)
	submit   func(domain.DepositProof) (domain.Document, error)
	docs     map[string]domain.Document
	lastPage [2]int
}

func (f *fakeDeposits) PrepareDeposit(_ context.Context, owner string, amount domain.Lamports, slots int) (domain.DepositIntent, error) {
	return f.prepare(owner, amount, slots)
}

func (f *fakeDeposits) SubmitDeposit(_ context.Context, p domain.DepositProof) (domain.Document, error) {
	return f.submit(p)
}

func (f *fakeDeposits) GetDocument(_ context.Context, id string) (domain.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return domain.Document{}, ports.ErrNotFound
	}
	return d, nil
}

func (f *fakeDeposits) ListOpen(_ context.Context, page, limit int) (domain.Page[domain.Document], error) {
	f.lastPage = [2]int{page, limit}
	items := []domain.Document{}
	for _, d := range f.docs {
		items = append(items, d)
	}
	return domain.Page[domain.Document]{Items: items, Total: 21, Page: max(page, 1), Limit: 10}, nil
}

func (f *fakeDeposits) ListByOwner(_ context.Context, wallet string, page, limit int) (domain.Page[domain.Document], error) {
	return domain.Page[domain.Document]{Items: nil, Page: 1, Limit: 10}, errors.New("db down")
}

type fakeSettlement struct {
	submit func(documentID, wallet, content string) (domain.FeedbackSubmission, error)
}

func (f *fakeSettlement) Submit(_ context.Context, documentID, wallet, content string) (domain.FeedbackSubmission, error) {
	return f.submit(documentID, wallet, content)
}

func (f *fakeSettlement) RemainingSlots(_ context.Context, id string) (int, error) {
	if id != "doc-1" {
		return 0, ports.ErrNotFound
	}
	return 2, nil
}

func (f *fakeSettlement) GetFeedback(_ context.Context, id string) (domain.FeedbackSubmission, error) {
	return domain.FeedbackSubmission{}, ports.ErrNotFound
}

func (f *fakeSettlement) ListFeedback(_ context.Context, id string) ([]domain.FeedbackSubmission, error) {
	return []domain.FeedbackSubmission{{ID: "f1", DocumentID: id, Status: domain.FeedbackSettled}}, nil
}

type fakeUsers struct{}

func (fakeUsers) Signup(_ context.Context, wallet string) (domain.User, error) {
	if wallet == "bad" {
		return domain.User{}, fmt.Errorf("%w: nope", users.ErrInvalidWallet)
	}
	return domain.User{ID: "u1", WalletAddress: wallet, Nickname: wallet}, nil
}

func (fakeUsers) Get(context.Context, string) (domain.User, error) {
	return domain.User{}, ports.ErrNotFound
}

type fakeBalances struct{}

func (fakeBalances) ValidateAddress(a string) error {
	if a == "bad" {
		return errors.New("invalid address")
	}
	return nil
}

func (fakeBalances) GetBalance(context.Context, string) (domain.Lamports, error) {
	return 1_500_000_000, nil
}

type denyAfter struct{ n int }

func (d *denyAfter) Allow(context.Context, string) (bool, error) {
	d.n--
	return d.n >= 0, nil
}

type fixture struct {
	deposits   *fakeDeposits
	settlement *fakeSettlement
	handler    http.Handler
}

func newFixture(limiter Limiter) *fixture {
	f := &fixture{
		deposits: &fakeDeposits{docs: map[string]domain.Document{
			"doc-1": {ID: "doc-1", OwnerWallet: "owner", DepositAmount: 30_000_000, RewardSlots: 3, RemainingSlots: 2},
		}},
		settlement: &fakeSettlement{},
	}
	f.handler = New(f.deposits, f.settlement, fakeUsers{}, fakeBalances{}, limiter, logging.Discard()).Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "error body: %v", body)
	return e["code"].(string)
}

func TestHealthz(t *testing.T) {
	rec, body := newFixture(nil).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestPostDocument(t *testing.T) {
	f := newFixture(nil)
	var got domain.DepositProof
	f.deposits.submit = func(p domain.DepositProof) (domain.Document, error) {
		got = p
		return domain.Document{ID: "new", DepositAmount: p.Amount, RewardSlots: 3, RemainingSlots: 3}, nil
	}

	rec, body := f.do(t, http.MethodPost, "/documents",
		`{"owner_wallet":"owner","title":"t","content":"c","deposit_amount":0.5,"deposit_tx":"sig"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.Lamports(500_000_000), got.Amount)
	assert.Equal(t, "sig", got.TxRef)
	assert.Equal(t, "new", body["id"])
	assert.Equal(t, "0.5", body["deposit_sol"])
	assert.EqualValues(t, 500_000_000, body["deposit_amount"])
}

func TestPostDocumentErrors(t *testing.T) {
	f := newFixture(nil)
	cases := []struct {
		name   string
		err    error
		body   string
		status int
		code   string
	}{
		{"mismatch", &deposits.Error{Kind: deposits.KindAmountMismatch, TxRef: "sig"}, "", http.StatusUnprocessableEntity, "deposit_amount_mismatch"},
		{"recipient", &deposits.Error{Kind: deposits.KindWrongRecipient}, "", http.StatusUnprocessableEntity, "deposit_wrong_recipient"},
		{"not found", &deposits.Error{Kind: deposits.KindNotFound}, "", http.StatusUnprocessableEntity, "deposit_not_found"},
		{"reused", &deposits.Error{Kind: deposits.KindAlreadyUsed}, "", http.StatusConflict, "deposit_already_used"},
		{"invalid", fmt.Errorf("%w: content is required", deposits.ErrInvalidInput), "", http.StatusBadRequest, "invalid_request"},
		{"internal", errors.New("boom"), "", http.StatusInternalServerError, "internal"},
		{"bad amount", nil, `{"deposit_amount":"1.0000000001"}`, http.StatusBadRequest, "invalid_amount"},
		{"unknown field", nil, `{"owner":"x"}`, http.StatusBadRequest, "invalid_json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.deposits.submit = func(domain.DepositProof) (domain.Document, error) { return domain.Document{}, tc.err }
			body := tc.body
			if body == "" {
				body = `{"owner_wallet":"o","content":"c","deposit_amount":"1","deposit_tx":"sig"}`
			}
			rec, out := f.do(t, http.MethodPost, "/documents", body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, errorCode(t, out))
			assert.NotEmpty(t, out["request_id"])
		})
	}
}

func TestPrepareDeposit(t *testing.T) {
	f := newFixture(nil)
	f.deposits.prepare = func(owner string, amount domain.Lamports, slots int) (domain.DepositIntent, error) {
		if slots > deposits.MaxRewardSlots {
			return domain.DepositIntent{}, fmt.Errorf("%w: too many slots", deposits.ErrInvalidInput)
		}
		if slots > 10 {
			return domain.DepositIntent{}, &deposits.Error{Kind: deposits.KindInsufficientDeposit}
		}
		return domain.DepositIntent{OwnerWallet: owner, EscrowAddress: "escrow", Amount: amount, RewardSlots: max(slots, 3), Transaction: "AQID"}, nil
	}

	rec, body := f.do(t, http.MethodPost, "/deposits/prepare", `{"owner_wallet":"owner","deposit_amount":"0.1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "escrow", body["escrow_address"])
	assert.EqualValues(t, 100_000_000, body["deposit_amount"])
	assert.Equal(t, "0.1", body["deposit_sol"])
	assert.EqualValues(t, 3, body["reward_slots"])
	assert.Equal(t, "AQID", body["transaction"])

	rec, body = f.do(t, http.MethodPost, "/deposits/prepare", `{"owner_wallet":"owner","deposit_amount":"0.1","reward_slots":11}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "deposit_insufficient_deposit", errorCode(t, body))

	rec, body = f.do(t, http.MethodPost, "/deposits/prepare", `{"owner_wallet":"owner","deposit_amount":"1","reward_slots":1844674407371}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorCode(t, body))

	rec, body = f.do(t, http.MethodPost, "/deposits/prepare", `{"owner_wallet":"owner","deposit_amount":"1.0000000001"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_amount", errorCode(t, body))
}

func TestDocumentsRead(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodGet, "/documents?page=2&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]int{2, 5}, f.deposits.lastPage)
	assert.EqualValues(t, 21, body["total"])
	assert.EqualValues(t, 3, body["total_pages"])

	rec, body = f.do(t, http.MethodGet, "/documents?page=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_query", errorCode(t, body))

	rec, body = f.do(t, http.MethodGet, "/documents/doc-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["remaining_slots"])

	rec, body = f.do(t, http.MethodGet, "/documents/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, body))

	rec, body = f.do(t, http.MethodGet, "/documents/doc-1/slots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["remaining_slots"])

	rec, _ = f.do(t, http.MethodGet, "/wallets/owner/documents", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPostFeedbackReturnsTerminalStatus(t *testing.T) {
	for _, status := range []domain.FeedbackStatus{
		domain.FeedbackSettled,
		domain.FeedbackAIRejected,
		domain.FeedbackSlotUnavailable,
		domain.FeedbackRewardFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(nil)
			f.settlement.submit = func(id, wallet, content string) (domain.FeedbackSubmission, error) {
				return domain.FeedbackSubmission{ID: "fb", DocumentID: id, ReviewerWallet: wallet, Content: content, Status: status}, nil
			}
			rec, body := f.do(t, http.MethodPost, "/documents/doc-1/feedback", `{"reviewer_wallet":"rev","content":"good review"}`)
			require.Equal(t, http.StatusCreated, rec.Code)
			assert.Equal(t, string(status), body["status"])
			assert.Equal(t, "doc-1", body["document_id"])
		})
	}
}

func TestPostFeedbackErrors(t *testing.T) {
	f := newFixture(nil)
	f.settlement.submit = func(id, _, _ string) (domain.FeedbackSubmission, error) {
		if id == "missing" {
			return domain.FeedbackSubmission{}, ports.ErrNotFound
		}
		return domain.FeedbackSubmission{}, fmt.Errorf("%w: content is required", settlement.ErrInvalidInput)
	}
	rec, _ := f.do(t, http.MethodPost, "/documents/missing/feedback", `{"reviewer_wallet":"r","content":"c"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/documents/doc-1/feedback", `{"reviewer_wallet":"r","content":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackRead(t *testing.T) {
	f := newFixture(nil)
	rec, body := f.do(t, http.MethodGet, "/documents/doc-1/feedback", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["items"], 1)

	rec, _ = f.do(t, http.MethodGet, "/feedback/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsersAndBalance(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodPost, "/users", `{"wallet_address":"w1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "w1", body["nickname"])

	rec, _ = f.do(t, http.MethodPost, "/users", `{"wallet_address":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/users/w1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = f.do(t, http.MethodGet, "/wallets/w1/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.5", body["sol"])
	assert.EqualValues(t, 1_500_000_000, body["lamports"])

	rec, body = f.do(t, http.MethodGet, "/wallets/bad/balance", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_address", errorCode(t, body))
}

func TestFeedbackRateLimited(t *testing.T) {
	f := newFixture(&denyAfter{n: 1})
	f.settlement.submit = func(id, _, _ string) (domain.FeedbackSubmission, error) {
		return domain.FeedbackSubmission{ID: "fb", DocumentID: id, Status: domain.FeedbackSettled}, nil
	}
	rec, _ := f.do(t, http.MethodPost, "/documents/doc-1/feedback", `{"reviewer_wallet":"r","content":"c"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, body := f.do(t, http.MethodPost, "/documents/doc-1/feedback", `{"reviewer_wallet":"r","content":"c"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCode(t, body))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Reads are not limited.
	rec, _ = f.do(t, http.MethodGet, "/documents/doc-1/slots", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(nil)
	f.do(t, http.MethodGet, "/healthz", "")
	rec, _ := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "feedbackpay_http_requests_total")
}

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter(2)
	ctx := context.Background()
	for i := range 2 {
		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok)
	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok)
}

func TestRedisLimiterFallsBackWhenUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewRedisLimiter(client, 1).Allow(context.Background(), "k")
	require.Error(t, err)

	l := WithFallback(NewRedisLimiter(client, 1), NewLocalLimiter(1), logging.Discard())
	ok, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/metrics"
	"feedbackpay/internal/ports"
)

type Server struct {
	deposits   ports.Deposits
	settlement ports.Settlement
	users      ports.Users
	balances   ports.BalanceReader
	limiter    Limiter
	log        logrus.FieldLogger
}

// New builds the HTTP server. limiter may be nil to disable rate limiting.
func New(deposits ports.Deposits, settlement ports.Settlement, users ports.Users, balances ports.BalanceReader, limiter Limiter, log logrus.FieldLogger) *Server {
	return &Server{
		deposits:   deposits,
		settlement: settlement,
		users:      users,
		balances:   balances,
		limiter:    limiter,
		log:        log,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", s.getHealthz)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/users", s.postUser)
	r.Get("/users/{wallet}", s.getUser)

	r.Post("/deposits/prepare", s.prepareDeposit)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", s.postDocument)
		r.Get("/", s.listDocuments)
		r.Get("/{id}", s.getDocument)
		r.Get("/{id}/slots", s.getSlots)
		r.With(s.rateLimit).Post("/{id}/feedback", s.postFeedback)
		r.Get("/{id}/feedback", s.listFeedback)
	})
	r.Get("/feedback/{id}", s.getFeedback)

	r.Get("/wallets/{address}/documents", s.listWalletDocuments)
	r.Get("/wallets/{address}/balance", s.getBalance)
	return r
}

type documentResponse struct {
	ID             string    `json:"id"`
	OwnerWallet    string    `json:"owner_wallet"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	DepositAmount  uint64    `json:"deposit_amount"`
	DepositSOL     string    `json:"deposit_sol"`
	DepositTx      string    `json:"deposit_tx"`
	RewardSlots    int       `json:"reward_slots"`
	RemainingSlots int       `json:"remaining_slots"`
	CreatedAt      time.Time `json:"created_at"`
}

func toDocumentResponse(d domain.Document) documentResponse {
	return documentResponse{
		ID:             d.ID,
		OwnerWallet:    d.OwnerWallet,
		Title:          d.Title,
		Content:        d.Content,
		DepositAmount:  uint64(d.DepositAmount),
		DepositSOL:     d.DepositAmount.SOL(),
		DepositTx:      d.DepositTx,
		RewardSlots:    d.RewardSlots,
		RemainingSlots: d.RemainingSlots,
		CreatedAt:      d.CreatedAt,
	}
}

type feedbackResponse struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	ReviewerWallet string    `json:"reviewer_wallet"`
	Content        string    `json:"content"`
	Status         string    `json:"status"`
	GateReason     string    `json:"gate_reason"`
	RewardAmount   uint64    `json:"reward_amount"`
	RewardTx       string    `json:"reward_tx,omitempty"`
	RewardError    string    `json:"reward_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toFeedbackResponse(f domain.FeedbackSubmission) feedbackResponse {
	return feedbackResponse{
		ID:             f.ID,
		DocumentID:     f.DocumentID,
		ReviewerWallet: f.ReviewerWallet,
		Content:        f.Content,
		Status:         string(f.Status),
		GateReason:     f.GateReason,
		RewardAmount:   uint64(f.RewardAmount),
		RewardTx:       f.RewardTx,
		RewardError:    f.RewardError,
		CreatedAt:      f.CreatedAt,
	}
}

type pageResponse[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

func toDocumentPage(p domain.Page[domain.Document]) pageResponse[documentResponse] {
	items := make([]documentResponse, 0, len(p.Items))
	for _, d := range p.Items {
		items = append(items, toDocumentResponse(d))
	}
	return pageResponse[documentResponse]{Items: items, Total: p.Total, Page: p.Page, Limit: p.Limit, TotalPages: p.TotalPages()}
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type userResponse struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	Nickname      string    `json:"nickname"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Server) postUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return
	}
	u, err := s.users.Signup(r.Context(), req.WalletAddress)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(u))
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(u))
}

type prepareRequest struct {
	OwnerWallet   string      `json:"owner_wallet"`
	DepositAmount json.Number `json:"deposit_amount"` // SOL
	RewardSlots   int         `json:"reward_slots"`
}

type prepareResponse struct {
	OwnerWallet   string `json:"owner_wallet"`
	EscrowAddress string `json:"escrow_address"`
	DepositAmount uint64 `json:"deposit_amount"`
	DepositSOL    string `json:"deposit_sol"`
	RewardSlots   int    `json:"reward_slots"`
	Transaction   string `json:"transaction"`
}

// prepareDeposit returns the unsigned escrow transfer for the owner's wallet
// to sign. Its signature is the deposit_tx of the later POST /documents.
func (s *Server) prepareDeposit(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return
	}
	amount, err := domain.ParseSOL(req.DepositAmount.String())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_amount", err.Error(), nil)
		return
	}
	intent, err := s.deposits.PrepareDeposit(r.Context(), req.OwnerWallet, amount, req.RewardSlots)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prepareResponse{
		OwnerWallet:   intent.OwnerWallet,
		EscrowAddress: intent.EscrowAddress,
		DepositAmount: uint64(intent.Amount),
		DepositSOL:    intent.Amount.SOL(),
		RewardSlots:   intent.RewardSlots,
		Transaction:   intent.Transaction,
	})
}

type documentRequest struct {
	OwnerWallet   string      `json:"owner_wallet"`
	Title         string      `json:"title"`
	Content       string      `json:"content"`
	DepositAmount json.Number `json:"deposit_amount"` // SOL
	DepositTx     string      `json:"deposit_tx"`
	RewardSlots   int         `json:"reward_slots"`
}

func (s *Server) postDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return
	}
	amount, err := domain.ParseSOL(req.DepositAmount.String())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_amount", err.Error(), nil)
		return
	}
	doc, err := s.deposits.SubmitDeposit(r.Context(), domain.DepositProof{
		OwnerWallet: req.OwnerWallet,
		Title:       req.Title,
		Content:     req.Content,
		Amount:      amount,
		TxRef:       req.DepositTx,
		RewardSlots: req.RewardSlots,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	p, err := s.deposits.ListOpen(r.Context(), page, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentPage(p))
}

func (s *Server) listWalletDocuments(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	p, err := s.deposits.ListByOwner(r.Context(), chi.URLParam(r, "address"), page, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentPage(p))
}

// pageParams reads page and limit; zero means the service default.
func pageParams(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	q := r.URL.Query()
	for name, dst := range map[string]*int{"page": &page, "limit": &limit} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "invalid_query", name+" must be a positive integer", nil)
			return 0, 0, false
		}
		*dst = n
	}
	return page, limit, true
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deposits.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) getSlots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.settlement.RemainingSlots(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "remaining_slots": n})
}

type feedbackRequest struct {
	ReviewerWallet string `json:"reviewer_wallet"`
	Content        string `json:"content"`
}

func (s *Server) postFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return
	}
	fb, err := s.settlement.Submit(r.Context(), chi.URLParam(r, "id"), req.ReviewerWallet, req.Content)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeedbackResponse(fb))
}

func (s *Server) listFeedback(w http.ResponseWriter, r *http.Request) {
	list, err := s.settlement.ListFeedback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items := make([]feedbackResponse, 0, len(list))
	for _, f := range list {
		items = append(items, toFeedbackResponse(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) getFeedback(w http.ResponseWriter, r *http.Request) {
	fb, err := s.settlement.GetFeedback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeedbackResponse(fb))
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := s.balances.ValidateAddress(address); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_address", err.Error(), nil)
		return
	}
	bal, err := s.balances.GetBalance(r.Context(), address)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":  address,
		"lamports": uint64(bal),
		"sol":      bal.SOL(),
	})
}

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"videogen-server/internal/domain"
	"videogen-server/internal/providers/videogen"
)

// memStore is an in-memory credit ledger + job store with the same
// settlement semantics as the PostgreSQL adapters.
type memStore struct {
	mu       sync.Mutex
	balances map[string]int
	videos   map[string]int
	jobs     map[string]*domain.Job
	order    []string

	reserveCalls int
	refundCalls  int
	failSettle   bool
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[string]int),
		videos:   make(map[string]int),
		jobs:     make(map[string]*domain.Job),
	}
}

func (s *memStore) Reserve(ctx context.Context, userID string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if balance < amount {
		return 0, domain.ErrInsufficientCredits
	}
	s.reserveCalls++
	s.balances[userID] = balance - amount
	s.videos[userID]++
	return s.balances[userID], nil
}

func (s *memStore) Refund(ctx context.Context, userID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refundCalls++
	s.balances[userID] += amount
	if s.videos[userID] > 0 {
		s.videos[userID]--
	}
	return nil
}

func (s *memStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.User{ID: userID, Credits: balance, VideosGenerated: s.videos[userID]}, nil
}

func (s *memStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	s.order = append(s.order, job.ID)
	return nil
}

func (s *memStore) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for i := len(s.order) - 1; i >= 0; i-- {
		job := s.jobs[s.order[i]]
		if job.UserID == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *memStore) ListOpen(ctx context.Context, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		job := s.jobs[s.order[i]]
		if !job.Status.IsTerminal() && job.ProviderTaskID != "" {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *memStore) SetProviderTask(ctx context.Context, jobID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.ProviderTaskID = taskID
	}
	return nil
}

func (s *memStore) MarkProcessing(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok && job.Status == domain.JobStatusPending {
		job.Status = domain.JobStatusProcessing
	}
	return nil
}

func (s *memStore) Complete(ctx context.Context, jobID, resultURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	now := time.Now()
	job.Status = domain.JobStatusCompleted
	job.ResultURL = resultURL
	job.CompletedAt = &now
	return true, nil
}

func (s *memStore) FailWithRefund(ctx context.Context, jobID, userID, message string, credits int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSettle {
		return false, errors.New("settlement unavailable")
	}
	job, ok := s.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	now := time.Now()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now
	s.refundCalls++
	s.balances[userID] += credits
	if s.videos[userID] > 0 {
		s.videos[userID]--
	}
	return true, nil
}

type stubGateway struct {
	mu          sync.Mutex
	submitErr   error
	submitCalls int
	lastSubmit  videogen.SubmitRequest
	pollResults map[string][]videogen.PollResult
	pollErr     map[string]error
	pollCalls   int
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		pollResults: make(map[string][]videogen.PollResult),
		pollErr:     make(map[string]error),
	}
}

func (g *stubGateway) SubmitJob(ctx context.Context, req videogen.SubmitRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	g.lastSubmit = req
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return fmt.Sprintf("task-%d", g.submitCalls), nil
}

func (g *stubGateway) Poll(ctx context.Context, taskID string) (*videogen.PollResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pollCalls++
	if err, ok := g.pollErr[taskID]; ok {
		return nil, err
	}
	queue := g.pollResults[taskID]
	if len(queue) == 0 {
		return &videogen.PollResult{State: videogen.StateQueued}, nil
	}
	res := queue[0]
	if len(queue) > 1 {
		g.pollResults[taskID] = queue[1:]
	}
	return &res, nil
}

type stubTranslator struct {
	err   error
	calls int
}

func (t *stubTranslator) Translate(ctx context.Context, prompt string) (*domain.NormalizedPrompt, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return &domain.NormalizedPrompt{Text: "translated: " + prompt}, nil
}

type stubNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *stubNotifier) Alert(ctx context.Context, subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
}

type fixture struct {
	store    *memStore
	gateway  *stubGateway
	trans    *stubTranslator
	notifier *stubNotifier
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	store.balances["user-1"] = 1000
	gateway := newStubGateway()
	trans := &stubTranslator{}
	notifier := &stubNotifier{}
	orch, err := NewOrchestrator(Options{
		Ledger:         store,
		Jobs:           store,
		Gateway:        gateway,
		Translator:     trans,
		Notifier:       notifier,
		CreditCost:     300,
		PromptMaxChars: 100,
		Logger:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return &fixture{store: store, gateway: gateway, trans: trans, notifier: notifier, orch: orch}
}

func TestSubmitReservesCreditsAndCreatesPendingJob(t *testing.T) {
	f := newFixture(t)

	job, err := f.orch.Submit(context.Background(), SubmitInput{UserID: "user-1", Prompt: "a cat on a skateboard"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.CreditsReserved != 300 {
		t.Fatalf("credits_reserved = %d, want 300", job.CreditsReserved)
	}
	if f.store.balances["user-1"] != 700 {
		t.Fatalf("balance = %d, want 700", f.store.balances["user-1"])
	}
	if job.ProviderTaskID == "" {
		t.Fatalf("expected provider task id to be recorded")
	}
	if f.gateway.lastSubmit.Prompt != "translated: a cat on a skateboard" {
		t.Fatalf("gateway got prompt %q, want the translated form", f.gateway.lastSubmit.Prompt)
	}
	stored, err := f.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("stored job missing: %v", err)
	}
	if stored.ProviderTaskID != job.ProviderTaskID {
		t.Fatalf("stored task id = %q, want %q", stored.ProviderTaskID, job.ProviderTaskID)
	}
}

func TestSubmitRejectsInvalidInputWithoutSideEffects(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		in   SubmitInput
	}{
		{name: "empty prompt", in: SubmitInput{UserID: "user-1", Prompt: ""}},
		{name: "prompt too long", in: SubmitInput{UserID: "user-1", Prompt: strings.Repeat("x", 101)}},
		{name: "malformed image ref", in: SubmitInput{UserID: "user-1", Prompt: "ok", ImageURLs: []string{"not-a-url"}}},
		{name: "ftp image ref", in: SubmitInput{UserID: "user-1", Prompt: "ok", ImageURLs: []string{"ftp://example.com/a.png"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job, err := f.orch.Submit(context.Background(), tc.in)
			if !errors.Is(err, domain.ErrInvalidPrompt) {
				t.Fatalf("err = %v, want ErrInvalidPrompt", err)
			}
			if job != nil {
				t.Fatalf("expected no job")
			}
		})
	}

	if f.store.reserveCalls != 0 || f.store.refundCalls != 0 {
		t.Fatalf("ledger touched: %d reserves, %d refunds", f.store.reserveCalls, f.store.refundCalls)
	}
	if len(f.store.jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(f.store.jobs))
	}
	if f.store.balances["user-1"] != 1000 {
		t.Fatalf("balance = %d, want 1000", f.store.balances["user-1"])
	}
}

func TestSubmitInsufficientCredits(t *testing.T) {
	f := newFixture(t)
	f.store.balances["user-1"] = 100

	job, err := f.orch.Submit(context.Background(), SubmitInput{UserID: "user-1", Prompt: "a dog"})
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if job != nil {
		t.Fatalf("expected no job")
	}
	if f.store.balances["user-1"] != 100 {
		t.Fatalf("balance = %d, want 100", f.store.balances["user-1"])
	}
	if len(f.store.jobs) != 0 {
		t.Fatalf("expected no jobs")
	}
	if f.gateway.submitCalls != 0 {
		t.Fatalf("provider should not have been called")
	}
}

func TestSubmitTranslationFailureHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.trans.err = fmt.Errorf("%w: upstream 503", domain.ErrTranslationFailed)

	job, err := f.orch.Submit(context.Background(), SubmitInput{UserID: "user-1", Prompt: "a dog"})
	if !errors.Is(err, domain.ErrTranslationFailed) {
		t.Fatalf("err = %v, want ErrTranslationFailed", err)
	}
	if job != nil {
		t.Fatalf("expected no job")
	}
	if f.store.reserveCalls != 0 {
		t.Fatalf("translation failure must precede reservation")
	}
	if f.store.balances["user-1"] != 1000 {
		t.Fatalf("balance = %d, want 1000", f.store.balances["user-1"])
	}
}

func TestSubmitProviderRejectionFailsJobAndRefunds(t *testing.T) {
	f := newFixture(t)
	f.gateway.submitErr = &videogen.APIError{StatusCode: 400, Code: "content_policy", Message: "policy violation: disallowed content"}

	job, err := f.orch.Submit(context.Background(), SubmitInput{UserID: "user-1", Prompt: "something dubious"})
	if err != nil {
		t.Fatalf("submit should return the job, not an error: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "content policy") {
		t.Fatalf("error message %q should carry the content-policy text", job.ErrorMessage)
	}
	if !strings.Contains(job.ErrorMessage, RefundNotice) {
		t.Fatalf("error message %q should confirm the refund", job.ErrorMessage)
	}
	if strings.Contains(job.ErrorMessage, "disallowed content") {
		t.Fatalf("raw provider text leaked into %q", job.ErrorMessage)
	}
	if f.store.balances["user-1"] != 1000 {
		t.Fatalf("balance = %d, want 1000 after refund", f.store.balances["user-1"])
	}
	if f.store.refundCalls != 1 {
		t.Fatalf("refunds = %d, want 1", f.store.refundCalls)
	}
	if len(f.notifier.subjects) != 0 {
		t.Fatalf("content-policy rejection should not page the operator")
	}
}

func TestSubmitCapacityRejectionAlertsOperator(t *testing.T) {
	f := newFixture(t)
	f.gateway.submitErr = &videogen.APIError{StatusCode: 402, Code: "out_of_budget", Message: "account balance exhausted"}

	job, err := f.orch.Submit(context.Background(), SubmitInput{UserID: "user-1", Prompt: "a sunrise"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if f.store.balances["user-1"] != 1000 {
		t.Fatalf("balance = %d, want 1000", f.store.balances["user-1"])
	}
	if len(f.notifier.subjects) != 1 {
		t.Fatalf("alerts = %d, want 1", len(f.notifier.subjects))
	}
}

func TestReconcileLifecycleToCompletion(t *testing.T) {
	f := newFixture(t)
	job, err := f.orch.Submit(context.Background(), SubmitInput{UserID: "user-1", Prompt: "a whale"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.gateway.pollResults[job.ProviderTaskID] = []videogen.PollResult{
		{State: videogen.StateQueued},
		{State: videogen.StateRunning},
		{State: videogen.StateSucceeded, ResultURL: "https://cdn.example.com/v/whale.mp4"},
	}

	if err := f.orch.PollOnce(context.Background(), job); err != nil {
		t.Fatalf("poll queued: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("after queued: status = %s, want pending", job.Status)
	}

	if err := f.orch.PollOnce(context.Background(), job); err != nil {
		t.Fatalf("poll running: %v", err)
	}
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("after running: status = %s, want processing", job.Status)
	}
	if f.store.balances["user-1"] != 700 {
		t.Fatalf("balance changed mid-flight: %d", f.store.balances["user-1"])
	}

	if err := f.orch.PollOnce(context.Background(), job); err != nil {
		t.Fatalf("poll succeeded: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	if job.ResultURL != "https://cdn.example.com/v/whale.mp4" {
		t.Fatalf("result url = %q", job.ResultURL)
	}
	// Success consumes the reservation; nothing comes back.
	if f.store.balances["user-1"] != 700 {
		t.Fatalf("balance = %d, want 700", f.store.balances["user-1"])
	}
	if f.store.refundCalls != 0 {
		t.Fatalf("refunds = %d, want 0", f.store.refundCalls)
	}

	// A late still-working observation must not regress the terminal state.
	if err := f.orch.Reconcile(context.Background(), job, &videogen.PollResult{State: videogen.StateRunning}); err != nil {
		t.Fatalf("late reconcile: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status regressed to %s", job.Status)
	}
}

func TestReconcileGenerationFailureRefundsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	job, err := f.orch.Submit(context.Background(), SubmitInput{UserID: "user-1", Prompt: "a storm"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	failure := &videogen.PollResult{State: videogen.StateFailed, ErrorCode: "gen_error", ErrorMessage: "internal renderer fault"}
	if err := f.orch.Reconcile(context.Background(), job, failure); err != nil {
		t.Fatalf("reconcile failure: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if f.store.balances["user-1"] != 1000 {
		t.Fatalf("balance = %d, want 1000 after refund", f.store.balances["user-1"])
	}
	firstMessage := job.ErrorMessage

	// Re-applying the same terminal observation must change nothing.
	fresh, _ := f.store.GetByID(context.Background(), job.ID)
	if err := f.orch.Reconcile(context.Background(), fresh, failure); err != nil {
		t.Fatalf("repeat reconcile: %v", err)
	}
	if f.store.refundCalls != 1 {
		t.Fatalf("refunds = %d, want exactly 1", f.store.refundCalls)
	}
	if f.store.balances["user-1"] != 1000 {
		t.Fatalf("balance drifted to %d", f.store.balances["user-1"])
	}
	stored, _ := f.store.GetByID(context.Background(), job.ID)
	if stored.ErrorMessage != firstMessage {
		t.Fatalf("error message changed on repeat reconcile")
	}
}

func TestReconcileSettlementFailureLeavesJobOpen(t *testing.T) {
	f := newFixture(t)
	job, err := f.orch.Submit(context.Background(), SubmitInput{UserID: "user-1", Prompt: "a river"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.store.failSettle = true
	failure := &videogen.PollResult{State: videogen.StateFailed, ErrorMessage: "renderer fault"}
	if err := f.orch.Reconcile(context.Background(), job, failure); err == nil {
		t.Fatalf("expected settlement error")
	}
	stored, _ := f.store.GetByID(context.Background(), job.ID)
	if stored.Status.IsTerminal() {
		t.Fatalf("job must stay non-terminal until the refund lands, got %s", stored.Status)
	}

	// Next sweep retries and settles.
	f.store.failSettle = false
	if err := f.orch.Reconcile(context.Background(), stored, failure); err != nil {
		t.Fatalf("retry reconcile: %v", err)
	}
	if f.store.balances["user-1"] != 1000 {
		t.Fatalf("balance = %d, want 1000", f.store.balances["user-1"])
	}
}

func TestRefreshJobPollsAndReturnsFreshRecord(t *testing.T) {
	f := newFixture(t)
	job, err := f.orch.Submit(context.Background(), SubmitInput{UserID: "user-1", Prompt: "a comet"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.gateway.pollResults[job.ProviderTaskID] = []videogen.PollResult{
		{State: videogen.StateSucceeded, ResultURL: "https://cdn.example.com/v/comet.mp4"},
	}

	refreshed, err := f.orch.RefreshJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", refreshed.Status)
	}

	// Refreshing a terminal job is a no-op and must not poll again.
	polls := f.gateway.pollCalls
	if _, err := f.orch.RefreshJob(context.Background(), job.ID); err != nil {
		t.Fatalf("refresh terminal: %v", err)
	}
	if f.gateway.pollCalls != polls {
		t.Fatalf("terminal refresh polled the provider")
	}
}

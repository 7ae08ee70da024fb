package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotorstar/hitl-protocol/internal/clock"
	"github.com/rotorstar/hitl-protocol/internal/idgen"
	"github.com/rotorstar/hitl-protocol/service/dao"
	"github.com/rotorstar/hitl-protocol/service/dao/store"
	"github.com/rotorstar/hitl-protocol/service/notify"
	"github.com/rotorstar/hitl-protocol/service/ratelimit"
	"github.com/rotorstar/hitl-protocol/service/review"
	"github.com/rotorstar/hitl-protocol/service/schedule"
	"github.com/rotorstar/hitl-protocol/service/token"
)

// key selector – grab the case id
func caseKey(c *review.Case) string { return c.CaseID }

// Service is the in-memory review-case lifecycle engine. Each case owns a
// lock; the (mutate, publish) pair executes under it so no observer ever sees
// a partially applied transition. Cases never outlive the process.
type Service struct {
	caseDAO   dao.Service[string, review.Case]
	tokens    *token.Authority
	limiter   *ratelimit.Limiter
	hub       *notify.Hub
	scheduler *schedule.Scheduler

	timeout       time.Duration
	defaultAction string
	retention     time.Duration
	sweepInterval time.Duration

	lmu   sync.Mutex
	locks map[string]*sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an engine with in-memory collaborators; options replace any of
// them.
func New(options ...Option) *Service {
	ret := &Service{
		timeout:       24 * time.Hour,
		defaultAction: "skip",
		retention:     24 * time.Hour,
		sweepInterval: 5 * time.Minute,
		locks:         make(map[string]*sync.Mutex),
		stop:          make(chan struct{}),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.caseDAO == nil {
		ret.caseDAO = store.NewMemoryStore[string, review.Case](caseKey)
	}
	if ret.tokens == nil {
		ret.tokens = token.New()
	}
	if ret.limiter == nil {
		ret.limiter = ratelimit.New(ratelimit.DefaultConfig())
	}
	if ret.hub == nil {
		ret.hub = notify.New(notify.DefaultConfig())
	}
	if ret.scheduler == nil {
		ret.scheduler = schedule.New()
	}
	if ret.retention > 0 {
		go ret.sweep()
	}
	return ret
}

// Hub exposes the notification registry, e.g. for diagnostics.
func (s *Service) Hub() *notify.Hub { return s.hub }

// Close stops the background retention sweeper. Armed expiration timers are
// left to fire; their transitions no-op once cases are evicted.
func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Create allocates a case, mints its capability token and arms the
// auto-expire timer.
func (s *Service) Create(ctx context.Context, req *review.CreateRequest) (*review.Created, error) {
	if req == nil {
		return nil, review.NewError(review.KindValidation, "invalid_request", "request body is required")
	}
	if !req.Type.Valid() {
		return nil, review.NewError(review.KindValidation, "invalid_type",
			fmt.Sprintf("unknown review type %q", req.Type))
	}
	if req.Prompt == "" {
		return nil, review.NewError(review.KindValidation, "missing_prompt", "prompt is required")
	}

	plaintext, err := s.tokens.Issue()
	if err != nil {
		return nil, review.WrapError(review.KindInternal, "token_error", "unable to mint capability token", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	defaultAction := req.DefaultAction
	if defaultAction == "" {
		defaultAction = s.defaultAction
	}

	now := clock.Now()
	c := &review.Case{
		CaseID:        idgen.NewCaseID(),
		Type:          req.Type,
		Status:        review.StatusPending,
		Prompt:        req.Prompt,
		Context:       req.Context,
		TokenDigest:   s.tokens.Digest(plaintext),
		CreatedAt:     now,
		ExpiresAt:     now.Add(timeout),
		DefaultAction: defaultAction,
		Version:       1,
		RevisionTag:   review.NewRevisionTag(1, review.StatusPending),
	}
	if err := s.caseDAO.Save(ctx, c); err != nil {
		return nil, review.WrapError(review.KindInternal, "storage_error", "unable to store case", err)
	}
	s.scheduler.Arm(c.CaseID, c.ExpiresAt, func() { s.expire(c.CaseID) })
	return &review.Created{Case: c.Clone(), Token: plaintext}, nil
}

// Open verifies the token and records human follow-through on a pending case.
func (s *Service) Open(ctx context.Context, caseID, presented string) (*review.Case, error) {
	mu := s.lockFor(caseID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !s.tokens.Verify(presented, c.TokenDigest) {
		return nil, review.NewError(review.KindAuth, "invalid_token", "capability token does not match")
	}
	if c.Status == review.StatusPending {
		// Cannot fail from pending; the guard keeps a re-opened page from
		// racing a concurrent terminal transition.
		_ = s.transition(ctx, c, review.StatusOpened)
	}
	return c.Clone(), nil
}

// Respond verifies token and state, records result and responder and
// completes the case.
func (s *Service) Respond(ctx context.Context, caseID, presented string, submission *review.Submission) (*review.Case, error) {
	mu := s.lockFor(caseID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !s.tokens.Verify(presented, c.TokenDigest) {
		return nil, review.NewError(review.KindAuth, "invalid_token", "capability token does not match")
	}
	switch c.Status {
	case review.StatusExpired:
		return nil, review.NewError(review.KindStateConflict, "case_expired",
			fmt.Sprintf("case expired on %s", c.ExpiresAt.Format(time.RFC3339)))
	case review.StatusCompleted:
		return nil, review.NewError(review.KindStateConflict, "duplicate_submission", "case already responded to")
	case review.StatusCancelled:
		return nil, review.NewError(review.KindStateConflict, "case_cancelled", "case was cancelled")
	}
	if submission == nil || submission.Action == "" {
		return nil, review.NewError(review.KindValidation, "missing_action", "action is required")
	}
	if !review.CanTransition(c.Status, review.StatusCompleted) {
		return nil, review.WrapError(review.KindStateConflict, "invalid_transition", "case cannot be completed",
			&review.InvalidTransitionError{From: c.Status, To: review.StatusCompleted})
	}

	c.Result = &review.Result{Action: submission.Action, Data: submission.Data}
	c.RespondedBy = submission.RespondedBy
	// Guarded above; the transition cannot fail.
	_ = s.transition(ctx, c, review.StatusCompleted)
	return c.Clone(), nil
}

// Poll returns a rate-limited snapshot. A matching revision tag yields a
// NotModified result without the case payload.
func (s *Service) Poll(ctx context.Context, caseID, revisionTag string) (*review.PollResult, error) {
	mu := s.lockFor(caseID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	verdict := s.limiter.Check(caseID)
	if !verdict.Allowed {
		return nil, &review.RateLimitError{Limit: verdict.Limit, Remaining: verdict.Remaining}
	}
	ret := &review.PollResult{
		RevisionTag: c.RevisionTag,
		Limit:       verdict.Limit,
		Remaining:   verdict.Remaining,
	}
	if revisionTag != "" && revisionTag == c.RevisionTag {
		ret.NotModified = true
		return ret, nil
	}
	ret.Case = c.Clone()
	return ret, nil
}

// Subscribe attaches a live listener primed with the case's present status.
func (s *Service) Subscribe(ctx context.Context, caseID string) (*notify.Subscription, error) {
	mu := s.lockFor(caseID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return s.hub.Subscribe(caseID, s.eventFor(c)), nil
}

// Cancel withdraws a case on behalf of the requesting process.
func (s *Service) Cancel(ctx context.Context, caseID string) (*review.Case, error) {
	mu := s.lockFor(caseID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, c, review.StatusCancelled); err != nil {
		return nil, review.WrapError(review.KindStateConflict, "invalid_transition",
			fmt.Sprintf("case is already %s", c.Status), err)
	}
	return c.Clone(), nil
}

// transition applies one lifecycle step and publishes it as a single unit.
// Callers hold the case lock.
func (s *Service) transition(ctx context.Context, c *review.Case, target review.Status) error {
	if err := c.Apply(target, clock.Now()); err != nil {
		return err
	}
	_ = s.caseDAO.Save(ctx, c)
	if target.Terminal() {
		s.limiter.Release(c.CaseID)
		s.scheduler.Cancel(c.CaseID)
	}
	s.hub.Publish(c.CaseID, s.eventFor(c))
	return nil
}

// expire is the deferred auto-expire action. Losing the race against a
// completed case is expected and ignored.
func (s *Service) expire(caseID string) {
	ctx := context.Background()
	mu := s.lockFor(caseID)
	mu.Lock()
	defer mu.Unlock()
	c, _ := s.caseDAO.Load(ctx, caseID)
	if c == nil {
		return
	}
	_ = s.transition(ctx, c, review.StatusExpired)
}

func (s *Service) eventFor(c *review.Case) notify.Event {
	event := notify.Event{
		Name:   "review." + string(c.Status),
		CaseID: c.CaseID,
		Status: string(c.Status),
	}
	if c.Result != nil {
		event.Result = c.Result
	}
	return event
}

func (s *Service) load(ctx context.Context, caseID string) (*review.Case, error) {
	c, err := s.caseDAO.Load(ctx, caseID)
	if err != nil {
		return nil, review.WrapError(review.KindInternal, "storage_error", "unable to read case", err)
	}
	if c == nil {
		return nil, review.NewError(review.KindNotFound, "not_found", fmt.Sprintf("unknown case %s", caseID))
	}
	return c, nil
}

func (s *Service) lockFor(caseID string) *sync.Mutex {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	mu, ok := s.locks[caseID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[caseID] = mu
	}
	return mu
}

// sweep evicts long-terminal cases past the retention horizon, together with
// their lock, counter and notification bookkeeping.
func (s *Service) sweep() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepOnce(context.Background())
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	cases, err := s.caseDAO.List(ctx)
	if err != nil {
		return
	}
	now := clock.Now()
	for _, c := range cases {
		caseID := c.CaseID
		mu := s.lockFor(caseID)
		mu.Lock()
		// Status and deadline are only stable under the case lock; an
		// unlocked read would race concurrent transitions.
		evict := c.Status.Terminal() && !now.Before(c.ExpiresAt.Add(s.retention))
		if evict {
			_ = s.caseDAO.Delete(ctx, caseID)
			s.limiter.Release(caseID)
			s.scheduler.Cancel(caseID)
			s.hub.Drop(caseID)
		}
		mu.Unlock()
		if evict {
			s.lmu.Lock()
			delete(s.locks, caseID)
			s.lmu.Unlock()
		}
	}
}

var _ review.Service = (*Service)(nil)

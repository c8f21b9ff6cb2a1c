// Package service drives a verification through its stages.
//
// Analysis runs outside any lock on the bounded imaging pool. Each resulting
// transition is then committed through the store's Execute, which re-checks the
// stage guard against the locked record, so a concurrent submission that lost
// the race gets a validation error and changes nothing.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"identrisk/internal/events"
	"identrisk/internal/verification/imaging"
	"identrisk/internal/verification/metrics"
	"identrisk/internal/verification/models"
	dErrors "identrisk/pkg/domain-errors"
	"identrisk/pkg/platform/pii"
	"identrisk/pkg/platform/sentinel"
	"identrisk/pkg/requestcontext"
)

const (
	DefaultMinDocumentConfidence = 0.7
	DefaultCommitTimeout         = 5 * time.Second
)

// Store persists verification records.
type Store interface {
	Create(ctx context.Context, v *models.Verification) error
	FindByID(ctx context.Context, id models.VerificationID) (*models.Verification, error)
	LatestForUser(ctx context.Context, userID string) (*models.Verification, error)
	Execute(ctx context.Context, id models.VerificationID,
		validate func(*models.Verification) error,
		mutate func(context.Context, *models.Verification) error,
	) (*models.Verification, error)
}

// DocumentExtractor reads identity fields from a document image.
type DocumentExtractor interface {
	Extract(ctx context.Context, image []byte) (*models.DocumentExtraction, error)
}

// LivenessChecker scores a selfie.
type LivenessChecker interface {
	Check(ctx context.Context, selfie []byte) (models.LivenessResult, error)
}

// FaceMatcher compares the document face against the selfie face.
type FaceMatcher interface {
	Match(ctx context.Context, document, selfie []byte) (models.FaceMatchResult, error)
	DocumentMissing() models.FaceMatchResult
}

// RegistryVerifier cross-checks a NIK. It never fails; problems come back as
// an ERROR result.
type RegistryVerifier interface {
	Verify(ctx context.Context, nik string) models.RegistryResult
}

// ImageStore keeps the document image until the selfie stage.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Service is the verification orchestrator.
type Service struct {
	store     Store
	extractor DocumentExtractor
	liveness  LivenessChecker
	matcher   FaceMatcher
	registry  RegistryVerifier
	images    ImageStore

	pool          *imaging.Pool
	minConfidence float64
	commitTimeout time.Duration
	publisher     events.Publisher
	transactional bool
	hasher        *pii.Hasher
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPool sets the analysis pool. The default runs one analysis at a time.
func WithPool(p *imaging.Pool) Option {
	return func(s *Service) { s.pool = p }
}

func WithMinDocumentConfidence(c float64) Option {
	return func(s *Service) {
		if c > 0 && c <= 1 {
			s.minConfidence = c
		}
	}
}

// WithCommitTimeout bounds each transition write. The write does not inherit
// the caller's cancellation.
func WithCommitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.commitTimeout = d
		}
	}
}

// WithEventPublisher publishes once the transition has committed. A failed
// publish is logged and counted; the transition stands.
func WithEventPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
		s.transactional = false
	}
}

// WithOutbox publishes inside the store transaction. A failed publish aborts
// the transition.
func WithOutbox(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
		s.transactional = true
	}
}

// WithSubjectHasher sets the keyed hash applied to the NIK before it goes on the bus.
func WithSubjectHasher(h *pii.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

func New(store Store, extractor DocumentExtractor, liveness LivenessChecker, matcher FaceMatcher,
	registry RegistryVerifier, images ImageStore, opts ...Option,
) *Service {
	s := &Service{
		store:         store,
		extractor:     extractor,
		liveness:      liveness,
		matcher:       matcher,
		registry:      registry,
		images:        images,
		minConfidence: DefaultMinDocumentConfidence,
		commitTimeout: DefaultCommitTimeout,
		logger:        slog.Default(),
		tracer:        otel.Tracer("identrisk/verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = imaging.NewPool(1, 0)
	}
	return s
}

// Start opens a PENDING verification. Creation emits no event.
func (s *Service) Start(ctx context.Context, userID, verificationType string) (*models.Verification, error) {
	typ, err := models.ParseType(verificationType)
	if err != nil {
		return nil, err
	}
	v, err := models.NewVerification(userID, typ, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification")
	}
	s.logger.InfoContext(ctx, "verification started",
		"verification_id", v.ID.String(),
		"user_id", v.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return v, nil
}

func (s *Service) Get(ctx context.Context, id models.VerificationID) (*models.Verification, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "verification id is required")
	}
	v, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return v, nil
}

// LatestForUser returns the user's newest verification.
func (s *Service) LatestForUser(ctx context.Context, userID string) (*models.Verification, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	v, err := s.store.LatestForUser(ctx, userID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return v, nil
}

func wrapStoreErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "verification not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "verification store failure")
}

// analyze runs one CPU-bound stage on the pool. Giving up on a slot is a
// timeout, not a processing fault.
func (s *Service) analyze(ctx context.Context, id models.VerificationID, stage string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "verification."+stage,
		trace.WithAttributes(attribute.String("verification.id", id.String())))
	defer span.End()

	start := time.Now()
	err := s.pool.Do(ctx, fn)
	s.metrics.ObserveStage(stage, time.Since(start))
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, stage+" failed")
	if errors.Is(err, imaging.ErrNoSlot) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "analysis capacity exhausted, retry later")
	}
	return err
}

// transition applies a stage result to the locked record and names the event
// it emits.
type transition func(ctx context.Context, v *models.Verification) (events.Type, error)

// commit writes a transition on a context detached from the caller and bounded
// by commitTimeout. The outbox joins the store transaction; any other sink is
// called only after the write committed.
func (s *Service) commit(ctx context.Context, id models.VerificationID, guard func(*models.Verification) error, now time.Time, apply transition) (*models.Verification, error) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.commitTimeout)
	defer cancel()

	var typ events.Type
	v, err := s.store.Execute(commitCtx, id, guard, func(txCtx context.Context, v *models.Verification) error {
		var err error
		if typ, err = apply(txCtx, v); err != nil {
			return err
		}
		if s.transactional {
			return s.publish(txCtx, v, typ, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !s.transactional {
		_ = s.publish(commitCtx, v, typ, now)
	}
	return v, nil
}

// fail records a system fault as FAILED. A stage that timed out before doing
// any work leaves the record where it was.
func (s *Service) fail(ctx context.Context, id models.VerificationID, guard func(*models.Verification) error, cause error) error {
	if dErrors.HasCode(cause, dErrors.CodeTimeout) {
		s.logger.WarnContext(ctx, "verification stage not started",
			"verification_id", id.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", cause,
		)
		return cause
	}
	s.logger.ErrorContext(ctx, "verification stage failed",
		"verification_id", id.String(),
		"request_id", requestcontext.RequestID(ctx),
		"error", cause,
	)
	now := requestcontext.Now(ctx)
	v, err := s.commit(ctx, id, guard, now, func(_ context.Context, v *models.Verification) (events.Type, error) {
		v.ApplyFailed(now)
		return events.TypeVerificationFailed, nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			return err
		}
		s.logger.ErrorContext(ctx, "failed to record verification failure",
			"verification_id", id.String(),
			"error", err,
		)
	} else {
		s.recordOutcome(v)
	}
	return dErrors.Wrap(cause, dErrors.CodeInternal, "verification processing failed")
}

func (s *Service) recordOutcome(v *models.Verification) {
	if v.Status.IsTerminal() {
		s.metrics.IncrementOutcome(string(v.Status), string(v.RejectionKind))
	}
}

package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"identrisk/internal/events"
	"identrisk/internal/events/memory"
	"identrisk/internal/verification/images"
	"identrisk/internal/verification/imaging"
	"identrisk/internal/verification/models"
	"identrisk/internal/verification/service/mocks"
	"identrisk/internal/verification/store"
	dErrors "identrisk/pkg/domain-errors"
	"identrisk/pkg/platform/pii"
	"identrisk/pkg/requestcontext"
)

const testNIK = "3171012345678901"

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	ctx       context.Context
	store     *store.InMemoryStore
	images    *images.MemoryStore
	publisher *memory.Publisher
	extractor *mocks.MockDocumentExtractor
	liveness  *mocks.MockLivenessChecker
	matcher   *mocks.MockFaceMatcher
	registry  *mocks.MockRegistryVerifier
	hasher    *pii.Hasher
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.store = store.NewInMemoryStore()
	s.images = images.NewMemoryStore()
	s.publisher = memory.NewPublisher()
	s.extractor = mocks.NewMockDocumentExtractor(s.ctrl)
	s.liveness = mocks.NewMockLivenessChecker(s.ctrl)
	s.matcher = mocks.NewMockFaceMatcher(s.ctrl)
	s.registry = mocks.NewMockRegistryVerifier(s.ctrl)
	s.hasher = pii.NewHasher([]byte("test-key"))
	s.service = s.newService(WithEventPublisher(s.publisher))
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{WithSubjectHasher(s.hasher), WithPool(imaging.NewPool(2, time.Second))}
	return New(s.store, s.extractor, s.liveness, s.matcher, s.registry, s.images, append(base, opts...)...)
}

func extraction(confidence float64, nik string) *models.DocumentExtraction {
	fields := map[models.FieldName]models.ExtractedField{
		models.FieldFullName: {Value: "BUDI SANTOSO", Confidence: confidence, Source: models.SourceRecognized},
	}
	if nik != "" {
		fields[models.FieldNIK] = models.ExtractedField{Value: nik, Confidence: confidence, Source: models.SourceRecognized}
	}
	return &models.DocumentExtraction{Fields: fields, Confidence: confidence}
}

func (s *ServiceSuite) start() models.VerificationID {
	v, err := s.service.Start(s.ctx, "user-1", "ktp")
	s.Require().NoError(err)
	return v.ID
}

func (s *ServiceSuite) startProcessing() models.VerificationID {
	id := s.start()
	s.extractor.EXPECT().Extract(gomock.Any(), []byte("ktp")).Return(extraction(0.95, testNIK), nil)
	_, err := s.service.SubmitDocument(s.ctx, id, []byte("ktp"))
	s.Require().NoError(err)
	return id
}

func (s *ServiceSuite) eventTypes(id models.VerificationID) []events.Type {
	var out []events.Type
	for _, e := range s.publisher.ForAggregate(id.String()) {
		out = append(out, e.Type)
	}
	return out
}

func (s *ServiceSuite) TestStart() {
	s.Run("creates a pending verification without an event", func() {
		v, err := s.service.Start(s.ctx, "user-1", "KTP")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, v.Status)
		s.Equal(models.TypeKTP, v.Type)
		s.Empty(s.eventTypes(v.ID))
	})

	s.Run("rejects unsupported type", func() {
		_, err := s.service.Start(s.ctx, "user-1", "passport")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("requires user id", func() {
		_, err := s.service.Start(s.ctx, "", "ktp")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestSubmitDocument() {
	s.Run("accepts a confident extraction", func() {
		id := s.start()
		s.extractor.EXPECT().Extract(gomock.Any(), []byte("ktp")).Return(extraction(0.95, testNIK), nil)

		v, err := s.service.SubmitDocument(s.ctx, id, []byte("ktp"))
		s.Require().NoError(err)
		s.Equal(models.StatusProcessing, v.Status)
		s.Equal(testNIK, v.Document.NIK())
		s.Equal(images.DocumentKey(id), v.Document.ImageKey)

		stored, err := s.images.Get(s.ctx, images.DocumentKey(id))
		s.Require().NoError(err)
		s.Equal([]byte("ktp"), stored)
		s.Equal([]events.Type{events.TypeDocumentAccepted}, s.eventTypes(id))
	})

	s.Run("low confidence rejects the record", func() {
		id := s.start()
		s.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(extraction(0.60, testNIK), nil)

		_, err := s.service.SubmitDocument(s.ctx, id, []byte("blurry"))
		s.True(dErrors.HasCode(err, dErrors.CodeLowConfidence))

		v, err := s.service.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, v.Status)
		s.Equal(models.RejectionLowConfidence, v.RejectionKind)
		s.Contains(v.RejectionReason, "quality")
		s.NotNil(v.CompletedAt)
		s.Equal([]events.Type{events.TypeVerificationFailed}, s.eventTypes(id))
	})

	s.Run("engine fault fails the record", func() {
		id := s.start()
		s.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(nil, errors.New("ocr down"))

		_, err := s.service.SubmitDocument(s.ctx, id, []byte("ktp"))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		v, err := s.service.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StatusFailed, v.Status)
		s.Equal(models.RejectionSystemError, v.RejectionKind)

		evts := s.publisher.ForAggregate(id.String())
		s.Require().Len(evts, 1)
		s.Equal(events.TypeVerificationFailed, evts[0].Type)
		s.Equal(string(models.StatusFailed), evts[0].Payload.(VerificationEvent).Status)
	})

	s.Run("empty image is a validation error", func() {
		id := s.start()
		_, err := s.service.SubmitDocument(s.ctx, id, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown verification", func() {
		_, err := s.service.SubmitDocument(s.ctx, models.NewVerificationID(), []byte("ktp"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("second document is refused without change", func() {
		id := s.startProcessing()
		before := s.eventTypes(id)

		_, err := s.service.SubmitDocument(s.ctx, id, []byte("ktp"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		v, err := s.service.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StatusProcessing, v.Status)
		s.Equal(before, s.eventTypes(id))
	})
}

func (s *ServiceSuite) TestSubmitSelfie() {
	live := models.LivenessResult{IsLive: true, FaceDetected: true, Confidence: 0.72, QualityScore: 0.6}
	match := models.FaceMatchResult{Outcome: models.MatchCompared, IsMatch: true, Similarity: 0.91, Threshold: 0.8,
		DocumentFaceFound: true, SelfieFaceFound: true}

	s.Run("verifies when every check passes", func() {
		id := s.startProcessing()
		s.liveness.EXPECT().Check(gomock.Any(), []byte("selfie")).Return(live, nil)
		s.matcher.EXPECT().Match(gomock.Any(), []byte("ktp"), []byte("selfie")).Return(match, nil)
		s.registry.EXPECT().Verify(gomock.Any(), testNIK).Return(models.RegistryResult{
			IDNumber: testNIK, IsValid: true, Status: models.RegistryActive,
		})

		v, err := s.service.SubmitSelfie(s.ctx, id, []byte("selfie"))
		s.Require().NoError(err)
		s.Equal(models.StatusVerified, v.Status)
		s.NotNil(v.Liveness)
		s.NotNil(v.FaceMatch)
		s.NotNil(v.Registry)
		s.NotNil(v.CompletedAt)
		s.Empty(v.RejectionReason)

		evts := s.publisher.ForAggregate(id.String())
		s.Require().Len(evts, 2)
		s.Equal(events.TypeVerificationCompleted, evts[1].Type)
		payload := evts[1].Payload.(VerificationEvent)
		s.Equal(s.hasher.Hash(testNIK), payload.NIKHash)
		s.NotContains(payload.NIKHash, testNIK)
	})

	s.Run("registry invalid rejects", func() {
		id := s.startProcessing()
		s.liveness.EXPECT().Check(gomock.Any(), gomock.Any()).Return(live, nil)
		s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(match, nil)
		s.registry.EXPECT().Verify(gomock.Any(), testNIK).Return(models.RegistryResult{
			IDNumber: testNIK, IsValid: false, Status: models.RegistryNotFound,
		})

		v, err := s.service.SubmitSelfie(s.ctx, id, []byte("selfie"))
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, v.Status)
		s.Equal(models.ReasonRegistryInvalid, v.RejectionReason)
		s.Equal(models.RejectionRegistryInvalid, v.RejectionKind)
		s.Equal(events.TypeVerificationFailed, s.eventTypes(id)[1])
	})

	s.Run("registry outage rejects", func() {
		id := s.startProcessing()
		s.liveness.EXPECT().Check(gomock.Any(), gomock.Any()).Return(live, nil)
		s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(match, nil)
		s.registry.EXPECT().Verify(gomock.Any(), testNIK).Return(models.RegistryResult{
			IDNumber: testNIK, Status: models.RegistryError, Notes: "timeout",
		})

		v, err := s.service.SubmitSelfie(s.ctx, id, []byte("selfie"))
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, v.Status)
		s.Equal(models.RegistryError, v.Registry.Status)
	})

	s.Run("not live stops before face match", func() {
		id := s.startProcessing()
		s.liveness.EXPECT().Check(gomock.Any(), gomock.Any()).Return(models.LivenessResult{FaceDetected: true, Confidence: 0.2}, nil)

		v, err := s.service.SubmitSelfie(s.ctx, id, []byte("photo-of-photo"))
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, v.Status)
		s.Equal(models.ReasonLivenessFailed, v.RejectionReason)
		s.NotNil(v.Liveness)
		s.Nil(v.FaceMatch)
		s.Nil(v.Registry)
	})

	s.Run("face mismatch stops before registry", func() {
		id := s.startProcessing()
		s.liveness.EXPECT().Check(gomock.Any(), gomock.Any()).Return(live, nil)
		s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(models.FaceMatchResult{
			Outcome: models.MatchCompared, Similarity: 0.4, Threshold: 0.8, DocumentFaceFound: true, SelfieFaceFound: true,
		}, nil)

		v, err := s.service.SubmitSelfie(s.ctx, id, []byte("someone-else"))
		s.Require().NoError(err)
		s.Equal(models.RejectionFaceMismatch, v.RejectionKind)
		s.Equal(models.ReasonFaceMismatch, v.RejectionReason)
		s.Nil(v.Registry)
	})

	s.Run("missing document image is its own outcome", func() {
		id := s.startProcessing()
		s.images.Delete(s.ctx, images.DocumentKey(id))
		s.liveness.EXPECT().Check(gomock.Any(), gomock.Any()).Return(live, nil)
		s.matcher.EXPECT().DocumentMissing().Return(models.FaceMatchResult{Outcome: models.MatchDocumentMissing, Threshold: 0.8})

		v, err := s.service.SubmitSelfie(s.ctx, id, []byte("selfie"))
		s.Require().NoError(err)
		s.Equal(models.RejectionDocumentImageMissing, v.RejectionKind)
		s.Equal(models.ReasonDocumentMissing, v.RejectionReason)
		s.Equal(models.MatchDocumentMissing, v.FaceMatch.Outcome)
	})

	s.Run("undecodable selfie fails the record", func() {
		id := s.startProcessing()
		s.liveness.EXPECT().Check(gomock.Any(), gomock.Any()).Return(models.LivenessResult{}, imaging.ErrDecode)

		_, err := s.service.SubmitSelfie(s.ctx, id, []byte("garbage"))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		v, err := s.service.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StatusFailed, v.Status)
	})

	s.Run("selfie before document is refused", func() {
		id := s.start()
		_, err := s.service.SubmitSelfie(s.ctx, id, []byte("selfie"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		v, err := s.service.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, v.Status)
	})

	s.Run("terminal record is immutable", func() {
		id := s.startProcessing()
		s.liveness.EXPECT().Check(gomock.Any(), gomock.Any()).Return(models.LivenessResult{}, nil)
		_, err := s.service.SubmitSelfie(s.ctx, id, []byte("selfie"))
		s.Require().NoError(err)

		_, err = s.service.SubmitSelfie(s.ctx, id, []byte("selfie"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.service.SubmitDocument(s.ctx, id, []byte("ktp"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Len(s.eventTypes(id), 2)
	})
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker unavailable")
}

func (s *ServiceSuite) TestPublishFailures() {
	s.Run("best-effort sink does not block the transition", func() {
		svc := s.newService(WithEventPublisher(failingPublisher{}))
		v, err := svc.Start(s.ctx, "user-1", "ktp")
		s.Require().NoError(err)
		s.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(extraction(0.9, testNIK), nil)

		updated, err := svc.SubmitDocument(s.ctx, v.ID, []byte("ktp"))
		s.Require().NoError(err)
		s.Equal(models.StatusProcessing, updated.Status)
	})

	s.Run("outbox failure rolls the transition back", func() {
		svc := s.newService(WithOutbox(failingPublisher{}))
		v, err := svc.Start(s.ctx, "user-1", "ktp")
		s.Require().NoError(err)
		s.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(extraction(0.9, testNIK), nil)

		_, err = svc.SubmitDocument(s.ctx, v.ID, []byte("ktp"))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		found, err := svc.Get(s.ctx, v.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, found.Status)
	})
}

func (s *ServiceSuite) TestLatestForUser() {
	first := s.start()
	s.ctx = requestcontext.WithTime(s.ctx, requestcontext.Now(s.ctx).Add(time.Minute))
	second := s.start()

	v, err := s.service.LatestForUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(second, v.ID)
	s.NotEqual(first, v.ID)

	_, err = s.service.LatestForUser(s.ctx, "nobody")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// liveContextStore refuses writes on a done context, as opening a SQL
// transaction does.
type liveContextStore struct {
	*store.InMemoryStore
}

func (l liveContextStore) Execute(ctx context.Context, id models.VerificationID,
	validate func(*models.Verification) error,
	mutate func(context.Context, *models.Verification) error,
) (*models.Verification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.InMemoryStore.Execute(ctx, id, validate, mutate)
}

func (s *ServiceSuite) TestClientDisconnectDuringRegistryStillRejects() {
	svc := New(liveContextStore{s.store}, s.extractor, s.liveness, s.matcher, s.registry, s.images,
		WithSubjectHasher(s.hasher), WithEventPublisher(s.publisher))
	v, err := svc.Start(s.ctx, "user-1", "ktp")
	s.Require().NoError(err)
	s.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(extraction(0.95, testNIK), nil)
	_, err = svc.SubmitDocument(s.ctx, v.ID, []byte("ktp"))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	s.liveness.EXPECT().Check(gomock.Any(), gomock.Any()).Return(models.LivenessResult{IsLive: true, FaceDetected: true, Confidence: 0.8}, nil)
	s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(models.FaceMatchResult{
		Outcome: models.MatchCompared, IsMatch: true, Similarity: 0.9, Threshold: 0.8, DocumentFaceFound: true, SelfieFaceFound: true,
	}, nil)
	s.registry.EXPECT().Verify(gomock.Any(), testNIK).DoAndReturn(func(context.Context, string) models.RegistryResult {
		cancel()
		return models.RegistryResult{IDNumber: testNIK, Status: models.RegistryError, Notes: "context canceled"}
	})

	got, err := svc.SubmitSelfie(ctx, v.ID, []byte("selfie"))
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
	s.Equal(models.RejectionRegistryInvalid, got.RejectionKind)

	stored, err := svc.Get(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, stored.Status)
	s.NotNil(stored.Liveness)
	s.NotNil(stored.FaceMatch)
	s.Equal([]events.Type{events.TypeDocumentAccepted, events.TypeVerificationFailed}, s.eventTypes(v.ID))
}

func (s *ServiceSuite) TestWaitingForAnalysisSlotLeavesRecordUntouched() {
	pool := imaging.NewPool(1, 0)
	svc := s.newService(WithEventPublisher(s.publisher), WithPool(pool))
	v, err := svc.Start(s.ctx, "user-1", "ktp")
	s.Require().NoError(err)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	_, err = svc.SubmitDocument(ctx, v.ID, []byte("ktp"))
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := svc.Get(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)
	s.Empty(s.eventTypes(v.ID))
}

// unsavedStore applies the mutation but reports the write as failed.
type unsavedStore struct {
	*store.InMemoryStore
}

func (u unsavedStore) Execute(ctx context.Context, id models.VerificationID,
	validate func(*models.Verification) error,
	mutate func(context.Context, *models.Verification) error,
) (*models.Verification, error) {
	current, err := u.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validate(current); err != nil {
		return nil, err
	}
	if err := mutate(ctx, current); err != nil {
		return nil, err
	}
	return nil, errors.New("commit failed")
}

func (s *ServiceSuite) TestBestEffortEventFollowsCommit() {
	svc := New(unsavedStore{s.store}, s.extractor, s.liveness, s.matcher, s.registry, s.images,
		WithSubjectHasher(s.hasher), WithEventPublisher(s.publisher))
	v, err := svc.Start(s.ctx, "user-1", "ktp")
	s.Require().NoError(err)
	s.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(extraction(0.95, testNIK), nil)

	_, err = svc.SubmitDocument(s.ctx, v.ID, []byte("ktp"))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Empty(s.eventTypes(v.ID), "no event for a transition that was not saved")
}

package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"identrisk/internal/verification/handler/mocks"
	"identrisk/internal/verification/models"
	dErrors "identrisk/pkg/domain-errors"
	"identrisk/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.Default()).Register(s.router)
}

func newRecord(status models.Status) *models.Verification {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &models.Verification{
		ID:        models.NewVerificationID(),
		UserID:    "user-1",
		Type:      models.TypeKTP,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *HandlerSuite) TestStart() {
	s.Run("returns 201 with id and status", func() {
		v := newRecord(models.StatusPending)
		s.service.EXPECT().Start(gomock.Any(), "user-1", "ktp").Return(v, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications",
			map[string]string{"userId": " user-1 ", "verificationType": "ktp"}))

		s.Equal(http.StatusCreated, rr.Code)
		body := testutil.UnmarshalResponse[StartResponse](s.T(), rr)
		s.Equal(v.ID.String(), body.VerificationID)
		s.Equal("PENDING", body.Status)
	})

	s.Run("missing fields are a validation error", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications",
			map[string]string{"verificationType": "ktp"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("malformed json", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/verifications", "{"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})
}

func (s *HandlerSuite) TestSubmitDocument() {
	image := []byte("ktp-bytes")
	encoded := base64.StdEncoding.EncodeToString(image)

	s.Run("returns the extraction summary", func() {
		v := newRecord(models.StatusProcessing)
		v.Document = &models.DocumentExtraction{
			Confidence: 0.93,
			Fields: map[models.FieldName]models.ExtractedField{
				models.FieldNIK:         {Value: "3171012345678901", Confidence: 0.95, Source: models.SourceRecognized},
				models.FieldNationality: {Value: "WNI", Source: models.SourceDefaulted},
			},
		}
		s.service.EXPECT().SubmitDocument(gomock.Any(), v.ID, image).Return(v, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/verifications/"+v.ID.String()+"/document", map[string]string{"imageBase64": encoded}))

		s.Equal(http.StatusOK, rr.Code)
		body := testutil.UnmarshalResponse[DocumentResponse](s.T(), rr)
		s.Equal("PROCESSING", body.Status)
		s.Require().NotNil(body.ExtractionSummary)
		s.Equal("3171012345678901", body.ExtractionSummary.Fields["nik"])
		s.Equal([]string{"nationality"}, body.ExtractionSummary.DefaultedFields)
	})

	s.Run("accepts a data url", func() {
		v := newRecord(models.StatusProcessing)
		s.service.EXPECT().SubmitDocument(gomock.Any(), v.ID, image).Return(v, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/verifications/"+v.ID.String()+"/document", map[string]string{"imageBase64": "data:image/png;base64," + encoded}))
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("low confidence maps to 422", func() {
		id := models.NewVerificationID()
		s.service.EXPECT().SubmitDocument(gomock.Any(), id, image).
			Return(nil, dErrors.New(dErrors.CodeLowConfidence, models.ReasonLowQuality))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/verifications/"+id.String()+"/document", map[string]string{"imageBase64": encoded}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, string(dErrors.CodeLowConfidence))
	})

	s.Run("invalid base64 never reaches the service", func() {
		id := models.NewVerificationID()
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/verifications/"+id.String()+"/document", map[string]string{"imageBase64": "***"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("invalid id", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/verifications/not-a-uuid/document", map[string]string{"imageBase64": encoded}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("system error hides its description", func() {
		id := models.NewVerificationID()
		s.service.EXPECT().SubmitDocument(gomock.Any(), id, image).
			Return(nil, dErrors.New(dErrors.CodeInternal, "ocr engine at 10.0.0.3 refused"))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/verifications/"+id.String()+"/document", map[string]string{"imageBase64": encoded}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, string(dErrors.CodeInternal))
		s.NotContains(rr.Body.String(), "10.0.0.3")
	})
}

func (s *HandlerSuite) TestSubmitSelfie() {
	image := []byte("selfie-bytes")
	encoded := base64.StdEncoding.EncodeToString(image)

	s.Run("rejection is a successful response", func() {
		v := newRecord(models.StatusRejected)
		v.Liveness = &models.LivenessResult{IsLive: true, FaceDetected: true, Confidence: 0.7}
		v.FaceMatch = &models.FaceMatchResult{Outcome: models.MatchCompared, IsMatch: true, Similarity: 0.9, Threshold: 0.8}
		v.Registry = &models.RegistryResult{IDNumber: "3171012345678901", Status: models.RegistryNotFound}
		v.RejectionKind = models.RejectionRegistryInvalid
		v.RejectionReason = models.ReasonRegistryInvalid
		s.service.EXPECT().SubmitSelfie(gomock.Any(), v.ID, image).Return(v, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/verifications/"+v.ID.String()+"/selfie", map[string]string{"imageBase64": encoded}))

		s.Equal(http.StatusOK, rr.Code)
		body := testutil.UnmarshalResponse[SelfieResponse](s.T(), rr)
		s.Equal("REJECTED", body.Status)
		s.Equal(models.ReasonRegistryInvalid, body.RejectionReason)
		s.Require().NotNil(body.RegistrySummary)
		s.Equal("NOT_FOUND", body.RegistrySummary.Status)
		s.NotNil(body.LivenessSummary)
		s.NotNil(body.FaceMatchSummary)
	})

	s.Run("wrong state maps to 400", func() {
		id := models.NewVerificationID()
		s.service.EXPECT().SubmitSelfie(gomock.Any(), id, image).
			Return(nil, dErrors.New(dErrors.CodeValidation, "selfie can only be submitted while PROCESSING"))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/verifications/"+id.String()+"/selfie", map[string]string{"imageBase64": encoded}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}

func (s *HandlerSuite) TestGet() {
	s.Run("returns the full record", func() {
		v := newRecord(models.StatusVerified)
		completed := v.CreatedAt.Add(time.Minute)
		v.CompletedAt = &completed
		s.service.EXPECT().Get(gomock.Any(), v.ID).Return(v, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/verifications/"+v.ID.String(), nil))

		s.Equal(http.StatusOK, rr.Code)
		body := testutil.UnmarshalResponse[VerificationResponse](s.T(), rr)
		s.Equal("VERIFIED", body.Status)
		s.Equal("ktp", body.VerificationType)
		s.Require().NotNil(body.CompletedAt)
		s.True(completed.Equal(*body.CompletedAt))
	})

	s.Run("not found", func() {
		id := models.NewVerificationID()
		s.service.EXPECT().Get(gomock.Any(), id).Return(nil, dErrors.New(dErrors.CodeNotFound, "verification not found"))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/verifications/"+id.String(), nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	s.Run("latest for user", func() {
		v := newRecord(models.StatusProcessing)
		s.service.EXPECT().LatestForUser(gomock.Any(), "user-1").Return(v, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/users/user-1/verifications/latest", nil))
		s.Equal(http.StatusOK, rr.Code)
		body := testutil.UnmarshalResponse[VerificationResponse](s.T(), rr)
		s.Equal(v.ID.String(), body.VerificationID)
	})
}

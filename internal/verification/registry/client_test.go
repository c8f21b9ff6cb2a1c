package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"identrisk/internal/verification/models"
	"identrisk/pkg/platform/circuit"
)

const activeNIK = "3171234567890123"

type ClientSuite struct {
	suite.Suite
	server *httptest.Server
	calls  atomic.Int32
	status int
	body   string
	delay  time.Duration
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.calls.Store(0)
	s.status = http.StatusOK
	s.body = `{"nik":"3171234567890123","name":"BUDI SANTOSO","birthDate":"1990-08-17","gender":"LAKI-LAKI","status":"ACTIVE"}`
	s.delay = 0
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.Equal("/v1/citizens/"+activeNIK, r.URL.Path)
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.body))
	}))
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) client(opts ...Option) *HTTPClient {
	return NewHTTPClient(s.server.URL, opts...)
}

func (s *ClientSuite) TestActiveCitizenIsValid() {
	r := s.client().Verify(context.Background(), activeNIK)

	s.True(r.IsValid)
	s.Equal(models.RegistryActive, r.Status)
	s.Equal("BUDI SANTOSO", r.Name)
	s.Equal("1990-08-17", r.BirthDate)
	s.False(r.CheckedAt.IsZero())
}

func (s *ClientSuite) TestInactiveCitizenIsInvalid() {
	s.body = `{"nik":"3171234567890123","name":"X","status":"deceased"}`
	r := s.client().Verify(context.Background(), activeNIK)

	s.False(r.IsValid)
	s.Equal(models.RegistryDeceased, r.Status)
}

func (s *ClientSuite) TestNotFound() {
	s.status = http.StatusNotFound
	s.body = `{}`
	r := s.client().Verify(context.Background(), activeNIK)

	s.False(r.IsValid)
	s.Equal(models.RegistryNotFound, r.Status)
}

func (s *ClientSuite) TestServerErrorBecomesErrorResult() {
	s.status = http.StatusBadGateway
	s.body = "upstream down"
	r := s.client().Verify(context.Background(), activeNIK)

	s.False(r.IsValid)
	s.Equal(models.RegistryError, r.Status)
	s.Contains(r.Notes, "provider_outage")
	s.Equal(int32(1), s.calls.Load(), "no retry")
}

func (s *ClientSuite) TestTimeoutBecomesErrorResult() {
	s.delay = time.Second
	r := s.client(WithTimeout(30 * time.Millisecond)).Verify(context.Background(), activeNIK)

	s.False(r.IsValid)
	s.Equal(models.RegistryError, r.Status)
	s.Contains(r.Notes, "timeout")
}

func (s *ClientSuite) TestMalformedBodyIsBadData() {
	s.body = `{"status":`
	r := s.client().Verify(context.Background(), activeNIK)

	s.Equal(models.RegistryError, r.Status)
	s.Contains(r.Notes, "bad_data")
}

func (s *ClientSuite) TestInvalidFormatSkipsRegistry() {
	r := s.client().Verify(context.Background(), "12345")

	s.False(r.IsValid)
	s.Equal(models.RegistryInvalidFormat, r.Status)
	s.Zero(s.calls.Load())
}

func (s *ClientSuite) TestBreakerShortCircuitsAfterFailures() {
	s.status = http.StatusInternalServerError
	breaker := circuit.New("registry", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	c := s.client(WithBreaker(breaker))

	c.Verify(context.Background(), activeNIK)
	c.Verify(context.Background(), activeNIK)
	s.True(breaker.IsOpen())

	r := c.Verify(context.Background(), activeNIK)
	s.Equal(models.RegistryError, r.Status)
	s.Contains(r.Notes, "circuit_open")
	s.Equal(int32(2), s.calls.Load())
}

func (s *ClientSuite) TestRegulatedModeMinimizes() {
	r := s.client(WithRegulatedMode(true)).Verify(context.Background(), activeNIK)

	s.True(r.IsValid)
	s.Empty(r.Name)
	s.Empty(r.BirthDate)
	s.Equal(activeNIK, r.IDNumber)
}

type countingVerifier struct {
	result models.RegistryResult
	calls  int
}

func (c *countingVerifier) Verify(context.Context, string) models.RegistryResult {
	c.calls++
	return c.result
}

func TestCachedVerifier(t *testing.T) {
	ctx := context.Background()

	t.Run("definitive answers are cached", func(t *testing.T) {
		next := &countingVerifier{result: models.RegistryResult{IDNumber: activeNIK, IsValid: true, Status: models.RegistryActive}}
		v := NewCachedVerifier(next, NewMemoryCache(time.Minute))

		first := v.Verify(ctx, activeNIK)
		second := v.Verify(ctx, activeNIK)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, next.calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		next := &countingVerifier{result: models.RegistryResult{IDNumber: activeNIK, Status: models.RegistryError}}
		v := NewCachedVerifier(next, NewMemoryCache(time.Minute))

		v.Verify(ctx, activeNIK)
		v.Verify(ctx, activeNIK)
		assert.Equal(t, 2, next.calls)
	})
}

func TestMemoryCacheExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Minute)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put(context.Background(), models.RegistryResult{IDNumber: activeNIK, Status: models.RegistryActive}))
	_, ok := cache.Get(context.Background(), activeNIK)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = cache.Get(context.Background(), activeNIK)
	assert.False(t, ok)
}

func TestErrorResultCategories(t *testing.T) {
	r := ErrorResult(activeNIK, context.DeadlineExceeded, time.Now())
	assert.True(t, strings.HasPrefix(r.Notes, "registry timeout"))
	assert.Equal(t, models.RegistryError, r.Status)
	assert.False(t, r.IsValid)
}

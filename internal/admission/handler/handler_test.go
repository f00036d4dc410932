package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bastion/internal/admission/engine"
	"bastion/internal/admission/models"
	"bastion/internal/admission/policy"
	"bastion/internal/admission/store"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
)

type HandlerSuite struct {
	suite.Suite
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	policies := policy.NewStaticStore(map[models.EndpointClass]models.Policy{
		"register": {MaxAttempts: 2, Window: 15 * time.Minute, BlockDuration: 15 * time.Minute, Mode: models.ModeOptimistic},
		"login":    {MaxAttempts: 3, Window: 15 * time.Minute, BlockDuration: 15 * time.Minute, Mode: models.ModeExplicit},
	})
	eng, err := engine.New(policy.NewCache(policies), store.New())
	s.Require().NoError(err)

	h := New(eng, slog.Default())
	s.router = chi.NewRouter()
	s.router.Mount("/v1/admission", h.Routes())
	s.router.Mount("/admin/admission", h.AdminRoutes())
}

func (s *HandlerSuite) post(path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, r)
	return rec
}

func (s *HandlerSuite) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (s *HandlerSuite) decodeDecision(rec *httptest.ResponseRecorder) models.Decision {
	var d models.Decision
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &d))
	return d
}

func (s *HandlerSuite) TestCheckFlow() {
	body := `{"class":"register","identity":"1.2.3.4"}`

	for i := 0; i < 2; i++ {
		rec := s.post("/v1/admission/check", body)
		s.Equal(http.StatusOK, rec.Code)
		s.True(s.decodeDecision(rec).Allowed)
	}

	rec := s.post("/v1/admission/check", body)
	s.Equal(http.StatusOK, rec.Code, "a denial is still a successful check")
	d := s.decodeDecision(rec)
	s.False(d.Allowed)
	s.Equal(900, d.RetryAfter)
}

func (s *HandlerSuite) TestFailureThenCheckBlocks() {
	key := `{"class":"login","identity":"9.9.9.9"}`

	for i := 0; i < 3; i++ {
		rec := s.post("/v1/admission/failure", key)
		s.Equal(http.StatusOK, rec.Code)
	}

	d := s.decodeDecision(s.post("/v1/admission/check", key))
	s.False(d.Allowed)
}

func (s *HandlerSuite) TestSuccessEndpointIsNeutral() {
	key := `{"class":"login","identity":"9.9.9.9"}`

	s.post("/v1/admission/failure", key)
	rec := s.post("/v1/admission/success", key)
	s.Equal(http.StatusOK, rec.Code)

	snap := s.get("/admin/admission/inspect?class=login&identity=9.9.9.9")
	s.Equal(http.StatusOK, snap.Code)
	var out models.Snapshot
	s.Require().NoError(json.Unmarshal(snap.Body.Bytes(), &out))
	s.Equal(1, out.Count, "success must not rewind the failure count")
}

func (s *HandlerSuite) TestResetClearsBlock() {
	key := `{"class":"register","identity":"1.2.3.4"}`
	for i := 0; i < 3; i++ {
		s.post("/v1/admission/check", key)
	}

	rec := s.post("/admin/admission/reset", key)
	s.Equal(http.StatusOK, rec.Code)

	d := s.decodeDecision(s.post("/v1/admission/check", key))
	s.True(d.Allowed)
}

func (s *HandlerSuite) TestInspectUnknownKey() {
	rec := s.get("/admin/admission/inspect?class=login&identity=0.0.0.0")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestContractViolationsAreBadRequests() {
	s.Equal(http.StatusBadRequest, s.post("/v1/admission/check", `{"class":"","identity":"x"}`).Code)
	s.Equal(http.StatusBadRequest, s.post("/v1/admission/check", `not json`).Code)
	s.Equal(http.StatusBadRequest, s.get("/admin/admission/inspect?class=login").Code)
}

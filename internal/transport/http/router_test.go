package httptransport_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"fleetops/internal/auth/handler"
	"fleetops/internal/auth/models"
	"fleetops/internal/auth/service"
	"fleetops/internal/auth/store/account"
	"fleetops/internal/auth/store/revocation"
	jwttoken "fleetops/internal/jwt_token"
	"fleetops/internal/platform/metrics"
	ratelimit "fleetops/internal/ratelimit/middleware"
	"fleetops/internal/ratelimit/store/bucket"
	httptransport "fleetops/internal/transport/http"
	"fleetops/pkg/domain"
	"fleetops/pkg/platform/audit"
	auditmemory "fleetops/pkg/platform/audit/store/memory"
	authmw "fleetops/pkg/platform/middleware/auth"
	"fleetops/pkg/platform/middleware/authz"
	"fleetops/pkg/testutil"
)

const password = "correct horse battery"

type RouterSuite struct {
	suite.Suite
	accounts    *account.InMemoryStore
	revocations *revocation.InMemoryStore
	auditStore  *auditmemory.InMemoryStore
	metrics     *metrics.Metrics
	router      http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	s.Require().NoError(err)

	s.accounts = account.NewInMemoryStore()
	seed := []*models.Account{
		{ID: 1, Email: "admin@fleetops.test", FirstName: "Ada", Roles: []domain.Role{domain.RoleAdmin}},
		{ID: 7, Email: "lm@fleetops.test", FirstName: "Lee", LastName: "Morgan", LocationID: "A",
			Roles: []domain.Role{domain.RoleLocationManager, domain.RoleSales}},
		{ID: 9, Email: "gm@fleetops.test", FirstName: "Gale", LocationID: "A",
			Roles: []domain.Role{domain.RoleGeneralManager}},
		{ID: 42, Email: "dana@fleetops.test", FirstName: "Dana", LastName: "Reyes", LocationID: "A",
			Roles: []domain.Role{domain.RoleSales}},
		{ID: 11, Email: "fin@fleetops.test", FirstName: "Frey", LocationID: "C",
			Roles: []domain.Role{domain.RoleFinance}},
	}
	for _, a := range seed {
		a.PasswordHash = string(hash)
		a.Active = true
		s.Require().NoError(s.accounts.Save(ctx, a))
	}

	s.revocations = revocation.NewInMemoryStore()
	s.auditStore = auditmemory.NewInMemoryStore()
	publisher := audit.NewPublisher(s.auditStore, audit.NewLogSink(logger))

	reg := prometheus.NewRegistry()
	s.metrics = metrics.New(reg)

	tokens := jwttoken.NewJWTService(jwttoken.Config{
		SigningKey: "router-test-key",
		Issuer:     "fleetops",
		Audience:   "fleetops-api",
	})
	svc := service.New(s.accounts, s.revocations, tokens,
		service.WithAuditPublisher(publisher),
		service.WithLogger(logger),
	)

	s.router = httptransport.NewRouter(httptransport.Deps{
		Logger: logger,
		Authenticator: authmw.New(jwttoken.NewJWTServiceAdapter(tokens), svc, svc, logger,
			authmw.WithObserver(s.metrics),
			authmw.WithAuditor(publisher),
		),
		Authorizer: authz.New(logger,
			authz.WithObserver(s.metrics),
			authz.WithAuditor(publisher),
		),
		Auth: handler.New(svc, handler.CookieConfig{
			AccessName:  authmw.DefaultCookieName,
			RefreshName: "fleetops_refresh",
		}, logger),
		RateLimit: ratelimit.New(bucket.NewInMemoryBucketStore(100, 100), logger,
			ratelimit.WithObserver(s.metrics),
			ratelimit.WithAuditor(publisher),
		),
		Metrics:        s.metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health: map[string]httptransport.HealthFunc{
			"revocation": func(context.Context) error { return nil },
		},
		AuditLog: s.auditStore,
	})
}

func (s *RouterSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, req)
}

func (s *RouterSuite) login(email string) *models.TokenPair {
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		models.LoginRequest{Email: email, Password: password}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[models.TokenPair](s.T(), rr)
}

func (s *RouterSuite) bearer(method, path, token string) *http.Request {
	req := testutil.NewRequest(s.T(), method, path)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func (s *RouterSuite) body(rr *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func (s *RouterSuite) TestRevokedCredentialIsRejectedAndReissueWorks() {
	dana := s.login("dana@fleetops.test")
	admin := s.login("admin@fleetops.test")

	rr := s.do(s.bearer(http.MethodGet, "/sales/desk", dana.AccessToken))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal("42", s.body(rr)["account_id"])
	s.Equal("Dana Reyes", s.body(rr)["display_name"])

	revoke := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/credentials/revoke",
		models.RevokeRequest{Token: dana.AccessToken})
	revoke.Header.Set("Authorization", "Bearer "+admin.AccessToken)
	s.Require().Equal(http.StatusNoContent, s.do(revoke).Code)

	rr = s.do(s.bearer(http.MethodGet, "/sales/desk", dana.AccessToken))
	s.Equal(http.StatusUnauthorized, rr.Code)
	s.Equal("revoked", s.body(rr)["reason"])

	again := s.login("dana@fleetops.test")
	s.NotEqual(dana.AccessToken, again.AccessToken)
	rr = s.do(s.bearer(http.MethodGet, "/sales/desk", again.AccessToken))
	s.Equal(http.StatusOK, rr.Code)
	s.Equal("42", s.body(rr)["account_id"])

	events, err := s.auditStore.ListByAction(context.Background(), audit.EventCredentialRevoked)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(domain.AccountID(42), events[0].AccountID)
	s.Equal(domain.AccountID(1), events[0].ActorID)
}

func (s *RouterSuite) TestLocationScope() {
	lm := s.login("lm@fleetops.test")

	rr := s.do(s.bearer(http.MethodGet, "/locations/A/access", lm.AccessToken))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal("A", s.body(rr)["location_id"])

	rr = s.do(s.bearer(http.MethodGet, "/locations/B/access", lm.AccessToken))
	s.Require().Equal(http.StatusForbidden, rr.Code)
	body := s.body(rr)
	s.Equal("forbidden", body["error"])
	s.Equal("location_mismatch", body["reason"])
	s.Equal("B", body["expected_location"])
	s.Equal("A", body["actual_location"])

	gm := s.login("gm@fleetops.test")
	s.Equal(http.StatusOK, s.do(s.bearer(http.MethodGet, "/locations/B/access", gm.AccessToken)).Code)

	admin := s.login("admin@fleetops.test")
	s.Equal(http.StatusOK, s.do(s.bearer(http.MethodGet, "/locations/B/access", admin.AccessToken)).Code)
}

func (s *RouterSuite) TestSalesDeskRequiresSalesRole() {
	gm := s.login("gm@fleetops.test")
	rr := s.do(s.bearer(http.MethodGet, "/sales/desk", gm.AccessToken))
	s.Require().Equal(http.StatusForbidden, rr.Code)
	s.Equal([]any{"sales"}, s.body(rr)["required_roles"])

	admin := s.login("admin@fleetops.test")
	s.Equal(http.StatusOK, s.do(s.bearer(http.MethodGet, "/sales/desk", admin.AccessToken)).Code)
}

func (s *RouterSuite) TestLedgerIsReadableByFinanceOrLocalStaff() {
	fin := s.login("fin@fleetops.test")
	rr := s.do(s.bearer(http.MethodGet, "/locations/B/ledger", fin.AccessToken))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal("organization", s.body(rr)["scope"])

	lm := s.login("lm@fleetops.test")
	rr = s.do(s.bearer(http.MethodGet, "/locations/A/ledger", lm.AccessToken))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal("location", s.body(rr)["scope"])

	rr = s.do(s.bearer(http.MethodGet, "/locations/B/ledger", lm.AccessToken))
	s.Require().Equal(http.StatusForbidden, rr.Code)
	s.Equal("location_mismatch", s.body(rr)["reason"])

	rr = s.do(s.bearer(http.MethodGet, "/locations/"+strings.Repeat("x", 65)+"/ledger", lm.AccessToken))
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal("invalid_input", s.body(rr)["error"])
}

func (s *RouterSuite) TestAdminListsAccountAudit() {
	dana := s.login("dana@fleetops.test")
	admin := s.login("admin@fleetops.test")
	_ = s.do(s.bearer(http.MethodGet, "/admin/accounts/42/audit", dana.AccessToken))

	rr := s.do(s.bearer(http.MethodGet, "/admin/accounts/42/audit?limit=1", admin.AccessToken))
	s.Require().Equal(http.StatusOK, rr.Code)
	body := s.body(rr)
	s.Equal("42", body["account_id"])
	events := body["events"].([]any)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventAccessDenied), events[0].(map[string]any)["action"], "newest first")

	rr = s.do(s.bearer(http.MethodGet, "/admin/accounts/abc/audit", admin.AccessToken))
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal("invalid_input", s.body(rr)["error"])

	rr = s.do(s.bearer(http.MethodGet, "/admin/accounts/42/audit?limit=-3", admin.AccessToken))
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *RouterSuite) TestAdminRouteRequiresRole() {
	dana := s.login("dana@fleetops.test")
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/credentials/revoke",
		models.RevokeRequest{Token: dana.AccessToken})
	req.Header.Set("Authorization", "Bearer "+dana.AccessToken)

	rr := s.do(req)
	s.Require().Equal(http.StatusForbidden, rr.Code)
	body := s.body(rr)
	s.Equal("missing_role", body["reason"])
	s.Equal([]any{"admin"}, body["required_roles"])
	s.Equal([]any{"sales"}, body["actual_roles"])
}

func (s *RouterSuite) TestAuthenticationReasons() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/auth/me"))
	s.Equal(http.StatusUnauthorized, rr.Code)
	s.Equal("no_credential", s.body(rr)["reason"])

	rr = s.do(s.bearer(http.MethodGet, "/auth/me", "garbage"))
	s.Equal("invalid_or_expired", s.body(rr)["reason"])

	dana := s.login("dana@fleetops.test")
	rr = s.do(s.bearer(http.MethodGet, "/auth/me", dana.RefreshToken))
	s.Equal("invalid_or_expired", s.body(rr)["reason"], "refresh credentials do not authenticate requests")

	s.Require().NoError(s.accounts.SetActive(context.Background(), 42, false))
	rr = s.do(s.bearer(http.MethodGet, "/auth/me", dana.AccessToken))
	s.Equal(http.StatusUnauthorized, rr.Code)
	s.Equal("account_unavailable", s.body(rr)["reason"])
}

func (s *RouterSuite) TestRoleChangeAppliesToNextRequest() {
	lm := s.login("lm@fleetops.test")
	s.Equal(http.StatusForbidden, s.do(s.bearer(http.MethodGet, "/locations/B/access", lm.AccessToken)).Code)

	s.Require().NoError(s.accounts.SetRoles(context.Background(), 7, domain.RoleGeneralManager))
	s.Equal(http.StatusOK, s.do(s.bearer(http.MethodGet, "/locations/B/access", lm.AccessToken)).Code)
}

func (s *RouterSuite) TestCookieCredential() {
	dana := s.login("dana@fleetops.test")
	req := testutil.NewRequest(s.T(), http.MethodGet, "/auth/me")
	req.AddCookie(&http.Cookie{Name: authmw.DefaultCookieName, Value: dana.AccessToken})
	req.Header.Set("Authorization", "Bearer garbage")

	s.Equal(http.StatusOK, s.do(req).Code, "cookie wins over header")
}

func (s *RouterSuite) TestRefreshAndLogout() {
	dana := s.login("dana@fleetops.test")

	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/refresh",
		models.RefreshRequest{RefreshToken: dana.RefreshToken}))
	s.Require().Equal(http.StatusOK, rr.Code)
	next := testutil.UnmarshalResponse[models.TokenPair](s.T(), rr)

	rr = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/refresh",
		models.RefreshRequest{RefreshToken: dana.RefreshToken}))
	s.Equal(http.StatusUnauthorized, rr.Code, "rotated refresh credential is spent")

	logout := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/logout",
		models.RefreshRequest{RefreshToken: next.RefreshToken})
	logout.Header.Set("Authorization", "Bearer "+next.AccessToken)
	s.Require().Equal(http.StatusNoContent, s.do(logout).Code)

	rr = s.do(s.bearer(http.MethodGet, "/auth/me", next.AccessToken))
	s.Equal("revoked", s.body(rr)["reason"])
	rr = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/refresh",
		models.RefreshRequest{RefreshToken: next.RefreshToken}))
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *RouterSuite) TestGreetingIsOptionallyPersonalized() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/catalog/greeting"))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal(false, s.body(rr)["authenticated"])

	rr = s.do(s.bearer(http.MethodGet, "/catalog/greeting", "garbage"))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal(false, s.body(rr)["authenticated"])

	dana := s.login("dana@fleetops.test")
	rr = s.do(s.bearer(http.MethodGet, "/catalog/greeting", dana.AccessToken))
	body := s.body(rr)
	s.Equal(true, body["authenticated"])
	s.Equal("Welcome back, Dana Reyes", body["message"])
}

func (s *RouterSuite) TestHealthAndMetrics() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	s.Equal(http.StatusOK, rr.Code)

	_ = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/auth/me"))
	_ = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/catalog/greeting"))
	_ = s.do(s.bearer(http.MethodGet, "/catalog/greeting", "garbage"))
	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `fleetops_auth_rejections_total{reason="no_credential"} 1`)
	s.NotContains(rr.Body.String(), `fleetops_auth_rejections_total{reason="invalid_or_expired"}`,
		"anonymous fallbacks are not counted as rejections")
}

func (s *RouterSuite) TestUnhealthyDependency() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := jwttoken.NewJWTService(jwttoken.Config{SigningKey: "k"})
	svc := service.New(s.accounts, s.revocations, tokens)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:        logger,
		Authenticator: authmw.New(jwttoken.NewJWTServiceAdapter(tokens), svc, svc, logger),
		Authorizer:    authz.New(logger),
		Auth:          handler.New(svc, handler.CookieConfig{AccessName: "a", RefreshName: "r"}, logger),
		RateLimit:     ratelimit.New(bucket.NewInMemoryBucketStore(1, 1), logger),
		Health: map[string]httptransport.HealthFunc{
			"redis": func(context.Context) error { return errors.New("down") },
		},
	})

	rr := testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	s.Equal(http.StatusServiceUnavailable, rr.Code)
}

package bootstrap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application/threeds"
	"github.com/DanielPopoola/payment-security-core/internal/application/vault"
	"github.com/DanielPopoola/payment-security-core/internal/config"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var paRes = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("signed-pares"), 10))

type CoreIntegrationTestSuite struct {
	suite.Suite
	containers []testcontainers.Container
	geoServer  *httptest.Server
	mpiServer  *httptest.Server
	core       *Core
}

func TestCoreIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	suite.Run(t, new(CoreIntegrationTestSuite))
}

func (s *CoreIntegrationTestSuite) startContainer(req testcontainers.ContainerRequest, port string) (string, int) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err)
	s.containers = append(s.containers, container)

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	s.Require().NoError(err)
	return host, mapped.Int()
}

func (s *CoreIntegrationTestSuite) SetupSuite() {
	pgHost, pgPort := s.startContainer(testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")

	redisHost, redisPort := s.startContainer(testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379")

	s.geoServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := strings.TrimPrefix(r.URL.Path, "/v1/ip/")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"ip": ip, "country_code": "us"})
	}))
	s.mpiServer = httptest.NewServer(http.HandlerFunc(fakeDirectoryServer))

	t := s.T()
	t.Setenv("SECCORE_DATABASE__HOST", pgHost)
	t.Setenv("SECCORE_DATABASE__PORT", strconv.Itoa(pgPort))
	t.Setenv("SECCORE_DATABASE__USER", "testuser")
	t.Setenv("SECCORE_DATABASE__PASSWORD", "testpass")
	t.Setenv("SECCORE_DATABASE__NAME", "testdb")
	t.Setenv("SECCORE_REDIS__ADDR", redisHost+":"+strconv.Itoa(redisPort))
	t.Setenv("SECCORE_VAULT__FINGERPRINT_KEY", strings.Repeat("f", 32))
	t.Setenv("SECCORE_VAULT__ENCRYPTION_KEY", strings.Repeat("0a", 32))
	t.Setenv("SECCORE_GEO__BASE_URL", s.geoServer.URL)
	t.Setenv("SECCORE_THREEDS__MERCHANT_NAME", "Integration Store")
	t.Setenv("SECCORE_THREEDS__VISA_URL", s.mpiServer.URL)

	cfg, err := config.LoadConfig()
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.core, err = Build(context.Background(), cfg, logger)
	s.Require().NoError(err)

	_, err = s.core.DB.Migrate(context.Background())
	s.Require().NoError(err)
}

func (s *CoreIntegrationTestSuite) TearDownSuite() {
	if s.core != nil {
		s.core.Close()
	}
	if s.geoServer != nil {
		s.geoServer.Close()
	}
	if s.mpiServer != nil {
		s.mpiServer.Close()
	}
	for _, c := range s.containers {
		_ = c.Terminate(context.Background())
	}
}

func (s *CoreIntegrationTestSuite) tokenize(customerID string) *domain.Card {
	card, err := s.core.Vault.Tokenize(context.Background(), vault.TokenizeCommand{
		CustomerID:     customerID,
		PAN:            "4111 1111 1111 1111",
		ExpiryMonth:    12,
		ExpiryYear:     time.Now().Year() + 3,
		CardholderName: "Ada Lovelace",
		BillingAddress: &domain.BillingAddress{Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
	})
	s.Require().NoError(err)
	return card
}

// ============================================================================
// VAULT
// ============================================================================

func (s *CoreIntegrationTestSuite) Test_Vault_TokenizeIsIdempotentAndRevocable() {
	ctx := context.Background()
	customerID := "cust-" + uuid.NewString()

	first := s.tokenize(customerID)
	second := s.tokenize(customerID)

	s.Equal(first.Token, second.Token)
	s.Equal("4111********1111", first.MaskedNumber)
	s.True(s.core.Vault.Validate(ctx, first.Token))

	addr, err := s.core.Vault.BillingAddress(ctx, first.Token)
	s.Require().NoError(err)
	s.Equal("Springfield", addr.City)

	revoked, err := s.core.Vault.Revoke(ctx, first.Token)
	s.Require().NoError(err)
	s.True(revoked)
	s.False(s.core.Vault.Validate(ctx, first.Token))

	s.NotEqual(first.Token, s.tokenize(customerID).Token)
}

// ============================================================================
// FRAUD
// ============================================================================

func (s *CoreIntegrationTestSuite) Test_Fraud_NewCustomerAllowedUntilBlacklisted() {
	ctx := context.Background()
	tx := domain.Transaction{
		ID:         uuid.NewString(),
		CustomerID: "cust-" + uuid.NewString(),
		Amount:     decimal.RequireFromString("49.99"),
		Currency:   "USD",
		CreatedAt:  time.Now(),
	}
	ip := "203.0.113.7"

	result := s.core.Fraud.Analyze(ctx, tx, ip, nil)
	s.False(result.FailSafe)
	s.Equal(domain.RecommendAllow, result.Recommendation)

	s.Require().NoError(s.core.Blacklist.Add(ctx, "ip", ip))
	defer func() { _ = s.core.Blacklist.Remove(ctx, "ip", ip) }()

	result = s.core.Fraud.Analyze(ctx, tx, ip, nil)
	s.Equal(domain.RecommendBlock, result.Recommendation)
}

// ============================================================================
// 3-D SECURE
// ============================================================================

func (s *CoreIntegrationTestSuite) Test_ThreeDS_ChallengeThenComplete() {
	ctx := context.Background()
	card := s.tokenize("cust-" + uuid.NewString())
	txID := uuid.NewString()

	s.True(s.core.ThreeDS.IsEligible(ctx, card.Token))

	initiated, err := s.core.ThreeDS.Initiate(ctx, threeds.InitiateCommand{
		TransactionID: txID,
		CardToken:     card.Token,
		Amount:        decimal.RequireFromString("125.00"),
		Currency:      "USD",
		MerchantID:    "merchant-1",
		ReturnURL:     "https://shop.example.com/3ds",
	})
	s.Require().NoError(err)
	s.Equal(domain.AuthStatusPending, initiated.Status)
	s.Require().NotNil(initiated.AcsURL)

	completed, err := s.core.ThreeDS.Complete(ctx, txID, paRes)
	s.Require().NoError(err)
	s.True(completed.Success)
	s.Equal(domain.AuthStatusSuccessful, s.core.ThreeDS.GetStatus(ctx, txID))

	_, err = s.core.ThreeDS.Complete(ctx, txID, paRes)
	s.True(domain.IsErrorCode(err, domain.ErrCodeInvalidState))
}

// ============================================================================
// DISPATCH
// ============================================================================

func (s *CoreIntegrationTestSuite) Test_Dispatch_InternalLifecycle() {
	ctx := context.Background()

	created, err := s.core.Dispatcher.CreatePayment(ctx, domain.CreatePaymentRequest{
		IdempotencyKey: uuid.NewString(),
		Amount:         decimal.RequireFromString("20.00"),
		Currency:       "USD",
		CustomerID:     "cust-1",
		MethodType:     domain.MethodCash,
	})
	s.Require().NoError(err)
	s.True(created.Success)
	s.Equal(domain.ProcessorInternal, created.Processor)

	voided, err := s.core.Dispatcher.Void(ctx, domain.ProcessorInternal, domain.VoidRequest{
		IdempotencyKey: uuid.NewString(),
		TransactionID:  created.TransactionID,
	})
	s.Require().NoError(err)
	s.True(voided.Success)
}

// fakeDirectoryServer challenges every enrollment and authenticates every PaRes.
func fakeDirectoryServer(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/xml")
	if strings.Contains(string(body), "<PARes>") {
		_, _ = io.WriteString(w, `<ThreeDSecure><Message><AuthenticationResult>
<status>Y</status><cavv>AAABCZIhcQAAAABZlyFxAAAAAAA=</cavv><eci>05</eci><xid>x-1</xid>
</AuthenticationResult></Message></ThreeDSecure>`)
		return
	}
	_, _ = io.WriteString(w, `<ThreeDSecure><Message><EnrollmentResponse>
<enrolled>C</enrolled><acsURL>https://acs.visa.test/challenge</acsURL><PaReq>eJzVWNmSo7gS</PaReq>
</EnrollmentResponse></Message></ThreeDSecure>`)
}

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oggyb/muzz-introductions/internal/config"
	"github.com/oggyb/muzz-introductions/internal/handler"
	"github.com/oggyb/muzz-introductions/internal/logger"
	"github.com/oggyb/muzz-introductions/internal/middleware"
	"github.com/oggyb/muzz-introductions/internal/service/matching"
	"github.com/oggyb/muzz-introductions/internal/service/servicetest"
)

func testRouter(t *testing.T, rps int) http.Handler {
	t.Helper()
	env := servicetest.New(t)
	cfg := config.New()
	cfg.HTTP.AllowedOrigins = []string{"https://app.example.com"}
	h := handler.New(matching.New(env.App), nil, logger.Discard())
	return NewRouter(cfg, h, middleware.NewRateLimiter(rps, rps, logger.Discard()), logger.Discard())
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r := testRouter(t, 100)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "matchmaker_http_requests_total")
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := testRouter(t, 100)

	req := httptest.NewRequest(http.MethodOptions, "/matching-request", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimited(t *testing.T) {
	r := testRouter(t, 1)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestNewHTTPServer(t *testing.T) {
	cfg := config.New()
	cfg.HTTP.Host, cfg.HTTP.Port = "127.0.0.1", "9999"
	srv := NewHTTPServer(cfg, http.NotFoundHandler())
	assert.Equal(t, "127.0.0.1:9999", srv.Addr)
	assert.Equal(t, cfg.HTTP.ReadTimeout, srv.ReadTimeout)
}

func TestGRPCHealth(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	hr := NewHealthRegistrar("matchmaker")
	srv := NewGRPCServer(hr)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "matchmaker"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	hr.Shutdown()
	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "matchmaker"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

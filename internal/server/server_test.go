package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/shiftwise/internal/testutil"
	"github.com/shiftwise/shiftwise/pkg/types"
)

type sentCommands struct {
	commands []types.Command
	err      error
}

func (s *sentCommands) Send(_ context.Context, cmd types.Command) error {
	if s.err != nil {
		return s.err
	}
	s.commands = append(s.commands, cmd)
	return nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *testutil.MockStore, *sentCommands) {
	t.Helper()
	st := testutil.NewMockStore()
	sender := &sentCommands{}

	all := append([]Option{
		WithCommands(sender),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	srv := New(st, types.ServerConfig{Addr: ":0"}, all...)
	return srv, st, sender
}

func doRequest(t *testing.T, srv *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, st, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	st.ErrOn["Ping"] = fmt.Errorf("table missing")
	rec = doRequest(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListDeployments(t *testing.T) {
	srv, st, _ := newTestServer(t)
	require.NoError(t, st.RegisterDeployment(context.Background(), types.DeploymentConfig{Name: "api"}))

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/deployments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var deployments []types.DeploymentConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deployments))
	require.Len(t, deployments, 1)
	assert.Equal(t, "api", deployments[0].Name)
}

func TestListDeploymentsEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/deployments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestStatus(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterDeployment(ctx, types.DeploymentConfig{Name: "api"}))
	require.NoError(t, st.PutState(ctx, types.ShiftState{
		DeploymentID:  "api",
		Phase:         types.PhaseMonitoring,
		CurrentWeight: 25,
		Version:       3,
	}))
	require.NoError(t, st.AppendHistory(ctx, types.HistoryEntry{DeploymentID: "api", Weight: 25}))

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/deployments/api", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report types.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "api", report.Deployment)
	require.NotNil(t, report.State)
	assert.Equal(t, types.PhaseMonitoring, report.State.Phase)
	assert.Equal(t, 25, report.State.CurrentWeight)
	assert.Len(t, report.History, 1)
}

func TestStatusNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/deployments/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartCommand(t *testing.T) {
	srv, st, sender := newTestServer(t)
	require.NoError(t, st.RegisterDeployment(context.Background(), types.DeploymentConfig{Name: "api"}))

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/deployments/api/start", map[string]string{
		"X-Requested-By": "deploy-bot",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, sender.commands, 1)
	assert.Equal(t, types.CommandStart, sender.commands[0].Verb)
	assert.Equal(t, "api", sender.commands[0].DeploymentID)
	assert.Equal(t, "deploy-bot", sender.commands[0].RequestedBy)
}

func TestAbortCommand(t *testing.T) {
	srv, st, sender := newTestServer(t)
	require.NoError(t, st.RegisterDeployment(context.Background(), types.DeploymentConfig{Name: "api"}))

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/deployments/api/abort", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sender.commands, 1)
	assert.Equal(t, types.CommandAbort, sender.commands[0].Verb)
}

func TestCommandUnknownDeployment(t *testing.T) {
	srv, _, sender := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/deployments/ghost/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, sender.commands)
}

func TestCommandQueueFailure(t *testing.T) {
	srv, st, sender := newTestServer(t)
	require.NoError(t, st.RegisterDeployment(context.Background(), types.DeploymentConfig{Name: "api"}))
	sender.err = fmt.Errorf("queue unavailable")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/deployments/api/start", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	st := testutil.NewMockStore()
	srv := New(st, types.ServerConfig{Addr: ":0", APIKey: "sekrit"},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/deployments", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/deployments", map[string]string{"X-API-Key": "sekrit"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for load balancer checks.
	rec = doRequest(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

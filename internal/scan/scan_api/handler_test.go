package scan_api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-admission/internal/auth"
	"ms-admission/internal/models"
	"ms-admission/internal/occupancy"
	"ms-admission/internal/qrpass"
	"ms-admission/internal/rules"
	"ms-admission/internal/scan"
	"ms-admission/internal/scan/db"
	"ms-admission/internal/scan/scan_api"
	"ms-admission/internal/session"
	"ms-admission/internal/signature"
	"ms-admission/internal/ticketlock"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

const testSecret = "handler-test-secret"

type testServer struct {
	router *chi.Mux
	db     *db.DB
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Ticket)(nil),
		(*models.Event)(nil),
		(*models.TicketType)(nil),
		(*models.Gate)(nil),
		(*models.User)(nil),
		(*models.ScanLog)(nil),
		(*models.EventCounter)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}

	now := time.Now()
	event := models.Event{
		EventID:       "event-1",
		Name:          "Test Event",
		StartDatetime: now.Add(-time.Hour),
		EndDatetime:   now.Add(3 * time.Hour),
		Capacity:      100,
		AllowReentry:  true,
	}
	_, err = bunDB.NewInsert().Model(&event).Exec(ctx)
	require.NoError(t, err)
	ticketType := models.TicketType{TicketTypeID: "type-1", EventID: "event-1", Name: "General"}
	_, err = bunDB.NewInsert().Model(&ticketType).Exec(ctx)
	require.NoError(t, err)
	gate := models.Gate{GateID: "gate-1", EventID: "event-1", Name: "Main", Status: models.GateStatusActive}
	_, err = bunDB.NewInsert().Model(&gate).Exec(ctx)
	require.NoError(t, err)
	user := models.User{UserID: "user-1", Email: "buyer@example.com", FullName: "Test Buyer"}
	_, err = bunDB.NewInsert().Model(&user).Exec(ctx)
	require.NoError(t, err)

	d := &db.DB{Bun: bunDB}
	svc := scan.NewAdmissionService(
		d,
		session.NewStore(client, 20*time.Second, 2*time.Second),
		ticketlock.NewManager(client, 5*time.Second, 2*time.Second),
		occupancy.NewCounter(bunDB),
		rules.NewEngine(60*time.Second),
		nil,
		nil,
		[]byte(testSecret),
	)
	handler := scan_api.NewHandler(svc, qrpass.NewGenerator(testSecret), nil)

	r := chi.NewRouter()
	r.Post("/api/scan/request", handler.RequestScan)
	r.Post("/api/scan/confirm", handler.ConfirmScan)
	r.Post("/api/scan/pass/{ticketID}", handler.TicketPass)
	r.Get("/api/scan/occupancy/{eventID}", handler.Occupancy)

	return &testServer{router: r, db: d}
}

func (s *testServer) seedTicket(t *testing.T) models.Ticket {
	t.Helper()
	ticket := models.Ticket{
		TicketID:     uuid.New().String(),
		EventID:      "event-1",
		TicketTypeID: "type-1",
		UserID:       "user-1",
		Status:       models.TicketStatusPaid,
		QRNonce:      uuid.New().String(),
		IssuedAt:     time.Now(),
	}
	_, err := s.db.Bun.NewInsert().Model(&ticket).Exec(context.Background())
	require.NoError(t, err)
	return ticket
}

func (s *testServer) postJSON(t *testing.T, path string, body interface{}, ctx context.Context) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// requestSession drives the request leg and decodes the session payload.
func (s *testServer) requestSession(t *testing.T, ticket models.Ticket) scan.SessionResponse {
	t.Helper()
	sig := signature.Sign(ticket.TicketID, ticket.EventID, ticket.QRNonce, []byte(testSecret))
	rec := s.postJSON(t, "/api/scan/request", map[string]string{
		"ticket_id": ticket.TicketID,
		"signature": sig,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scan.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRequestScanEndpoint(t *testing.T) {
	s := setupServer(t)
	ticket := s.seedTicket(t)

	resp := s.requestSession(t, ticket)
	assert.NotEmpty(t, resp.SessionToken)
	assert.NotEmpty(t, resp.Nonce)
	assert.Equal(t, ticket.TicketID, resp.Ticket.TicketID)
	assert.Equal(t, "Test Buyer", resp.Ticket.BuyerName)
}

func TestRequestScanEndpoint_MissingFields(t *testing.T) {
	s := setupServer(t)

	rec := s.postJSON(t, "/api/scan/request", map[string]string{"ticket_id": "t1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestScanEndpoint_BadSignature(t *testing.T) {
	s := setupServer(t)
	ticket := s.seedTicket(t)

	rec := s.postJSON(t, "/api/scan/request", map[string]string{
		"ticket_id": ticket.TicketID,
		"signature": "deadbeef",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, false, envelope["success"])
	assert.Equal(t, "SIGNATURE_INVALID", envelope["error"])
}

func TestRequestScanEndpoint_UnknownTicket(t *testing.T) {
	s := setupServer(t)

	rec := s.postJSON(t, "/api/scan/request", map[string]string{
		"ticket_id": "missing",
		"signature": "deadbeef",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmScanEndpoint_EntryRoundTrip(t *testing.T) {
	s := setupServer(t)
	ticket := s.seedTicket(t)
	sess := s.requestSession(t, ticket)

	rec := s.postJSON(t, "/api/scan/confirm", map[string]string{
		"session_token": sess.SessionToken,
		"nonce":         sess.Nonce,
		"gate_id":       "gate-1",
		"agent_id":      "agent-1",
		"action":        "entry",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result scan.ScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, rules.CodeOK, result.Code)
	require.NotNil(t, result.EventStatus)
	assert.Equal(t, 1, result.EventStatus.CurrentIn)
}

func TestConfirmScanEndpoint_Replay(t *testing.T) {
	s := setupServer(t)
	ticket := s.seedTicket(t)
	sess := s.requestSession(t, ticket)

	body := map[string]string{
		"session_token": sess.SessionToken,
		"nonce":         sess.Nonce,
		"gate_id":       "gate-1",
		"agent_id":      "agent-1",
		"action":        "entry",
	}
	rec := s.postJSON(t, "/api/scan/confirm", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.postJSON(t, "/api/scan/confirm", body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var result scan.ScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, rules.CodeConflictScan, result.Code)
	assert.False(t, result.Valid)
}

func TestConfirmScanEndpoint_BusinessRejection(t *testing.T) {
	s := setupServer(t)
	ticket := s.seedTicket(t)
	sess := s.requestSession(t, ticket)

	rec := s.postJSON(t, "/api/scan/confirm", map[string]string{
		"session_token": sess.SessionToken,
		"nonce":         sess.Nonce,
		"gate_id":       "gate-1",
		"agent_id":      "agent-1",
		"action":        "exit",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var result scan.ScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, rules.CodeAlreadyOut, result.Code)
}

func TestConfirmScanEndpoint_MissingFields(t *testing.T) {
	s := setupServer(t)

	rec := s.postJSON(t, "/api/scan/confirm", map[string]string{"nonce": "n"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmScanEndpoint_AgentFromToken(t *testing.T) {
	s := setupServer(t)
	ticket := s.seedTicket(t)
	sess := s.requestSession(t, ticket)

	ctx := auth.ContextWithAgentID(context.Background(), "agent-from-token")
	rec := s.postJSON(t, "/api/scan/confirm", map[string]string{
		"session_token": sess.SessionToken,
		"nonce":         sess.Nonce,
		"gate_id":       "gate-1",
		"agent_id":      "agent-from-body",
		"action":        "entry",
	}, ctx)
	require.Equal(t, http.StatusOK, rec.Code)

	logs, err := s.db.GetScanLogsByTicket(context.Background(), ticket.TicketID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "agent-from-token", logs[0].AgentID, "verified token identity must win over the body")
}

func TestTicketPassEndpoint(t *testing.T) {
	s := setupServer(t)
	ticket := s.seedTicket(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scan/pass/"+ticket.TicketID, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestTicketPassEndpoint_UnknownTicket(t *testing.T) {
	s := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scan/pass/missing", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOccupancyEndpoint(t *testing.T) {
	s := setupServer(t)
	ticket := s.seedTicket(t)
	sess := s.requestSession(t, ticket)
	s.postJSON(t, "/api/scan/confirm", map[string]string{
		"session_token": sess.SessionToken,
		"nonce":         sess.Nonce,
		"gate_id":       "gate-1",
		"agent_id":      "agent-1",
		"action":        "entry",
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/scan/occupancy/event-1", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Success bool             `json:"success"`
		Data    scan.EventStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, 1, envelope.Data.CurrentIn)
	assert.Equal(t, 100, envelope.Data.Capacity)

	req = httptest.NewRequest(http.MethodGet, "/api/scan/occupancy/missing", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package performance_test

import (
	"bufio"
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/handler"
	"github.com/noah-isme/recruitment-go-api/internal/middleware"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/service"
)

func TestExamSocketFirstStateP95Under250ms(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	assessments := app.Group("/api/v2/assessments", func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, uint(42))
		c.Locals(middleware.LocalUserRole, "candidate")
		return c.Next()
	})
	handler.NewExamSocketHandler(&stubAssessmentService{}, stubIntegrityService{}, time.Second, zerolog.Nop()).Register(assessments)

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v2/assessments/sessions/1/ws"
	clients := 300
	durations := make([]time.Duration, 0, clients)

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	for i := 0; i < clients; i++ {
		start := time.Now()
		conn, resp, err := dialer.Dial(url, http.Header{"X-Correlation-ID": {"perf-" + strconv.Itoa(i)}})
		if err != nil {
			t.Fatalf("websocket dial failed: %v", err)
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var event handler.SocketOutbound
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read session state failed: %v", err)
		}
		if event.Type != handler.SocketMessageSession {
			t.Fatalf("expected session event first, got %q", event.Type)
		}
		_ = conn.Close()

		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)

	if p95 > 250*time.Millisecond {
		t.Fatalf("expected exam socket P95 <= 250ms, got %s", p95)
	}
}

func TestNotificationsSSEP95Under300ms(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	notifications := handler.NewNotificationHandler(&stubNotificationService{}, zerolog.Nop(), 30*time.Second)

	group := app.Group("/api/v2/notifications", func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, uint(7))
		return c.Next()
	})
	notifications.Register(group)

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	client := &http.Client{Timeout: 5 * time.Second}
	clients := 200
	durations := make([]time.Duration, 0, clients)

	for i := 0; i < clients; i++ {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v2/notifications/stream", nil)
		if err != nil {
			t.Fatalf("build request failed: %v", err)
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("sse request failed: %v", err)
		}

		reader := bufio.NewReader(resp.Body)
		deadline := time.Now().Add(2 * time.Second)

		for {
			if time.Now().After(deadline) {
				t.Fatalf("sse response timed out for client %d", i)
			}
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("failed to read sse line: %v", err)
			}
			if strings.HasPrefix(line, "data:") {
				durations = append(durations, time.Since(start))
				break
			}
		}

		resp.Body.Close()
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)

	if p95 > 300*time.Millisecond {
		t.Fatalf("expected SSE P95 <= 300ms, got %s", p95)
	}
}

func percentile(values []time.Duration, pct float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	index := int(math.Ceil(pct*float64(len(values)))) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(values) {
		index = len(values) - 1
	}
	return values[index]
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}

// stubAssessmentService serves a single in-progress session owned by candidate 42.
type stubAssessmentService struct {
	service.AssessmentService
}

func (s *stubAssessmentService) OwnedSession(_ context.Context, sessionID, candidateID uint) (models.AssessmentSession, error) {
	if candidateID != 42 {
		return models.AssessmentSession{}, service.ErrForbidden
	}
	return models.AssessmentSession{ID: sessionID, CandidateID: candidateID, Status: models.SessionInProgress}, nil
}

func (s *stubAssessmentService) Session(_ context.Context, sessionID uint, _ service.ActivityActor) (dto.SessionResponse, error) {
	return dto.SessionResponse{ID: sessionID, Status: string(models.SessionInProgress), RemainingSeconds: 900}, nil
}

type stubIntegrityService struct{}

func (stubIntegrityService) Report(context.Context, uint, dto.ViolationRequest, service.ActivityActor) (dto.ViolationOutcome, error) {
	return dto.ViolationOutcome{}, nil
}

type stubNotificationService struct{}

func (s *stubNotificationService) Notify(context.Context, service.PipelineEvent) {}

func (s *stubNotificationService) Publish(_ context.Context, payload service.NotificationPayload) (dto.NotificationResponse, error) {
	return dto.NotificationResponse{ID: 1}, nil
}

func (s *stubNotificationService) List(context.Context, string, int, int) ([]dto.NotificationResponse, int64, error) {
	return []dto.NotificationResponse{}, 0, nil
}

func (s *stubNotificationService) MarkRead(_ context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	return dto.NotificationResponse{ID: id, UserID: userID}, nil
}

func (s *stubNotificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	ch := make(chan dto.NotificationResponse, 1)
	ch <- dto.NotificationResponse{ID: 1, UserID: userID, Type: "stage_advanced", Message: "You moved to the assessment stage", CreatedAt: time.Now()}
	return ch, func() {}
}

func (s *stubNotificationService) Start(context.Context) {}

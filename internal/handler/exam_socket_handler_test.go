package handler_test

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/handler"
	"github.com/noah-isme/recruitment-go-api/internal/middleware"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/service"
)

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

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

	return "ws://" + listener.Addr().String(), shutdown
}

func socketStubs() (*stubAssessment, *stubIntegrity) {
	inProgress := dto.SessionResponse{ID: 1, Status: string(models.SessionInProgress), RemainingSeconds: 600}
	sealedAt := fixedTime()
	sealed := dto.SessionResponse{ID: 1, Status: string(models.SessionSealed), SealedAt: &sealedAt, SealReason: string(models.SealSubmitted)}

	assessment := &stubAssessment{
		ownedFn: func(sessionID, candidateID uint) (models.AssessmentSession, error) {
			if sessionID != 1 || candidateID != 42 {
				return models.AssessmentSession{}, service.ErrForbidden
			}
			return models.AssessmentSession{ID: 1, CandidateID: 42}, nil
		},
		sessionFn: func(uint, service.ActivityActor) (dto.SessionResponse, error) {
			return inProgress, nil
		},
		draftFn: func(_ uint, payload dto.DraftRequest) (dto.SessionResponse, error) {
			view := inProgress
			view.Draft = &dto.DraftResponse{QuestionID: payload.QuestionID}
			return view, nil
		},
		answerFn: func(uint, uint, dto.AnswerRequest) (dto.SessionResponse, error) {
			return dto.SessionResponse{}, service.ErrAnswerKindMismatch
		},
		submitFn: func(uint, dto.SealRequest) (dto.SealResponse, error) {
			return dto.SealResponse{Session: sealed, Sealed: true}, nil
		},
	}
	integrity := &stubIntegrity{reportFn: func(_ uint, payload dto.ViolationRequest) (dto.ViolationOutcome, error) {
		return dto.ViolationOutcome{Warning: true, Message: "stay on the exam page", Session: inProgress}, nil
	}}
	return assessment, integrity
}

func socketServer(t *testing.T, assessment service.AssessmentService, integrity service.IntegrityService) (string, func()) {
	t.Helper()
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, uint(42))
		c.Locals(middleware.LocalUserRole, "candidate")
		return c.Next()
	})
	handler.NewExamSocketHandler(assessment, integrity, 20*time.Millisecond, zerolog.Nop()).Register(app.Group("/api/v2/assessments"))
	return startFiberServer(t, app)
}

// readEvent skips ticks until an event of the wanted type arrives.
func readEvent(t *testing.T, conn *websocket.Conn, want string) handler.SocketOutbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var event handler.SocketOutbound
		require.NoError(t, conn.ReadJSON(&event))
		if event.Type == want {
			return event
		}
		require.Equal(t, handler.SocketMessageTick, event.Type, "unexpected event %+v", event)
	}
}

func TestExamSocketLifecycle(t *testing.T) {
	assessment, integrity := socketStubs()
	baseURL, shutdown := socketServer(t, assessment, integrity)
	defer shutdown()

	conn, resp, err := websocket.DefaultDialer.Dial(baseURL+"/api/v2/assessments/sessions/1/ws", nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	first := readEvent(t, conn, handler.SocketMessageSession)
	require.NotNil(t, first.Session)
	require.Equal(t, int64(600), first.Session.RemainingSeconds)

	readEvent(t, conn, handler.SocketMessageTick)

	require.NoError(t, conn.WriteJSON(handler.SocketInbound{Type: handler.SocketMessageViolation, Category: "focus_loss"}))
	warning := readEvent(t, conn, handler.SocketMessageViolation)
	require.True(t, warning.Warning)
	require.Equal(t, "stay on the exam page", warning.Message)

	require.NoError(t, conn.WriteJSON(handler.SocketInbound{Type: handler.SocketMessageDraft, QuestionID: 3}))
	draft := readEvent(t, conn, handler.SocketMessageDraft)
	require.NotNil(t, draft.Session.Draft)
	require.Equal(t, uint(3), draft.Session.Draft.QuestionID)

	require.NoError(t, conn.WriteJSON(handler.SocketInbound{Type: handler.SocketMessageAnswer, QuestionID: 3, ChoiceID: ptrUint(1)}))
	failure := readEvent(t, conn, handler.SocketMessageError)
	require.Equal(t, service.ErrAnswerKindMismatch.Error(), failure.Message)

	require.NoError(t, conn.WriteJSON(handler.SocketInbound{Type: handler.SocketMessageSeal, Reason: "submitted"}))
	sealed := readEvent(t, conn, handler.SocketMessageSealed)
	require.True(t, sealed.Sealed)

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func TestExamSocketRejectsForeignSession(t *testing.T) {
	assessment, integrity := socketStubs()
	baseURL, shutdown := socketServer(t, assessment, integrity)
	defer shutdown()

	_, resp, err := websocket.DefaultDialer.Dial(baseURL+"/api/v2/assessments/sessions/2/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestExamSocketRequiresUpgrade(t *testing.T) {
	assessment, integrity := socketStubs()
	app := fiber.New()
	handler.NewExamSocketHandler(assessment, integrity, time.Second, zerolog.Nop()).Register(app.Group("/api/v2/assessments"))

	resp := doJSON(t, app, http.MethodGet, "/api/v2/assessments/sessions/1/ws", nil)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
}

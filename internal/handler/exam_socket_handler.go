package handler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/middleware"
	"github.com/noah-isme/recruitment-go-api/internal/observability"
	"github.com/noah-isme/recruitment-go-api/internal/service"
	"github.com/noah-isme/recruitment-go-api/internal/utils"
)

const (
	localSocketSession = "exam_session_id"
	localSocketActor   = "exam_actor"

	socketWriteWait = 5 * time.Second
)

// Socket message types.
const (
	SocketMessageTick      = "tick"
	SocketMessageSession   = "session"
	SocketMessageViolation = "violation"
	SocketMessageDraft     = "draft"
	SocketMessageAnswer    = "answer"
	SocketMessageSeal      = "seal"
	SocketMessageSealed    = "sealed"
	SocketMessageError     = "error"
)

// SocketInbound is a client message on the exam socket.
type SocketInbound struct {
	Type       string                 `json:"type"`
	QuestionID uint                   `json:"question_id,omitempty"`
	ChoiceID   *uint                  `json:"choice_id,omitempty"`
	Text       *string                `json:"text,omitempty"`
	Category   string                 `json:"category,omitempty"`
	Detail     string                 `json:"detail,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
}

// SocketOutbound is a server push on the exam socket.
type SocketOutbound struct {
	Type    string               `json:"type"`
	Session *dto.SessionResponse `json:"session,omitempty"`
	Warning bool                 `json:"warning,omitempty"`
	Sealed  bool                 `json:"sealed,omitempty"`
	Message string               `json:"message,omitempty"`
}

// ExamSocketHandler pushes the remaining time of a session and accepts
// violations, drafts and answers over a websocket.
type ExamSocketHandler struct {
	assessment service.AssessmentService
	integrity  service.IntegrityService
	tick       time.Duration
	logger     zerolog.Logger
}

// NewExamSocketHandler constructs the exam socket handler.
func NewExamSocketHandler(assessment service.AssessmentService, integrity service.IntegrityService, tick time.Duration, logger zerolog.Logger) *ExamSocketHandler {
	if tick <= 0 {
		tick = time.Second
	}
	return &ExamSocketHandler{
		assessment: assessment,
		integrity:  integrity,
		tick:       tick,
		logger:     logger.With().Str("component", "exam_socket_handler").Logger(),
	}
}

// Register binds the socket route under the assessment group.
func (h *ExamSocketHandler) Register(router fiber.Router) {
	router.Get("/sessions/:id/ws", h.upgrade, websocket.New(h.serve))
}

func (h *ExamSocketHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor := actorFromContext(c)
	if _, err := h.assessment.OwnedSession(requestContext(c), id, actor.ID); err != nil {
		return respondError(c, h.logger, err, "failed to open exam socket")
	}

	c.Locals(localSocketSession, id)
	c.Locals(localSocketActor, actor)
	return c.Next()
}

type examConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (e *examConn) send(event SocketOutbound) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return e.conn.WriteJSON(event)
}

func (e *examConn) close(code int, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(socketWriteWait))
}

func (h *ExamSocketHandler) serve(conn *websocket.Conn) {
	sessionID, _ := conn.Locals(localSocketSession).(uint)
	actor, _ := conn.Locals(localSocketActor).(service.ActivityActor)
	correlation, _ := conn.Locals("correlation_id").(string)

	ctx, cancel := context.WithCancel(middleware.ContextWithCorrelation(context.Background(), correlation))
	defer cancel()

	logger := h.logger.With().Uint("session_id", sessionID).Uint("user_id", actor.ID).Str("correlation_id", correlation).Logger()
	gauge := observability.ExamSocketsActive()
	gauge.Inc()
	defer gauge.Dec()

	out := &examConn{conn: conn}
	logger.Info().Msg("exam socket connected")
	defer logger.Info().Msg("exam socket disconnected")

	inbound := make(chan SocketInbound)
	go func() {
		defer cancel()
		for {
			var message SocketInbound
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := json.Unmarshal(raw, &message); err != nil {
				_ = out.send(SocketOutbound{Type: SocketMessageError, Message: "invalid message"})
				continue
			}
			select {
			case inbound <- message:
			case <-ctx.Done():
				return
			}
		}
	}()

	if done := h.push(ctx, out, sessionID, actor, SocketMessageSession); done {
		return
	}

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := h.push(ctx, out, sessionID, actor, SocketMessageTick); done {
				return
			}
		case message := <-inbound:
			if done := h.dispatch(ctx, out, sessionID, actor, message, logger); done {
				return
			}
		}
	}
}

// push sends the current session state and reports whether the socket is finished.
func (h *ExamSocketHandler) push(ctx context.Context, out *examConn, sessionID uint, actor service.ActivityActor, kind string) bool {
	session, err := h.assessment.Session(ctx, sessionID, actor)
	if err != nil {
		_ = out.send(SocketOutbound{Type: SocketMessageError, Message: err.Error()})
		out.close(websocket.CloseInternalServerErr, "session unavailable")
		return true
	}
	return h.sendState(out, kind, session, false, "")
}

func (h *ExamSocketHandler) sendState(out *examConn, kind string, session dto.SessionResponse, warning bool, message string) bool {
	sealed := session.SealedAt != nil
	if sealed {
		kind = SocketMessageSealed
	}
	if err := out.send(SocketOutbound{Type: kind, Session: &session, Warning: warning, Sealed: sealed, Message: message}); err != nil {
		return true
	}
	if sealed {
		out.close(websocket.CloseNormalClosure, "assessment sealed")
		return true
	}
	return false
}

func (h *ExamSocketHandler) dispatch(ctx context.Context, out *examConn, sessionID uint, actor service.ActivityActor, message SocketInbound, logger zerolog.Logger) bool {
	var (
		session dto.SessionResponse
		warning bool
		text    string
		err     error
	)

	switch message.Type {
	case SocketMessageViolation:
		var outcome dto.ViolationOutcome
		outcome, err = h.integrity.Report(ctx, sessionID, dto.ViolationRequest{
			Category: message.Category,
			Detail:   message.Detail,
			Metadata: message.Metadata,
		}, actor)
		session, warning, text = outcome.Session, outcome.Warning, outcome.Message
	case SocketMessageDraft:
		session, err = h.assessment.SaveDraft(ctx, sessionID, dto.DraftRequest{
			QuestionID: message.QuestionID,
			ChoiceID:   message.ChoiceID,
			Text:       message.Text,
		}, actor)
	case SocketMessageAnswer:
		session, err = h.assessment.RecordAnswer(ctx, sessionID, message.QuestionID, dto.AnswerRequest{
			ChoiceID: message.ChoiceID,
			Text:     message.Text,
		}, actor)
	case SocketMessageSeal:
		var result dto.SealResponse
		result, err = h.assessment.Submit(ctx, sessionID, dto.SealRequest{Reason: message.Reason}, actor)
		session, text = result.Session, result.Message
	default:
		return out.send(SocketOutbound{Type: SocketMessageError, Message: "unknown message type"}) != nil
	}

	if err != nil {
		if errors.Is(err, service.ErrDeadlineExceeded) || errors.Is(err, service.ErrSessionSealed) {
			_ = out.send(SocketOutbound{Type: SocketMessageError, Message: err.Error()})
			return h.push(ctx, out, sessionID, actor, SocketMessageSession)
		}
		if _, text, known := statusFor(err); known {
			return out.send(SocketOutbound{Type: SocketMessageError, Message: text}) != nil
		}
		if isValidationError(err) {
			return out.send(SocketOutbound{Type: SocketMessageError, Message: "validation failed"}) != nil
		}
		logger.Error().Err(err).Str("type", message.Type).Msg("exam socket message failed")
		return out.send(SocketOutbound{Type: SocketMessageError, Message: "request failed"}) != nil
	}

	return h.sendState(out, message.Type, session, warning, text)
}

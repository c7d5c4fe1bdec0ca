package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/handler"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/service"
)

type stubAssessment struct {
	service.AssessmentService

	startFn   func(payload dto.StartAssessmentRequest) (dto.StartAssessmentResponse, error)
	sessionFn func(sessionID uint, actor service.ActivityActor) (dto.SessionResponse, error)
	answerFn  func(sessionID, questionID uint, payload dto.AnswerRequest) (dto.SessionResponse, error)
	draftFn   func(sessionID uint, payload dto.DraftRequest) (dto.SessionResponse, error)
	submitFn  func(sessionID uint, payload dto.SealRequest) (dto.SealResponse, error)
	ownedFn   func(sessionID, candidateID uint) (models.AssessmentSession, error)
	reviewFn  func(sessionID uint) (dto.SessionReviewResponse, error)
	sweepFn   func(limit int) (dto.SweepResult, error)
}

func (s *stubAssessment) Start(_ context.Context, _ service.ActivityActor, payload dto.StartAssessmentRequest) (dto.StartAssessmentResponse, error) {
	return s.startFn(payload)
}

func (s *stubAssessment) Session(_ context.Context, sessionID uint, actor service.ActivityActor) (dto.SessionResponse, error) {
	return s.sessionFn(sessionID, actor)
}

func (s *stubAssessment) RecordAnswer(_ context.Context, sessionID, questionID uint, payload dto.AnswerRequest, _ service.ActivityActor) (dto.SessionResponse, error) {
	return s.answerFn(sessionID, questionID, payload)
}

func (s *stubAssessment) SaveDraft(_ context.Context, sessionID uint, payload dto.DraftRequest, _ service.ActivityActor) (dto.SessionResponse, error) {
	return s.draftFn(sessionID, payload)
}

func (s *stubAssessment) Submit(_ context.Context, sessionID uint, payload dto.SealRequest, _ service.ActivityActor) (dto.SealResponse, error) {
	return s.submitFn(sessionID, payload)
}

func (s *stubAssessment) OwnedSession(_ context.Context, sessionID, candidateID uint) (models.AssessmentSession, error) {
	return s.ownedFn(sessionID, candidateID)
}

func (s *stubAssessment) ReviewSession(_ context.Context, sessionID uint) (dto.SessionReviewResponse, error) {
	return s.reviewFn(sessionID)
}

func (s *stubAssessment) SweepExpired(_ context.Context, limit int) (dto.SweepResult, error) {
	return s.sweepFn(limit)
}

type stubIntegrity struct {
	reportFn func(sessionID uint, payload dto.ViolationRequest) (dto.ViolationOutcome, error)
}

func (s *stubIntegrity) Report(_ context.Context, sessionID uint, payload dto.ViolationRequest, _ service.ActivityActor) (dto.ViolationOutcome, error) {
	return s.reportFn(sessionID, payload)
}

func examApp(assessment service.AssessmentService, integrity service.IntegrityService) *fiber.App {
	h := handler.NewAssessmentHandler(assessment, integrity, zerolog.Nop())
	return newApp(42, "candidate", "/api/v2/assessments", h.Register)
}

func TestAssessmentHandlerStartAndResume(t *testing.T) {
	assessment := &stubAssessment{startFn: func(payload dto.StartAssessmentRequest) (dto.StartAssessmentResponse, error) {
		if !payload.AcceptRules {
			return dto.StartAssessmentResponse{}, service.ErrRulesNotAccepted
		}
		return dto.StartAssessmentResponse{
			Session: dto.SessionResponse{ID: 1, Status: string(models.SessionInProgress), RemainingSeconds: 1800},
			Resumed: payload.ApplicationID == 2,
		}, nil
	}}
	app := examApp(assessment, nil)

	resp := doJSON(t, app, http.MethodPost, "/api/v2/assessments/start", dto.StartAssessmentRequest{ApplicationID: 1, DefinitionID: 1, AcceptRules: true})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "assessment started", decodeEnvelope(t, resp).Message)

	resp = doJSON(t, app, http.MethodPost, "/api/v2/assessments/start", dto.StartAssessmentRequest{ApplicationID: 2, DefinitionID: 1, AcceptRules: true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "assessment resumed", decodeEnvelope(t, resp).Message)

	resp = doJSON(t, app, http.MethodPost, "/api/v2/assessments/start", dto.StartAssessmentRequest{ApplicationID: 1, DefinitionID: 1})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAssessmentHandlerStartGuards(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrOutsideWindow, fiber.StatusForbidden},
		{service.ErrAlreadyCompleted, fiber.StatusConflict},
		{service.ErrAssessmentNotEligible, fiber.StatusForbidden},
		{service.ErrDefinitionNotFound, fiber.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assessment := &stubAssessment{startFn: func(dto.StartAssessmentRequest) (dto.StartAssessmentResponse, error) {
				return dto.StartAssessmentResponse{}, tc.err
			}}
			resp := doJSON(t, examApp(assessment, nil), http.MethodPost, "/api/v2/assessments/start",
				dto.StartAssessmentRequest{ApplicationID: 1, DefinitionID: 1, AcceptRules: true})
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, tc.err.Error(), decodeEnvelope(t, resp).Message)
		})
	}
}

func TestAssessmentHandlerAnswerAfterDeadline(t *testing.T) {
	assessment := &stubAssessment{answerFn: func(sessionID, questionID uint, payload dto.AnswerRequest) (dto.SessionResponse, error) {
		require.Equal(t, uint(4), sessionID)
		require.Equal(t, uint(9), questionID)
		require.NotNil(t, payload.ChoiceID)
		return dto.SessionResponse{}, service.ErrDeadlineExceeded
	}}

	resp := doJSON(t, examApp(assessment, nil), http.MethodPut, "/api/v2/assessments/sessions/4/answers/9", dto.AnswerRequest{ChoiceID: ptrUint(3)})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "time is up, your answers have been submitted automatically", decodeEnvelope(t, resp).Message)
}

func TestAssessmentHandlerAnswerKindMismatch(t *testing.T) {
	assessment := &stubAssessment{answerFn: func(uint, uint, dto.AnswerRequest) (dto.SessionResponse, error) {
		return dto.SessionResponse{}, service.ErrAnswerKindMismatch
	}}
	text := "free text"
	resp := doJSON(t, examApp(assessment, nil), http.MethodPut, "/api/v2/assessments/sessions/4/answers/9", dto.AnswerRequest{Text: &text})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	assessment.answerFn = func(uint, uint, dto.AnswerRequest) (dto.SessionResponse, error) {
		return dto.SessionResponse{}, service.ErrBlankAnswer
	}
	blank := "   "
	resp = doJSON(t, examApp(assessment, nil), http.MethodPut, "/api/v2/assessments/sessions/4/answers/9", dto.AnswerRequest{Text: &blank})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, service.ErrBlankAnswer.Error(), decodeEnvelope(t, resp).Message)
}

func TestAssessmentHandlerDraft(t *testing.T) {
	assessment := &stubAssessment{draftFn: func(_ uint, payload dto.DraftRequest) (dto.SessionResponse, error) {
		return dto.SessionResponse{ID: 4, Draft: &dto.DraftResponse{QuestionID: payload.QuestionID}}, nil
	}}
	resp := doJSON(t, examApp(assessment, nil), http.MethodPut, "/api/v2/assessments/sessions/4/draft", dto.DraftRequest{QuestionID: 7})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.SessionResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.NotNil(t, body.Data.Draft)
	require.Equal(t, uint(7), body.Data.Draft.QuestionID)
}

func TestAssessmentHandlerSealMessages(t *testing.T) {
	assessment := &stubAssessment{submitFn: func(sessionID uint, payload dto.SealRequest) (dto.SealResponse, error) {
		switch sessionID {
		case 1:
			require.Equal(t, "submitted", payload.Reason)
			return dto.SealResponse{Sealed: true}, nil
		case 2:
			return dto.SealResponse{Sealed: false}, nil
		default:
			return dto.SealResponse{Sealed: true, Message: service.ErrDeadlineExceeded.Error()}, nil
		}
	}}
	app := examApp(assessment, nil)

	resp := doJSON(t, app, http.MethodPost, "/api/v2/assessments/sessions/1/seal", fiber.Map{"reason": "submitted"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "assessment submitted", decodeEnvelope(t, resp).Message)

	resp = doJSON(t, app, http.MethodPost, "/api/v2/assessments/sessions/2/seal", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, service.ErrSessionSealed.Error(), decodeEnvelope(t, resp).Message)

	resp = doJSON(t, app, http.MethodPost, "/api/v2/assessments/sessions/3/seal", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, service.ErrDeadlineExceeded.Error(), decodeEnvelope(t, resp).Message)
}

func TestAssessmentHandlerSealNoAnswers(t *testing.T) {
	assessment := &stubAssessment{submitFn: func(uint, dto.SealRequest) (dto.SealResponse, error) {
		return dto.SealResponse{}, service.ErrNoAnswersProvided
	}}
	resp := doJSON(t, examApp(assessment, nil), http.MethodPost, "/api/v2/assessments/sessions/1/seal", fiber.Map{"reason": "submitted"})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAssessmentHandlerViolation(t *testing.T) {
	integrity := &stubIntegrity{reportFn: func(_ uint, payload dto.ViolationRequest) (dto.ViolationOutcome, error) {
		if payload.Category == "focus_loss" {
			return dto.ViolationOutcome{Warning: true, Message: "stay on the exam page, 1 more will submit your answers"}, nil
		}
		return dto.ViolationOutcome{Sealed: true, Message: "assessment submitted after repeated clipboard use"}, nil
	}}
	app := examApp(nil, integrity)

	resp := doJSON(t, app, http.MethodPost, "/api/v2/assessments/sessions/1/violations", dto.ViolationRequest{Category: "focus_loss"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	body := decodeEnvelope(t, resp)
	require.Contains(t, body.Message, "1 more")

	resp = doJSON(t, app, http.MethodPost, "/api/v2/assessments/sessions/1/violations", dto.ViolationRequest{Category: "clipboard"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var sealed struct {
		Data dto.ViolationOutcome `json:"data"`
	}
	decodeResponse(t, resp, &sealed)
	require.True(t, sealed.Data.Sealed)
}

func TestAssessmentHandlerViolationRateLimited(t *testing.T) {
	integrity := &stubIntegrity{reportFn: func(uint, dto.ViolationRequest) (dto.ViolationOutcome, error) {
		return dto.ViolationOutcome{Warning: true}, nil
	}}
	app := examApp(nil, integrity)

	var last int
	for i := 0; i < 21; i++ {
		resp := doJSON(t, app, http.MethodPost, "/api/v2/assessments/sessions/1/violations", dto.ViolationRequest{Category: "navigation"})
		last = resp.StatusCode
	}
	require.Equal(t, fiber.StatusTooManyRequests, last)
}

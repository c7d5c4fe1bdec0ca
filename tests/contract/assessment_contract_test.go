package contract_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
)

func TestAssessmentJourneyContract(t *testing.T) {
	s := newStack(t)
	candidate := token(t, 42, "candidate")
	reviewer := token(t, 900, "hr")

	statusSchema := compileSchema(t, "application_status.schema.json")
	sessionSchema := compileSchema(t, "assessment_session.schema.json")
	violationSchema := compileSchema(t, "violation_outcome.schema.json")
	sealSchema := compileSchema(t, "seal_response.schema.json")

	var applied struct {
		Data dto.ApplicationResponse `json:"data"`
	}
	s.call(t, candidate, http.MethodPost, "/api/v2/applications", dto.ApplyRequest{VacancyPeriodID: 1}, http.StatusCreated, &applied)
	appID := applied.Data.ID
	require.NotZero(t, appID)

	payload := s.call(t, candidate, http.MethodGet, fmt.Sprintf("/api/v2/applications/%d/status", appID), nil, http.StatusOK, nil)
	require.NoError(t, statusSchema.Validate(payload))

	qualified := true
	payload = s.call(t, reviewer, http.MethodPost, fmt.Sprintf("/api/v2/hr/applications/%d/stages/ADMINISTRATIVE/advance", appID),
		dto.StageAdvanceRequest{Qualified: &qualified}, http.StatusOK, nil)
	require.NoError(t, statusSchema.Validate(payload))

	var started struct {
		Data dto.StartAssessmentResponse `json:"data"`
	}
	s.call(t, candidate, http.MethodPost, "/api/v2/assessments/start",
		dto.StartAssessmentRequest{ApplicationID: appID, DefinitionID: s.definitionID, AcceptRules: true}, http.StatusCreated, &started)
	sessionID := started.Data.Session.ID
	require.Len(t, started.Data.Paper.Questions, 2)

	mc := started.Data.Paper.Questions[0]
	essay := started.Data.Paper.Questions[1]
	require.Equal(t, "multiple_choice", mc.Kind)

	choice := mc.Choices[0].ID
	payload = s.call(t, candidate, http.MethodPut, fmt.Sprintf("/api/v2/assessments/sessions/%d/answers/%d", sessionID, mc.ID),
		dto.AnswerRequest{ChoiceID: &choice}, http.StatusOK, nil)
	require.NoError(t, sessionSchema.Validate(payload))

	text := "Check dashboards, then roll back the latest deploy."
	payload = s.call(t, candidate, http.MethodPut, fmt.Sprintf("/api/v2/assessments/sessions/%d/draft", sessionID),
		dto.DraftRequest{QuestionID: essay.ID, Text: &text}, http.StatusOK, nil)
	require.NoError(t, sessionSchema.Validate(payload))

	payload = s.call(t, candidate, http.MethodPost, fmt.Sprintf("/api/v2/assessments/sessions/%d/violations", sessionID),
		dto.ViolationRequest{Category: "focus_loss", Detail: "tab hidden"}, http.StatusCreated, nil)
	require.NoError(t, violationSchema.Validate(payload))

	payload = s.call(t, candidate, http.MethodGet, fmt.Sprintf("/api/v2/assessments/sessions/%d", sessionID), nil, http.StatusOK, nil)
	require.NoError(t, sessionSchema.Validate(payload))

	var sealed struct {
		Data dto.SealResponse `json:"data"`
	}
	payload = s.call(t, candidate, http.MethodPost, fmt.Sprintf("/api/v2/assessments/sessions/%d/seal", sessionID),
		dto.SealRequest{Reason: "submitted"}, http.StatusOK, &sealed)
	require.NoError(t, sealSchema.Validate(payload))
	require.True(t, sealed.Data.Sealed)
	require.Len(t, sealed.Data.Session.Answers, 2, "the pending essay draft is flushed on seal")

	payload = s.call(t, candidate, http.MethodPost, fmt.Sprintf("/api/v2/assessments/sessions/%d/seal", sessionID),
		dto.SealRequest{Reason: "submitted"}, http.StatusOK, &sealed)
	require.NoError(t, sealSchema.Validate(payload))
	require.False(t, sealed.Data.Sealed)

	s.call(t, candidate, http.MethodPut, fmt.Sprintf("/api/v2/assessments/sessions/%d/answers/%d", sessionID, mc.ID),
		dto.AnswerRequest{ChoiceID: &choice}, http.StatusConflict, nil)

	payload = s.call(t, reviewer, http.MethodGet, fmt.Sprintf("/api/v2/hr/applications/%d/status", appID), nil, http.StatusOK, nil)
	require.NoError(t, statusSchema.Validate(payload))
}

func TestErrorEnvelopeContract(t *testing.T) {
	s := newStack(t)
	envelope := compileSchema(t, "envelope.schema.json")
	candidate := token(t, 42, "candidate")

	payload := s.call(t, candidate, http.MethodPost, "/api/v2/applications", dto.ApplyRequest{}, http.StatusBadRequest, nil)
	require.NoError(t, envelope.Validate(payload))

	payload = s.call(t, candidate, http.MethodGet, "/api/v2/assessments/sessions/999", nil, http.StatusNotFound, nil)
	require.NoError(t, envelope.Validate(payload))
}

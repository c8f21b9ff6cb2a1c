package handler

import (
	"time"

	"identrisk/internal/fraud/models"
	"identrisk/internal/fraud/service"
	dErrors "identrisk/pkg/domain-errors"
)

type ScoreResponse struct {
	ID                string             `json:"id"`
	TransactionID     string             `json:"transactionId"`
	UserID            string             `json:"userId"`
	RiskScore         float64            `json:"riskScore"`
	RiskLevel         string             `json:"riskLevel"`
	RiskFactors       map[string]float64 `json:"riskFactors"`
	IsSuspicious      bool               `json:"isSuspicious"`
	RecommendedAction string             `json:"recommendedAction"`
	IsBlocked         bool               `json:"isBlocked"`
	RequiresReview    bool               `json:"requiresReview"`
	RuleTriggers      []string           `json:"ruleTriggers"`
	ScoredAt          string             `json:"scoredAt"`
}

type BatchFailure struct {
	Index            int    `json:"index"`
	TransactionID    string `json:"transactionId,omitempty"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type BatchResponse struct {
	Results  []ScoreResponse `json:"results"`
	Failures []BatchFailure  `json:"failures"`
}

func toScoreResponse(s *models.FraudScore) ScoreResponse {
	factors := make(map[string]float64, len(s.RiskFactors))
	for f, v := range s.RiskFactors {
		factors[string(f)] = v
	}
	triggers := s.RuleTriggers
	if triggers == nil {
		triggers = []string{}
	}
	return ScoreResponse{
		ID:                s.ID.String(),
		TransactionID:     s.TransactionID,
		UserID:            s.UserID,
		RiskScore:         s.RiskScore,
		RiskLevel:         string(s.RiskLevel),
		RiskFactors:       factors,
		IsSuspicious:      s.IsSuspicious,
		RecommendedAction: string(s.RecommendedAction),
		IsBlocked:         s.IsBlocked,
		RequiresReview:    s.RequiresReview,
		RuleTriggers:      triggers,
		ScoredAt:          s.ScoredAt.UTC().Format(time.RFC3339),
	}
}

func toBatchResponse(r *service.BatchResult) BatchResponse {
	resp := BatchResponse{
		Results:  make([]ScoreResponse, 0, len(r.Scores)),
		Failures: make([]BatchFailure, 0, len(r.Failures)),
	}
	for _, s := range r.Scores {
		resp.Results = append(resp.Results, toScoreResponse(s))
	}
	for _, f := range r.Failures {
		code := dErrors.CodeOf(f.Err)
		failure := BatchFailure{Index: f.Index, TransactionID: f.TransactionID, Error: string(code)}
		if de, ok := dErrors.As(f.Err); ok && code != dErrors.CodeInternal {
			failure.ErrorDescription = de.Message
		}
		resp.Failures = append(resp.Failures, failure)
	}
	return resp
}

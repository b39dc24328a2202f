package collab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wombat2006/wallbounce/internal/config"
	"github.com/wombat2006/wallbounce/internal/engine"
	"github.com/wombat2006/wallbounce/internal/logger"
	"github.com/wombat2006/wallbounce/internal/metrics"
	"github.com/wombat2006/wallbounce/internal/session"
	"github.com/wombat2006/wallbounce/pkg/validation"
)

// CollabRequest contains all the parameters needed to run a collaboration
type CollabRequest struct {
	Query     string         `json:"query"`
	TaskType  string         `json:"taskType,omitempty"`
	Models    []string       `json:"models"`
	Options   RequestOptions `json:"options"`
	SessionID string         `json:"sessionId,omitempty"`
	UserID    string         `json:"userId,omitempty"`
}

// RequestOptions carries the optional tuning knobs of a request. Zero bounce
// bounds fall back to the engine defaults.
type RequestOptions struct {
	Verbosity      string `json:"verbosity,omitempty"`
	Effort         string `json:"effort,omitempty"`
	Reasoning      string `json:"reasoning,omitempty"`
	MinWallBounces int    `json:"minWallBounces,omitempty"`
	MaxWallBounces int    `json:"maxWallBounces,omitempty"`
}

// CollabResponse is the structured outcome of a collaboration run
type CollabResponse struct {
	Success         bool             `json:"success"`
	FinalResponse   string           `json:"finalResponse"`
	WallBounceCount int              `json:"wallBounceCount"`
	ModelResponses  []ModelResponse  `json:"modelResponses"`
	Metadata        ResponseMetadata `json:"metadata"`
	SessionID       string           `json:"sessionId,omitempty"`
}

// ModelResponse is one recorded model attempt. Latency is in milliseconds.
type ModelResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Latency   int64  `json:"latency"`
	Success   bool   `json:"success"`
	Role      string `json:"role"`
	Iteration int    `json:"iteration"`
}

// ResponseMetadata aggregates run accounting. ProcessingTime is in
// milliseconds.
type ResponseMetadata struct {
	ProcessingTime   int64    `json:"processingTime"`
	ModelsUsed       []string `json:"modelsUsed"`
	ModelsAttempted  []string `json:"modelsAttempted"`
	SuccessfulModels []string `json:"successfulModels"`
	FailedModels     []string `json:"failedModels"`
	TotalCost        float64  `json:"totalCost"`
	TotalTokens      int      `json:"totalTokens"`
	Quality          string   `json:"quality"`
	Consensus        float64  `json:"consensus"`
}

// CollabService handles the business logic for collaboration requests
type CollabService struct {
	engine    *engine.Engine
	sessions  *session.Manager
	cfg       *config.AppConfig
	validator *validation.CollabRequestValidator
	metrics   *metrics.CollabMetrics
}

// NewCollabService creates a new CollabService. The metrics collector may be
// nil.
func NewCollabService(eng *engine.Engine, sessions *session.Manager, cfg *config.AppConfig, cm *metrics.CollabMetrics) *CollabService {
	return &CollabService{
		engine:    eng,
		sessions:  sessions,
		cfg:       cfg,
		validator: validation.NewCollabRequestValidator(),
		metrics:   cm,
	}
}

// Execute validates the request, frames it with session context, runs the
// collaboration and records the exchange. Partial phase failures come back
// inside the structured response; only a fully failed propose phase or an
// exhausted session-write conflict pairs the response with an error.
func (s *CollabService) Execute(ctx context.Context, req CollabRequest) (*CollabResponse, error) {
	// Reject malformed requests before any phase runs
	if err := s.validator.ValidateCollabRequest(req.Query, req.Models,
		req.Options.MinWallBounces, req.Options.MaxWallBounces,
		req.Options.Verbosity, req.Options.Effort); err != nil {
		return nil, fmt.Errorf("invalid collaboration request: %w", err)
	}
	if err := s.validateModels(req.Models); err != nil {
		return nil, fmt.Errorf("invalid collaboration request: %w", err)
	}

	// Get or create the session
	rec, err := s.getOrCreateSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create session: %w", err)
	}

	// Verify user owns this session
	if req.SessionID != "" && req.UserID != "" && rec.Owner != "" && rec.Owner != req.UserID {
		return nil, fmt.Errorf("unauthorized: user does not own this session")
	}

	// Frame the query with the session's working context
	prompt := s.sessions.BuildPrompt(rec, req.Query)

	logger.Log.WithFields(logrus.Fields{
		"session_id": rec.ID,
		"task_type":  req.TaskType,
		"candidates": len(req.Models),
		"history":    len(rec.Context.History),
	}).Debug("Prepared collaboration run")

	result, runErr := s.engine.Run(ctx, engine.Request{
		Query:    prompt,
		TaskType: req.TaskType,
		Models:   req.Models,
		Options: engine.Options{
			Verbosity:  req.Options.Verbosity,
			Effort:     req.Options.Effort,
			Reasoning:  req.Options.Reasoning,
			MinBounces: req.Options.MinWallBounces,
			MaxBounces: req.Options.MaxWallBounces,
		},
		SessionID: rec.ID,
		UserID:    req.UserID,
	})
	resp := toResponse(result, rec.ID)
	if runErr != nil {
		return resp, fmt.Errorf("collaboration failed: %w", runErr)
	}

	// Record the exchange on the session. A version conflict here has
	// already exhausted the manager's retries, so it surfaces.
	if _, err := s.sessions.AddRound(ctx, rec.ID, session.Exchange{
		Query:    req.Query,
		Response: result.FinalResponse,
		TaskType: req.TaskType,
	}); err != nil {
		return resp, fmt.Errorf("failed to record exchange: %w", err)
	}

	s.cacheResult(ctx, rec.ID, resp)

	return resp, nil
}

// LastResult returns the most recently cached response for a session
func (s *CollabService) LastResult(ctx context.Context, sessionID string) (*CollabResponse, error) {
	data, err := s.sessions.GetCached(ctx, resultCacheKey(sessionID))
	if err != nil {
		return nil, err
	}

	var resp CollabResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &resp, nil
}

// WatchSessionEvents drains session events until ctx is done, mapping
// version conflicts to the metrics collector. Run it on its own goroutine;
// without a consumer the manager drops events rather than blocking.
func (s *CollabService) WatchSessionEvents(ctx context.Context) {
	for {
		select {
		case ev := <-s.sessions.Events():
			if ev.Type == session.EventConflict && s.metrics != nil {
				s.metrics.RecordSessionConflict(ctx, ev.SessionID)
			}
			logger.Log.WithFields(logrus.Fields{
				"type":       string(ev.Type),
				"session_id": ev.SessionID,
				"version":    ev.Version,
			}).Debug("Session event")
		case <-ctx.Done():
			return
		}
	}
}

// getOrCreateSession retrieves an existing session or creates a new one
func (s *CollabService) getOrCreateSession(ctx context.Context, req CollabRequest) (*session.Record, error) {
	if req.SessionID != "" {
		return s.sessions.Get(ctx, req.SessionID, true)
	}
	return s.sessions.Create(ctx, req.UserID, session.WorkingContext{})
}

// validateModels checks the candidates against the configured registry
func (s *CollabService) validateModels(models []string) error {
	if s.cfg.Models == nil {
		return nil
	}
	return s.cfg.Models.ValidateCandidates(models)
}

// cacheResult keeps the latest response retrievable without a new run.
// Failures only log: the response was already produced.
func (s *CollabService) cacheResult(ctx context.Context, sessionID string, resp *CollabResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Log.WithError(err).Warn("Failed to encode collaboration result for caching")
		return
	}
	if err := s.sessions.PutCached(ctx, resultCacheKey(sessionID), data, s.cfg.Session.TTL); err != nil {
		logger.Log.WithError(err).Warn("Failed to cache collaboration result")
	}
}

func resultCacheKey(sessionID string) string {
	return "result#" + sessionID
}

// toResponse maps an engine result onto the response contract
func toResponse(result *engine.Result, sessionID string) *CollabResponse {
	if result == nil {
		return nil
	}

	responses := make([]ModelResponse, 0, len(result.Rounds))
	for _, round := range result.Rounds {
		responses = append(responses, ModelResponse{
			Model:     round.Model,
			Response:  round.Output,
			Latency:   round.Latency.Milliseconds(),
			Success:   round.Success,
			Role:      string(round.Phase),
			Iteration: round.Iteration,
		})
	}

	md := result.Metadata
	return &CollabResponse{
		Success:         result.Success,
		FinalResponse:   result.FinalResponse,
		WallBounceCount: result.WallBounceCount,
		ModelResponses:  responses,
		Metadata: ResponseMetadata{
			ProcessingTime:   md.ProcessingTime.Milliseconds(),
			ModelsUsed:       md.ModelsUsed,
			ModelsAttempted:  md.ModelsAttempted,
			SuccessfulModels: md.SuccessfulModels,
			FailedModels:     md.FailedModels,
			TotalCost:        md.TotalCost,
			TotalTokens:      md.TotalTokens,
			Quality:          md.Quality,
			Consensus:        md.Consensus,
		},
		SessionID: sessionID,
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
	statex "github.com/knearme/portfolio-agent/agent/state"
	toolx "github.com/knearme/portfolio-agent/agent/tool"
	"github.com/knearme/portfolio-agent/pkg/telemetry"
)

const (
	outcomeOK                 = "ok"
	outcomeValidationError    = "validation_error"
	outcomeUnauthorized       = "unauthorized"
	outcomeRateLimited        = "rate_limited"
	outcomeBackendUnavailable = "backend_unavailable"
	outcomeInternalError      = "internal_error"
)

type errorBody struct {
	Error string `json:"error"`
}

// handleChat runs one conversation turn. Every exit path, success or
// failure, flushes exactly one telemetry record.
func (s *Server) handleChat(c echo.Context) error {
	started := time.Now()
	flusher := telemetry.NewFlusher(s.deps.Sink)
	rec := telemetry.TurnRecord{Outcome: outcomeInternalError}
	defer func() {
		rec.Elapsed = time.Since(started)
		flusher.Flush(rec)
	}()

	ctx := c.Request().Context()

	caller, err := s.deps.Verifier.Verify(ctx, bearerToken(c.Request().Header.Get(echo.HeaderAuthorization)))
	if err != nil {
		rec.Outcome = outcomeUnauthorized
		if errors.Is(err, contractx.ErrUnauthorized) {
			return c.JSON(http.StatusUnauthorized, errorBody{Error: "authentication required"})
		}
		log.Warn().Err(err).Msg("identity verification failed")
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "authentication failed"})
	}

	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(c.Request().Body, s.cfg.MaxBodyBytes)).Decode(&req); err != nil {
		rec.Outcome = outcomeValidationError
		return c.JSON(http.StatusBadRequest, errorBody{Error: "malformed request body"})
	}
	if err := req.Validate(); err != nil {
		rec.Outcome = outcomeValidationError
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}

	messages := FilterUntrusted(req.Messages)

	if ok, retryAfter := s.limiter.Allow(LimiterKey(caller.UserID, c.RealIP())); !ok {
		rec.Outcome = outcomeRateLimited
		seconds := int(retryAfter.Seconds()) + 1
		c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
		return c.JSON(http.StatusTooManyRequests, errorBody{
			Error: fmt.Sprintf("%s, retry in %ds", contractx.ErrRateLimited, seconds),
		})
	}

	if s.deps.Runner == nil {
		rec.Outcome = outcomeBackendUnavailable
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "assistant backend is not available right now"})
	}

	// First turn of a conversation arrives without a session id; mint one
	// and echo it back so the client can thread the follow-ups.
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	c.Response().Header().Set("X-Session-Id", req.SessionID)

	tctx, err := toolx.NewContext(caller.UserID, caller.BusinessID, req.ProjectID, req.SessionID)
	if err != nil {
		rec.Outcome = outcomeUnauthorized
		return c.JSON(http.StatusForbidden, errorBody{Error: "caller identity is incomplete"})
	}

	registry, err := toolx.NewRegistry(tctx, s.deps.ToolDeps)
	if err != nil {
		log.Error().Err(err).Msg("tool registry construction failed")
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}

	system := s.assembleContext(ctx, tctx)

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	writer := newEventWriter(c.Response(), c.Response())

	outcome, err := s.deps.Runner.Run(ctx, Turn{
		System:   system,
		Messages: messages,
		Tools:    registry,
	}, writer.Emit)

	rec.Rounds = outcome.Rounds
	rec.ToolCalls = outcome.ToolCalls
	rec.ToolErrors = outcome.ToolErrors

	if err != nil {
		rec.Outcome = outcomeInternalError
		log.Warn().Err(err).
			Str("session_id", tctx.SessionID).
			Msg("model turn failed")
		writer.Emit(errorEvent("the assistant ran into a problem, please try again"))
		writer.Emit(doneEvent())
		return nil
	}

	rec.Outcome = outcomeOK
	writer.Emit(doneEvent())
	return nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// assembleContext builds the system prompt for one turn: the trusted marker,
// the base assistant instructions, and whatever server-side state can be
// loaded. Lookup failures degrade to a thinner prompt rather than failing
// the turn.
func (s *Server) assembleContext(ctx context.Context, tctx toolx.Context) string {
	var b strings.Builder
	b.WriteString(TrustedContextMarker)
	b.WriteString("\n")
	b.WriteString(s.deps.SystemPrompt)

	if s.deps.Projects != nil {
		if biz, err := s.deps.Projects.Business(ctx, tctx.BusinessID); err == nil && biz != nil {
			b.WriteString("\n\n## Business\n")
			fmt.Fprintf(&b, "Name: %s\nTrade: %s\nService area: %s\n", biz.Name, biz.Trade, biz.ServiceArea)
		} else if err != nil {
			log.Warn().Err(err).Str("business_id", tctx.BusinessID).Msg("business lookup failed, continuing without it")
		}

		if tctx.ProjectID != "" {
			if row, err := s.deps.Projects.Get(ctx, tctx.ProjectID, tctx.BusinessID); err == nil && row != nil {
				b.WriteString("\n\n## Project\n")
				fmt.Fprintf(&b, "Title: %s\nPublished: %t\n", row.Title, row.Published)
			} else if err != nil {
				log.Warn().Err(err).Str("project_id", tctx.ProjectID).Msg("project lookup failed, continuing without it")
			}
		}
	}

	if extraction, err := s.deps.Sessions.Load(ctx, tctx.SessionID); err == nil && extraction != nil {
		if known, merr := json.Marshal(extraction.State); merr == nil {
			b.WriteString("\n\n## Known project details\n")
			b.Write(known)
		}
	} else if err != nil && !errors.Is(err, statex.ErrExtractionNotFound) {
		log.Warn().Err(err).Str("session_id", tctx.SessionID).Msg("session lookup failed, continuing without it")
	}

	return b.String()
}

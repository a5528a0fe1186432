// Package relay runs one chat turn: input moderation, streamed generation with
// sampled output moderation, a final check over the full reply, and the
// updated history as the closing event.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"

	"scholarchat-backend/internal/config"
	"scholarchat-backend/internal/history"
	"scholarchat-backend/internal/models"
)

// RefusalMessage replaces the reply when moderation blocks a turn.
const RefusalMessage = "I'm sorry, I cannot reply to that."

const (
	sampleWindow    = 500
	sampleThreshold = 50
	maxExcerptRunes = 500
)

var errBlocked = errors.New("turn blocked by moderation")

type Agent interface {
	StreamReply(ctx context.Context, history []*genai.Content, message string, yield func(snapshot string) error) (string, error)
}

type Moderator interface {
	Check(ctx context.Context, text string) models.ModerationVerdict
}

// IncidentRecorder persists flagged verdicts. Optional.
type IncidentRecorder interface {
	Record(ctx context.Context, incident models.ModerationIncident) error
}

// EmitFunc delivers one event to the caller. An error means the caller is gone.
type EmitFunc func(models.StreamEvent) error

type Relay struct {
	cfg       config.Moderation
	agent     Agent
	moderator Moderator
	incidents IncidentRecorder
	log       *slog.Logger
}

func New(cfg config.Moderation, agent Agent, moderator Moderator, incidents IncidentRecorder, logger *slog.Logger) *Relay {
	return &Relay{
		cfg:       cfg,
		agent:     agent,
		moderator: moderator,
		incidents: incidents,
		log:       logger,
	}
}

// ShouldSample reports whether a cumulative snapshot is due for an incremental
// moderation check, roughly once every 500 characters.
func ShouldSample(text string) bool {
	return utf8.RuneCountInString(text)%sampleWindow < sampleThreshold
}

// Run executes one turn and reports its events through emit. The returned
// error is non-nil only when emit failed or ctx ended; every other failure is
// delivered as an event.
func (r *Relay) Run(ctx context.Context, requestID string, req models.ChatRequest, emit EmitFunc) error {
	log := r.log.With("request_id", requestID)
	start := time.Now()
	contents := history.Decode(req.History)

	if r.cfg.InputActive() {
		if err := ctx.Err(); err != nil {
			return err
		}
		verdict := r.moderator.Check(ctx, req.Message)
		if verdict.Flagged {
			r.flagged(ctx, log, requestID, models.StageInput, verdict, req.Message)
			switch r.cfg.Action {
			case config.ActionBlock:
				return emit(models.TextEvent(RefusalMessage))
			case config.ActionWarn:
				if err := emit(models.WarningEvent(warningText(verdict))); err != nil {
					return err
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	var emitErr error
	yield := func(snapshot string) error {
		if r.cfg.OutputActive() && ShouldSample(snapshot) {
			if err := ctx.Err(); err != nil {
				return err
			}
			verdict := r.moderator.Check(ctx, snapshot)
			if verdict.Flagged {
				r.flagged(ctx, log, requestID, models.StageOutputIncremental, verdict, snapshot)
				switch r.cfg.Action {
				case config.ActionBlock:
					emitErr = emit(models.TextEvent(RefusalMessage))
					if emitErr != nil {
						return emitErr
					}
					return errBlocked
				case config.ActionWarn:
					if emitErr = emit(models.WarningEvent(warningText(verdict))); emitErr != nil {
						return emitErr
					}
				}
			}
		}
		emitErr = emit(models.TextEvent(snapshot))
		return emitErr
	}

	reply, err := r.agent.StreamReply(ctx, contents, req.Message, yield)
	switch {
	case errors.Is(err, errBlocked):
		log.Info("turn blocked mid-stream", "elapsed", time.Since(start))
		return nil
	case emitErr != nil:
		return emitErr
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Error("agent turn failed", "err", err)
		return emit(models.ErrorEvent(err.Error()))
	}

	if r.cfg.OutputActive() && reply != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		verdict := r.moderator.Check(ctx, reply)
		if verdict.Flagged {
			r.flagged(ctx, log, requestID, models.StageOutputFinal, verdict, reply)
			switch r.cfg.Action {
			case config.ActionBlock:
				return emit(models.TextEvent(RefusalMessage))
			case config.ActionWarn:
				msg := "Content completed with warnings: " + strings.Join(verdict.FlaggedCategories(), ", ")
				if err := emit(models.WarningEvent(msg)); err != nil {
					return err
				}
			}
		}
	}

	contents = append(contents, history.UserContent(req.Message), history.ModelContent(reply))
	log.Debug("turn complete", "elapsed", time.Since(start), "reply_runes", utf8.RuneCountInString(reply))
	return emit(models.HistoryEvent(history.Encode(contents)))
}

func (r *Relay) flagged(ctx context.Context, log *slog.Logger, requestID, stage string, verdict models.ModerationVerdict, text string) {
	cats := verdict.FlaggedCategories()
	log.Warn("content flagged", "stage", stage, "action", string(r.cfg.Action), "categories", cats)
	if r.incidents == nil {
		return
	}

	incident := models.ModerationIncident{
		RequestID:  requestID,
		Stage:      stage,
		Action:     string(r.cfg.Action),
		Categories: cats,
		Excerpt:    excerpt(text),
	}
	if err := r.incidents.Record(context.WithoutCancel(ctx), incident); err != nil {
		log.Error("failed to record moderation incident", "err", err)
	}
}

func warningText(v models.ModerationVerdict) string {
	return fmt.Sprintf("Content warning: %s", strings.Join(v.FlaggedCategories(), ", "))
}

func excerpt(text string) string {
	if utf8.RuneCountInString(text) <= maxExcerptRunes {
		return text
	}
	return string([]rune(text)[:maxExcerptRunes])
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"scholarchat-backend/internal/config"
	"scholarchat-backend/internal/models"
)

const moderationTimeout = 10 * time.Second

// ModerationService classifies text with the OpenAI moderation endpoint. It
// fails open: any error yields an unflagged verdict with Error set.
type ModerationService struct {
	client *openai.Client
	log    *slog.Logger
}

// NewModerationService returns a service whose Check is a no-op when moderation
// is disabled or no API key is configured.
func NewModerationService(cfg config.Moderation, logger *slog.Logger) *ModerationService {
	s := &ModerationService{log: logger}
	if !cfg.Enabled {
		return s
	}
	if cfg.APIKey == "" {
		logger.Warn("moderation enabled but OPENAI_API_KEY is not set, gate disabled")
		return s
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(moderationTimeout),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	s.client = &client
	return s
}

// Enabled reports whether Check will call the API.
func (s *ModerationService) Enabled() bool {
	return s.client != nil
}

func (s *ModerationService) Check(ctx context.Context, text string) models.ModerationVerdict {
	if s.client == nil {
		return models.ModerationVerdict{}
	}

	resp, err := s.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.ModerationModelOmniModerationLatest,
	})
	if err != nil {
		s.log.Warn("moderation call failed", "err", err)
		return models.ModerationVerdict{Error: err.Error()}
	}
	if len(resp.Results) == 0 {
		return models.ModerationVerdict{Error: "moderation returned no results"}
	}

	result := resp.Results[0]
	verdict := models.ModerationVerdict{
		Flagged:    result.Flagged,
		Categories: map[string]bool{},
		Scores:     map[string]float64{},
	}
	if err := decodeCategories(result.Categories.RawJSON(), verdict.Categories); err != nil {
		s.log.Debug("moderation categories unreadable", "err", err)
	}
	if err := json.Unmarshal([]byte(result.CategoryScores.RawJSON()), &verdict.Scores); err != nil {
		s.log.Debug("moderation scores unreadable", "err", err)
	}
	return verdict
}

// decodeCategories tolerates null entries, which the API returns for
// categories a model does not cover.
func decodeCategories(raw string, into map[string]bool) error {
	if raw == "" {
		return nil
	}
	var loose map[string]any
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return fmt.Errorf("failed to decode categories: %w", err)
	}
	for name, v := range loose {
		flagged, _ := v.(bool)
		into[name] = flagged
	}
	return nil
}

package service

import (
	"context"
	"time"

	"github.com/capitalize-ai/support-router/internal/model"
)

// DefaultStatsWindow is used when no window is requested.
const DefaultStatsWindow = "7d"

var statsWindows = map[string]time.Duration{
	"1d":  24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Stats rolls up conversations started within the window ending now.
func (s *Service) Stats(ctx context.Context, window string) (*model.Stats, error) {
	if window == "" {
		window = DefaultStatsWindow
	}
	d, ok := statsWindows[window]
	if !ok {
		return nil, newError(KindValidation, "window must be one of 1d, 7d, 30d", nil)
	}

	now := s.now()
	convs, err := s.store.StartedSince(ctx, now.Add(-d))
	if err != nil {
		return nil, storeError("stats", err)
	}

	stats := &model.Stats{Window: window}
	var rated, total int
	for i := range convs {
		c := &convs[i]
		if c.StartedAt.After(now) {
			continue
		}
		stats.TotalConversations++
		switch c.Status {
		case model.StatusResolved:
			stats.ResolvedConversations++
		case model.StatusEscalated:
			stats.EscalatedConversations++
		}
		if c.Satisfaction != nil {
			rated++
			total += *c.Satisfaction
		}
	}
	if rated > 0 {
		stats.AvgSatisfaction = float64(total) / float64(rated)
	}
	return stats, nil
}

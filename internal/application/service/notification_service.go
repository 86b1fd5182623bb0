package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

// NotificationService evaluates price alerts on every priced tick.
type NotificationService struct {
	alerts   port.AlertRepository
	events   port.PriceSink
	notifier port.Notifier
	cooldown time.Duration

	now func() time.Time
}

func NewNotificationService(alerts port.AlertRepository, events port.PriceSink, notifier port.Notifier, cooldown time.Duration) *NotificationService {
	if cooldown <= 0 {
		cooldown = model.DefaultAlertCooldown
	}
	return &NotificationService{
		alerts:   alerts,
		events:   events,
		notifier: notifier,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// HandleTick is the dispatcher listener. Greek-only ticks carry no price
// and are skipped.
func (s *NotificationService) HandleTick(ctx context.Context, t model.Tick) {
	if !t.HasPrice() {
		return
	}
	if err := s.Evaluate(ctx, t.Symbol, t.Price); err != nil {
		log.Error().Err(err).Str("symbol", t.Symbol).Msg("evaluate alerts failed")
	}
}

// Evaluate runs every alert on symbol against price.
func (s *NotificationService) Evaluate(ctx context.Context, symbol string, price float64) error {
	alerts, err := s.alerts.FindAlertsFor(ctx, symbol)
	if err != nil {
		return err
	}

	now := s.now()
	for _, a := range alerts {
		tr := a.Evaluate(price, now, s.cooldown)
		if tr == model.TransitionNone {
			continue
		}

		// 先落库再发消息；保存失败时不发送，下一个 tick 会重试
		if err := s.alerts.SaveAlertState(ctx, a); err != nil {
			log.Error().Err(err).Int64("alert_id", a.ID).Str("symbol", symbol).Msg("save alert state failed")
			continue
		}
		if tr == model.TransitionBounced {
			log.Debug().Int64("alert_id", a.ID).Str("symbol", symbol).Float64("price", price).Msg("alert bounced")
			continue
		}
		s.fire(ctx, a, price, now)
	}
	return nil
}

func (s *NotificationService) fire(ctx context.Context, a *model.Alert, price float64, now time.Time) {
	log.Info().
		Int64("alert_id", a.ID).
		Int64("chat_id", a.ChatID).
		Str("symbol", a.Symbol).
		Str("direction", string(a.Direction)).
		Float64("threshold", a.Threshold).
		Float64("price", price).
		Msg("alert fired")

	if s.events != nil {
		ev := &model.AlertEvent{
			ID:        uuid.NewString(),
			AlertID:   a.ID,
			ChatID:    a.ChatID,
			Symbol:    a.Symbol,
			Direction: a.Direction,
			Threshold: a.Threshold,
			Price:     price,
			FiredAt:   now,
		}
		if err := s.events.InsertAlertEvent(ctx, ev); err != nil {
			log.Error().Err(err).Int64("alert_id", a.ID).Msg("record alert event failed")
		}
	}

	if err := s.notifier.SendMessage(ctx, a.ChatID, a.Message(price)); err != nil {
		log.Error().Err(err).Str("notifier", s.notifier.Name()).Int64("chat_id", a.ChatID).Msg("send alert failed")
	}
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

var ErrInvalidSymbol = errors.New("invalid symbol")

// AlertView is an alert with the last known price of its symbol.
type AlertView struct {
	Alert    *model.Alert
	Price    float64
	HasPrice bool
}

type AlertService struct {
	alerts port.AlertRepository
	quotes port.QuoteRepository
	subs   Subscriber
}

func NewAlertService(alerts port.AlertRepository, quotes port.QuoteRepository, subs Subscriber) *AlertService {
	return &AlertService{alerts: alerts, quotes: quotes, subs: subs}
}

// Create parses condition (">150", "<99.5") and stores a new alert for
// chatID. The symbol is subscribed right away.
func (s *AlertService) Create(ctx context.Context, chatID int64, symbol, condition string) (*model.Alert, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	dir, threshold, err := model.ParseCondition(condition)
	if err != nil {
		return nil, err
	}

	a := &model.Alert{
		ChatID:    chatID,
		Symbol:    symbol,
		Direction: dir,
		Threshold: threshold,
		CreatedAt: time.Now(),
	}
	if err := s.alerts.CreateAlert(ctx, a); err != nil {
		return nil, err
	}
	log.Info().Int64("chat_id", chatID).Int64("alert_id", a.ID).Str("alert", a.Describe()).Msg("alert created")

	if err := s.subs.AddAndSend(ctx, symbol); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("subscribe alert symbol failed")
	}
	return a, nil
}

// Remove deletes alert id of chatID and reconciles subscriptions.
func (s *AlertService) Remove(ctx context.Context, chatID, id int64) (*model.Alert, error) {
	a, err := s.alerts.RemoveAlert(ctx, chatID, id)
	if err != nil {
		return nil, err
	}
	log.Info().Int64("chat_id", chatID).Int64("alert_id", id).Str("alert", a.Describe()).Msg("alert removed")

	if err := s.subs.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("refresh after alert removal failed")
	}
	return a, nil
}

func (s *AlertService) List(ctx context.Context, chatID int64) ([]AlertView, error) {
	alerts, err := s.alerts.ListAlerts(ctx, chatID)
	if err != nil {
		return nil, err
	}
	symbols := model.NewSymbolSet()
	for _, a := range alerts {
		symbols.Add(a.Symbol)
	}
	quotes, err := s.quotes.GetQuotes(ctx, symbols.Slice())
	if err != nil {
		return nil, err
	}

	out := make([]AlertView, 0, len(alerts))
	for _, a := range alerts {
		q, ok := quotes[a.Symbol]
		out = append(out, AlertView{Alert: a, Price: q.Price, HasPrice: ok && q.Price > 0})
	}
	return out, nil
}

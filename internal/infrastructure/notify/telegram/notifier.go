package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quotewatch/internal/application/port"
	"quotewatch/internal/infrastructure/notify"
)

const (
	DriverName     = "telegram"
	DefaultBaseURL = "https://api.telegram.org"
)

var ErrNoToken = errors.New("telegram: bot token is empty")

func init() {
	notify.Register(DriverName, func(s notify.Settings) (port.Notifier, error) {
		return New(s.TelegramToken, s.TelegramBaseURL, s.Timeout)
	})
}

// Notifier sends chat messages through the Bot API.
type Notifier struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

func New(token, baseURL string, timeout time.Duration) (*Notifier, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (n *Notifier) Name() string { return DriverName }

type sendMessageReq struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResp struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (n *Notifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	b, err := json.Marshal(sendMessageReq{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var r apiResp
	if err := json.Unmarshal(body, &r); err != nil || !r.OK {
		desc := r.Description
		if desc == "" {
			desc = string(body)
		}
		return fmt.Errorf("telegram sendMessage http %d: %s", resp.StatusCode, desc)
	}
	return nil
}

var _ port.Notifier = (*Notifier)(nil)

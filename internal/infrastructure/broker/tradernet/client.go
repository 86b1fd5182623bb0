package tradernet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

const (
	DefaultBaseURL = "https://tradernet.com"
	DefaultTimeout = 10 * time.Second

	cmdGetPositions = "getPositionJson"
)

// Client is the broker REST v2 client. Every call is signed with the
// account's secret.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// signedRequest POSTs cmd with a form body and the signature headers.
func (c *Client) signedRequest(ctx context.Context, creds *Credentials, cmd string, params map[string]string) ([]byte, error) {
	nonce := strconv.FormatInt(c.now().UnixMilli(), 10)
	signature := creds.Sign(signaturePayload(creds.APIKey(), cmd, nonce, params))

	form := url.Values{}
	form.Set("apiKey", creds.APIKey())
	form.Set("cmd", cmd)
	form.Set("nonce", nonce)
	for _, k := range sortedKeys(params) {
		form.Set("params["+k+"]", params[k])
	}

	endpoint := fmt.Sprintf("%s/api/v2/cmd/%s", c.baseURL, cmd)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-NtApi-PublicKey", creds.APIKey())
	req.Header.Set("X-NtApi-Sig", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tradernet %s http %d: %s", cmd, resp.StatusCode, truncate(string(body), 500))
	}
	return body, nil
}

type positionsResp struct {
	Result struct {
		PS struct {
			Pos []struct {
				Ticker     string `json:"i"`
				Underlying string `json:"base_contract_code"`
			} `json:"pos"`
		} `json:"ps"`
	} `json:"result"`
	Error   string `json:"error,omitempty"`
	ErrMsg  string `json:"errMsg,omitempty"`
	ErrCode int    `json:"code,omitempty"`
}

// GetPositions returns the open positions of acc.
func (c *Client) GetPositions(ctx context.Context, acc model.BrokerAccount) ([]model.Position, error) {
	body, err := c.signedRequest(ctx, NewCredentials(acc.APIKey, acc.SecretKey), cmdGetPositions, nil)
	if err != nil {
		return nil, err
	}

	var resp positionsResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tradernet %s decode: %w", cmdGetPositions, err)
	}
	if msg := firstNonEmpty(resp.Error, resp.ErrMsg); msg != "" {
		return nil, fmt.Errorf("tradernet %s: %s", cmdGetPositions, msg)
	}

	out := make([]model.Position, 0, len(resp.Result.PS.Pos))
	for _, p := range resp.Result.PS.Pos {
		if strings.TrimSpace(p.Ticker) == "" {
			continue
		}
		out = append(out, model.Position{Symbol: p.Ticker, UnderlyingSymbol: p.Underlying})
	}
	return out, nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ port.BrokerClient = (*Client)(nil)

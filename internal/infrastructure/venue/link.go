package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

const (
	DefaultURL            = "wss://wss.tradernet.com/"
	DefaultConnectTimeout = 10 * time.Second

	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 5 * time.Second
)

var (
	ErrNoSessionToken   = errors.New("venue: session token is empty")
	ErrAuthTimeout      = errors.New("venue: no auth ack before timeout")
	ErrClosedBeforeAuth = errors.New("venue: connection closed before auth")
	ErrNotConnected     = errors.New("venue: not connected")

	errReconnectAborted = errors.New("venue: reconnect superseded")
)

// RetryConfig 断线重连配置
type RetryConfig struct {
	MaxAttempts int           // 最大重连次数
	BaseDelay   time.Duration // 第 n 次重连延迟为 BaseDelay * 2^n
}

var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
}

type Options struct {
	URL             string
	ConnectTimeout  time.Duration
	Retry           RetryConfig
	DispatchWorkers int
	DispatchBuffer  int
	Dialer          *websocket.Dialer
}

type stopper interface {
	Stop() bool
}

// Link owns the single streaming connection to the venue.
type Link struct {
	opts       Options
	dialer     *websocket.Dialer
	dispatcher *Dispatcher

	// injectable for tests
	afterFunc func(d time.Duration, f func()) stopper
	now       func() time.Time

	mu          sync.Mutex
	conn        *websocket.Conn
	connCancel  context.CancelFunc
	gen         uint64
	state       model.ConnState
	token       string
	intentional bool
	attempt     int
	delay       time.Duration
	timer       stopper
	desired     []string
	streaming   bool // 当前连接上最后发送的 quotes 集合非空
	authHooks   []func(ctx context.Context)

	writeMu sync.Mutex
}

func NewLink(opts Options) *Link {
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = DefaultURL
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Link{
		opts:       opts,
		dialer:     dialer,
		dispatcher: NewDispatcher(opts.DispatchWorkers, opts.DispatchBuffer),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		now:   time.Now,
		state: model.StateDisconnected,
	}
}

// OnAuthenticated registers fn to run after every successful auth,
// including the ones that follow a reconnect.
func (l *Link) OnAuthenticated(fn func(ctx context.Context)) {
	l.mu.Lock()
	l.authHooks = append(l.authHooks, fn)
	l.mu.Unlock()
}

func (l *Link) AddTickListener(fn port.TickListener) func() {
	return l.dispatcher.AddListener(fn)
}

func (l *Link) buildURL(token string) (string, error) {
	u, err := url.Parse(l.opts.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("SID", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the venue and waits for the prod auth ack. Auth hooks have
// run by the time it returns nil.
func (l *Link) Connect(ctx context.Context, token string) error {
	return l.connect(ctx, token, 0)
}

// connect with resumeGen != 0 is a scheduled reconnect: it is dropped when
// a Disconnect or another Connect happened after the timer fired.
func (l *Link) connect(ctx context.Context, token string, resumeGen uint64) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoSessionToken
	}
	wsURL, err := l.buildURL(token)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if resumeGen != 0 && (l.intentional || l.gen != resumeGen) {
		l.mu.Unlock()
		return errReconnectAborted
	}
	l.token = token
	l.intentional = false
	l.stopTimerLocked()
	old, oldCancel := l.conn, l.connCancel
	l.conn, l.connCancel = nil, nil
	l.gen++
	gen := l.gen
	l.state = model.StateConnecting
	l.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	if old != nil {
		_ = old.Close()
	}

	log.Info().Str("url", l.opts.URL).Int("attempt", l.State().Attempt).Msg("venue connecting")
	dctx, cancel := context.WithTimeout(ctx, l.opts.ConnectTimeout)
	conn, _, err := l.dialer.DialContext(dctx, wsURL, nil)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("venue dial failed")
		l.mu.Lock()
		if gen == l.gen {
			l.handleLostLocked()
		}
		l.mu.Unlock()
		return fmt.Errorf("venue dial: %w", err)
	}

	authCh := make(chan struct{})
	closedCh := make(chan struct{})
	connCtx, connCancel := context.WithCancel(context.Background())

	l.mu.Lock()
	if gen != l.gen {
		// superseded by Disconnect or another Connect
		l.mu.Unlock()
		connCancel()
		_ = conn.Close()
		return ErrClosedBeforeAuth
	}
	l.conn, l.connCancel = conn, connCancel
	l.streaming = false
	l.mu.Unlock()

	go l.serve(connCtx, conn, gen, authCh, closedCh)

	timeout := time.NewTimer(l.opts.ConnectTimeout)
	defer timeout.Stop()

	select {
	case <-authCh:
	case <-closedCh:
		return ErrClosedBeforeAuth
	case <-timeout.C:
		log.Warn().Dur("timeout", l.opts.ConnectTimeout).Msg("venue auth timeout")
		connCancel()
		_ = conn.Close()
		return ErrAuthTimeout
	case <-ctx.Done():
		connCancel()
		_ = conn.Close()
		return ctx.Err()
	}

	log.Info().Msg("venue authenticated")
	l.mu.Lock()
	hooks := append([]func(context.Context){}, l.authHooks...)
	l.mu.Unlock()
	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

func (l *Link) serve(ctx context.Context, conn *websocket.Conn, gen uint64, authCh, closedCh chan struct{}) {
	defer close(closedCh)

	var authOnce sync.Once
	err := readLoop(ctx, conn, func(b []byte) {
		typ, payload, err := decodeFrame(b)
		if err != nil {
			log.Error().Err(err).Msg("venue frame decode failed")
			return
		}
		switch typ {
		case frameUserData:
			var ud userDataPayload
			if err := json.Unmarshal(payload, &ud); err != nil {
				log.Error().Err(err).Msg("venue userData decode failed")
				return
			}
			if ud.Mode != modeProd {
				log.Debug().Str("mode", ud.Mode).Msg("venue userData ignored")
				return
			}
			l.mu.Lock()
			if gen == l.gen {
				l.state = model.StateAuthenticated
				l.attempt = 0
				l.delay = 0
				authOnce.Do(func() { close(authCh) })
			}
			l.mu.Unlock()
		case frameQuote:
			t, ok, err := decodeTick(payload, l.now())
			if err != nil {
				log.Error().Err(err).Msg("venue quote decode failed")
				return
			}
			if ok {
				l.dispatcher.Publish(t)
			}
		}
	})
	_ = conn.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	log.Warn().Err(err).Msg("venue disconnected")
	l.conn, l.connCancel = nil, nil
	l.handleLostLocked()
}

// handleLostLocked decides between reconnect and staying down after the
// transport is gone.
func (l *Link) handleLostLocked() {
	if l.intentional || l.token == "" {
		l.state = model.StateDisconnected
		return
	}
	l.scheduleReconnectLocked()
}

func (l *Link) scheduleReconnectLocked() {
	if l.attempt >= l.opts.Retry.MaxAttempts {
		// 放弃重连，继续使用已存储的价格
		log.Debug().Int("attempts", l.attempt).Msg("venue reconnect attempts exhausted")
		l.state = model.StateDisconnected
		return
	}
	l.stopTimerLocked()

	delay := l.opts.Retry.BaseDelay << uint(l.attempt)
	l.attempt++
	l.delay = delay
	l.state = model.StateReconnectPending
	log.Info().Int("attempt", l.attempt).Int64("delay_ms", delay.Milliseconds()).Msg("venue reconnect scheduled")
	l.timer = l.afterFunc(delay, l.reconnect)
}

func (l *Link) reconnect() {
	l.mu.Lock()
	l.timer = nil
	if l.intentional || l.token == "" {
		l.mu.Unlock()
		return
	}
	token, gen := l.token, l.gen
	l.mu.Unlock()

	// 失败时由关闭路径重新调度
	err := l.connect(context.Background(), token, gen)
	switch {
	case errors.Is(err, errReconnectAborted):
		log.Debug().Msg("venue reconnect dropped after disconnect")
	case err != nil:
		log.Warn().Err(err).Msg("venue reconnect failed")
	}
}

func (l *Link) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Disconnect closes the connection for good: no reconnect, desired
// subscriptions and token are cleared.
func (l *Link) Disconnect() {
	l.mu.Lock()
	l.intentional = true
	l.stopTimerLocked()
	conn, cancel := l.conn, l.connCancel
	l.conn, l.connCancel = nil, nil
	l.gen++
	l.token = ""
	l.desired = nil
	l.streaming = false
	l.attempt = 0
	l.delay = 0
	l.state = model.StateDisconnected
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Msg("venue disconnected by request")
}

// Close disconnects and stops tick delivery.
func (l *Link) Close() error {
	l.Disconnect()
	l.dispatcher.Close()
	return nil
}

func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil && l.state == model.StateAuthenticated
}

func (l *Link) State() model.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.ConnectionState{State: l.state, Attempt: l.attempt, Delay: l.delay}
}

func (l *Link) DesiredSymbols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.desired...)
}

func (l *Link) ReplaceSubscriptions(symbols []string, portfolio bool) error {
	l.mu.Lock()
	if l.conn == nil || l.state != model.StateAuthenticated {
		l.mu.Unlock()
		return nil
	}
	l.desired = append([]string(nil), symbols...)
	conn := l.conn
	l.mu.Unlock()

	if len(symbols) == 0 {
		return l.clearQuotes(conn)
	}
	if portfolio {
		b, err := portfolioFrame()
		if err != nil {
			return err
		}
		if err := l.write(conn, b); err != nil {
			return err
		}
	}
	return l.sendQuotes(conn, symbols)
}

func (l *Link) SendQuotes(symbols []string) error {
	conn, err := l.liveConn()
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return nil
	}
	return l.sendQuotes(conn, symbols)
}

func (l *Link) ResendDesired() error {
	conn, err := l.liveConn()
	if err != nil {
		return err
	}
	desired := l.DesiredSymbols()
	if len(desired) == 0 {
		return l.clearQuotes(conn)
	}
	return l.sendQuotes(conn, desired)
}

func (l *Link) liveConn() (*websocket.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil || l.state != model.StateAuthenticated {
		return nil, ErrNotConnected
	}
	return l.conn, nil
}

func (l *Link) sendQuotes(conn *websocket.Conn, symbols []string) error {
	b, err := quotesFrame(symbols)
	if err != nil {
		return err
	}
	if err := l.write(conn, b); err != nil {
		return err
	}
	log.Debug().Int("symbols", len(symbols)).Msg("venue quotes sent")

	l.mu.Lock()
	if l.conn == conn {
		l.streaming = len(symbols) > 0
	}
	l.mu.Unlock()
	return nil
}

// clearQuotes sends an empty quotes frame when the venue still streams a
// previous set; a fresh connection with nothing subscribed gets no frame.
func (l *Link) clearQuotes(conn *websocket.Conn) error {
	l.mu.Lock()
	streaming := l.streaming && l.conn == conn
	l.mu.Unlock()
	if !streaming {
		return nil
	}
	return l.sendQuotes(conn, []string{})
}

// gorilla allows one concurrent writer
func (l *Link) write(conn *websocket.Conn, b []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
		}
	}
}

var _ port.Venue = (*Link)(nil)

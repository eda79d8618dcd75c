package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/retry"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

const (
	wsIdleReuseWindow = 30 * time.Second
	wsSessionTTL      = 10 * time.Minute
	wsDisableWindow   = 60 * time.Second
	wsMaxRetries      = 3
	wsRetryBaseDelay  = 250 * time.Millisecond
	wsRetryMaxDelay   = 2 * time.Second

	wsDiagBodyLimit   = 2048
	wsDiagReadTimeout = 250 * time.Millisecond
)

// wsConn is the subset of *websocket.Conn the transport uses, separated so
// tests can substitute a scripted connection.
type wsConn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type wsDialer func(ctx context.Context, url string, header http.Header) (wsConn, *http.Response, error)

// wsSession is the chaining state for one session key. One request is
// inflight per session at a time; the agent loop serializes calls within a
// run.
type wsSession struct {
	conn               wsConn
	hadConn            bool
	previousResponseID string
	instructionsHash   string
	toolsHash          string
	model              string
	lastInput          []string
	lastUsedAt         time.Time
}

// wsState owns all per-session chaining state plus the disable map that
// routes broken sessions to HTTP for a cool-down window.
type wsState struct {
	p *OpenAIProvider

	mu            sync.Mutex
	sessions      map[string]*wsSession
	disabledUntil map[string]time.Time

	dial wsDialer
	now  func() time.Time
}

func newWsState(p *OpenAIProvider) *wsState {
	s := &wsState{
		p:             p,
		sessions:      make(map[string]*wsSession),
		disabledUntil: make(map[string]time.Time),
		now:           time.Now,
	}
	s.dial = s.gorillaDial
	return s
}

// wsPlan is the input decision for one WebSocket request.
type wsPlan struct {
	// InputMode is "full", "incremental", "empty", or "full_regenerated".
	InputMode string

	// PreviousResponseID chains the request when non-empty.
	PreviousResponseID string

	// Send is the input slice to transmit.
	Send []json.RawMessage

	// ChainReset marks a deliberate invalidation of the prior chain.
	ChainReset bool
}

// planWsInput decides how to send the prepared input over an existing
// session. Chaining requires an unchanged model, instructions hash, and
// tools hash, and the current input must be a strict prefix extension of the
// input recorded on the last success.
func planWsInput(sess *wsSession, items []json.RawMessage, instrHash, toolsHash, model string, chaining bool) wsPlan {
	full := wsPlan{InputMode: "full", Send: items}
	if !chaining || sess == nil || sess.previousResponseID == "" {
		return full
	}
	if sess.model != model || sess.instructionsHash != instrHash || sess.toolsHash != toolsHash {
		return wsPlan{InputMode: "full_regenerated", Send: items, ChainReset: true}
	}
	cur := canonicalItems(items)
	if !isPrefixExtension(sess.lastInput, cur) {
		return wsPlan{InputMode: "full_regenerated", Send: items, ChainReset: true}
	}
	suffix := items[len(sess.lastInput):]
	mode := "incremental"
	if len(suffix) == 0 {
		mode = "empty"
	}
	return wsPlan{
		InputMode:          mode,
		PreviousResponseID: sess.previousResponseID,
		Send:               suffix,
	}
}

// invoke runs one request over the WebSocket path, applying the retry and
// fallback policy for the configured mode.
func (s *wsState) invoke(ctx context.Context, sessionKey string, r *preparedRequest) (*messages.Completion, error) {
	mode := s.p.cfg.WebsocketMode
	now := s.now()

	s.mu.Lock()
	s.gcLocked(now)
	if deadline, ok := s.disabledUntil[sessionKey]; ok && now.Before(deadline) {
		s.mu.Unlock()
		return s.p.invokeHTTP(ctx, r, &messages.ProviderMeta{
			WebsocketMode: mode,
			FallbackUsed:  true,
			ChainReset:    true,
			WsInputMode:   "full",
		})
	}
	delete(s.disabledUntil, sessionKey)
	sess := s.sessions[sessionKey]
	if sess == nil {
		sess = &wsSession{}
		s.sessions[sessionKey] = sess
	}
	s.mu.Unlock()

	instrHash := hashJSON(r.instructions)
	toolsHash := hashJSON(r.tools)
	chaining := s.p.cfg.WebsocketAPIVersion == "v2"
	plan := planWsInput(sess, r.items, instrHash, toolsHash, r.model, chaining)

	reconnects := 0
	var lastErr error
	for attempt := 0; ; attempt++ {
		prior := sess.hadConn
		resp, dialed, err := s.request(ctx, sessionKey, sess, r, plan)
		if dialed && (prior || attempt > 0) {
			// Any re-dial for a session that held a connection counts,
			// including idle drops and plan-forced regeneration.
			reconnects++
		}
		if err == nil {
			sess.previousResponseID = resp.ID
			sess.instructionsHash = instrHash
			sess.toolsHash = toolsHash
			sess.model = r.model
			sess.lastInput = canonicalItems(r.items)
			sess.lastUsedAt = s.now()
			return s.p.completion(resp, messages.ProviderMeta{
				Transport:        "websocket",
				WebsocketMode:    mode,
				WsInputMode:      plan.InputMode,
				ChainReset:       plan.ChainReset,
				WsReconnectCount: reconnects,
			})
		}
		if agent.IsAbort(err) {
			s.dropConn(sess)
			return nil, err
		}
		lastErr = err
		s.dropConn(sess)

		if IsChainBroken(err) {
			// The server no longer holds the chained response; the
			// recorded id is useless now.
			sess.previousResponseID = ""
			sess.lastInput = nil
			break
		}
		if mode == "on" && wsRetryable(err) && attempt < wsMaxRetries {
			plan = wsPlan{InputMode: "full_regenerated", Send: r.items, ChainReset: true}
			delay := retry.Backoff(attempt+1, wsRetryBaseDelay, wsRetryMaxDelay, 2.0)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		break
	}

	if mode == "auto" {
		s.mu.Lock()
		s.disabledUntil[sessionKey] = s.now().Add(wsDisableWindow)
		s.mu.Unlock()
		s.p.logger.Warn("websocket path failed, falling back to http",
			"session", sessionKey, "error", lastErr)
		return s.p.invokeHTTP(ctx, r, &messages.ProviderMeta{
			WebsocketMode: mode,
			FallbackUsed:  true,
			ChainReset:    true,
			WsInputMode:   plan.InputMode,
		})
	}
	return nil, lastErr
}

// request sends one response.create over the session's connection and waits
// for the terminal event. dialed reports whether a new connection was
// established.
func (s *wsState) request(ctx context.Context, sessionKey string, sess *wsSession, r *preparedRequest, plan wsPlan) (resp *openaiResponse, dialed bool, err error) {
	if plan.InputMode == "full_regenerated" {
		s.dropConn(sess)
	}
	if sess.conn != nil && s.now().Sub(sess.lastUsedAt) > wsIdleReuseWindow {
		s.dropConn(sess)
	}
	if sess.conn == nil {
		conn, err := s.connect(ctx, sessionKey)
		if err != nil {
			return nil, false, err
		}
		sess.conn = conn
		sess.hadConn = true
		dialed = true
	}
	conn := sess.conn

	// An abort must not hang on a blocking read.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	create := map[string]any{
		"type":     "response.create",
		"response": r.body(plan.Send, plan.PreviousResponseID, false),
	}
	if err := conn.WriteJSON(create); err != nil {
		if ctx.Err() != nil {
			return nil, dialed, ctx.Err()
		}
		return nil, dialed, s.p.wrapOpenAIError(fmt.Errorf("could not send data over websocket: %w", err), r.model)
	}

	deadline := s.now().Add(s.p.cfg.ResponseIdleTimeout)
	_ = conn.SetReadDeadline(deadline)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, dialed, ctx.Err()
			}
			if isDeadlineError(err) {
				return nil, dialed, s.p.wrapOpenAIError(errors.New("websocket response timeout"), r.model)
			}
			return nil, dialed, s.p.wrapOpenAIError(fmt.Errorf("websocket closed before response: %w", err), r.model)
		}
		var ev sseEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "response.completed":
			if ev.Response == nil {
				return nil, dialed, s.p.wrapOpenAIError(errors.New("response.completed frame without response"), r.model)
			}
			return ev.Response, dialed, nil
		case "response.failed", "response.incomplete":
			return nil, dialed, s.p.wrapOpenAIError(sseFailure(ev), r.model)
		case "error":
			return nil, dialed, s.p.wrapOpenAIError(sseFailure(ev), r.model)
		}
	}
}

func (s *wsState) connect(ctx context.Context, sessionKey string) (wsConn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.p.cfg.APIKey)
	header.Set("OpenAI-Beta", "responses_websockets="+s.p.cfg.WebsocketAPIVersion)
	header.Set("OpenAI-Session-Id", sessionKey)
	for k, v := range s.p.cfg.Headers {
		header.Set(k, v)
	}

	conn, resp, err := s.dial(ctx, s.wsURL(), header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp != nil {
			return nil, s.upgradeError(resp, err)
		}
		if isDeadlineError(err) {
			return nil, s.p.wrapOpenAIError(fmt.Errorf("websocket connect timeout: %w", err), s.p.cfg.DefaultModel)
		}
		return nil, s.p.wrapOpenAIError(fmt.Errorf("websocket connect failed: %w", err), s.p.cfg.DefaultModel)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, nil
}

func (s *wsState) gorillaDial(ctx context.Context, url string, header http.Header) (wsConn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.p.cfg.ConnectTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, resp, err
	}
	return conn, resp, nil
}

func (s *wsState) wsURL() string {
	url := s.p.cfg.BaseURL
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return url + "/responses"
}

// upgradeError surfaces a failed WS upgrade with bounded diagnostics: the
// status line, a few relevant headers, and a short body snippet read under a
// tight timeout.
func (s *wsState) upgradeError(resp *http.Response, cause error) error {
	var b strings.Builder
	fmt.Fprintf(&b, "websocket upgrade failed: %s", resp.Status)
	for _, h := range []string{"X-Request-Id", "Retry-After", "Content-Type"} {
		if v := resp.Header.Get(h); v != "" {
			fmt.Fprintf(&b, " %s=%s", strings.ToLower(h), v)
		}
	}
	if snippet := readBounded(resp.Body, wsDiagBodyLimit, wsDiagReadTimeout); snippet != "" {
		fmt.Fprintf(&b, " body=%q", snippet)
	}

	pe := (&ProviderError{
		Provider: "openai",
		Model:    s.p.cfg.DefaultModel,
		Cause:    cause,
	}).WithStatus(resp.StatusCode).WithMessage(b.String())
	return pe
}

// readBounded reads at most max bytes, giving up after the timeout. The body
// may be attached to a half-dead connection, so the read cannot be trusted to
// return.
func readBounded(body io.ReadCloser, max int, timeout time.Duration) string {
	if body == nil {
		return ""
	}
	defer body.Close()

	done := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(io.LimitReader(body, int64(max)))
		done <- string(data)
	}()
	select {
	case snippet := <-done:
		return snippet
	case <-time.After(timeout):
		body.Close()
		return ""
	}
}

func (s *wsState) dropConn(sess *wsSession) {
	if sess.conn != nil {
		sess.conn.Close()
		sess.conn = nil
	}
}

// gcLocked evicts sessions idle past the TTL. Caller holds mu.
func (s *wsState) gcLocked(now time.Time) {
	for key, sess := range s.sessions {
		if !sess.lastUsedAt.IsZero() && now.Sub(sess.lastUsedAt) > wsSessionTTL {
			if sess.conn != nil {
				sess.conn.Close()
			}
			delete(s.sessions, key)
		}
	}
	for key, deadline := range s.disabledUntil {
		if now.After(deadline) {
			delete(s.disabledUntil, key)
		}
	}
}

var wsRetryableSymptoms = []string{
	"response timeout",
	"connect timeout",
	"closed before open",
	"closed before response",
	"could not send data",
	"websocket is not open",
}

// wsRetryable reports whether a WebSocket failure is worth retrying on a
// fresh connection.
func wsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, symptom := range wsRetryableSymptoms {
		if strings.Contains(msg, symptom) {
			return true
		}
	}
	return false
}

func isDeadlineError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

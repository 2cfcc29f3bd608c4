package fritz

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"fritzwatch/internal/config"
	"fritzwatch/internal/logparse"
	"fritzwatch/internal/model"
)

const loginPath = "/login_sid.lua?version=2"

// RequestRecorder persists metadata about every request made against
// the device. A nil recorder disables recording.
type RequestRecorder interface {
	SaveRequest(ctx context.Context, req model.RequestInfo) error
}

// Client talks to the device's web interface. It holds no session
// state; sessions are owned by the caller and passed in explicitly.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	recorder   RequestRecorder
	logger     *slog.Logger
}

func NewClient(cfg config.DeviceConfig, recorder RequestRecorder, logger *slog.Logger) (*Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.RootCertPath != "" {
		pem, err := os.ReadFile(cfg.RootCertPath)
		if err != nil {
			return nil, fmt.Errorf("read root cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("root cert contains no usable PEM certificate")
		}
		tlsConfig.RootCAs = pool
	} else {
		// The device ships a self-signed certificate; without a pinned
		// root there is nothing to verify against.
		if logger != nil {
			logger.Warn("no root cert configured, accepting any device certificate")
		}
		tlsConfig.InsecureSkipVerify = true
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		baseURL:  "https://" + cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		recorder: recorder,
		logger:   logger,
	}, nil
}

func (c *Client) makeURL(path string) string {
	return c.baseURL + path
}

func (c *Client) do(ctx context.Context, name, method, rawURL string, form url.Values, sid SessionID) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	meta := model.RequestInfo{
		Timestamp: time.Now().UTC(),
		Name:      name,
		URL:       rawURL,
		Method:    method,
	}
	if sid.Valid() {
		meta.SessionID = sid.String()
	}

	start := time.Now()
	resp, respErr := c.httpClient.Do(req)
	meta.DurationMS = time.Since(start).Milliseconds()

	var payload []byte
	if respErr == nil {
		meta.ResponseCode = int64(resp.StatusCode)
		payload, respErr = io.ReadAll(resp.Body)
		resp.Body.Close()
		meta.DurationMS = time.Since(start).Milliseconds()
		if respErr == nil && resp.StatusCode >= 300 {
			respErr = fmt.Errorf("response status %s", resp.Status)
		}
	}

	if c.recorder != nil {
		if err := c.recorder.SaveRequest(ctx, meta); err != nil && c.logger != nil {
			c.logger.Warn("couldn't save request metadata", "name", name, "err", err)
		}
	}
	if respErr != nil {
		return nil, fmt.Errorf("%s request: %w", name, respErr)
	}
	if c.logger != nil {
		c.logger.Debug("device request",
			"name", name,
			"method", method,
			"status", meta.ResponseCode,
			"duration_ms", meta.DurationMS,
		)
	}
	return payload, nil
}

// LoginChallenge fetches a fresh challenge without authenticating.
func (c *Client) LoginChallenge(ctx context.Context) (SessionInfo, error) {
	doc, err := c.do(ctx, "login-challenge", http.MethodGet, c.makeURL(loginPath), nil, SessionID{})
	if err != nil {
		return SessionInfo{}, err
	}
	return ParseSessionInfo(doc)
}

// Login creates a new session, ignoring any existing one.
func (c *Client) Login(ctx context.Context) (Session, error) {
	info, err := c.LoginChallenge(ctx)
	if err != nil {
		return Session{}, err
	}
	if !info.HasUser(c.username) {
		return Session{}, fmt.Errorf("user %q not among device users", c.username)
	}
	if info.BlockTime > 0 {
		return Session{}, fmt.Errorf("login blocked for %s after failed attempts", info.BlockTime)
	}

	response := info.Challenge.Respond(c.password)
	form := url.Values{
		"username": {c.username},
		"response": {response.String()},
	}
	doc, err := c.do(ctx, "login-response", http.MethodPost, c.makeURL(loginPath), form, SessionID{})
	if err != nil {
		return Session{}, err
	}
	result, err := ParseSessionInfo(doc)
	if err != nil {
		return Session{}, err
	}
	if !result.SessionID.Valid() {
		return Session{}, errors.New("login rejected: device returned invalid session id")
	}
	return Session{ID: result.SessionID, RenewedAt: time.Now()}, nil
}

// CheckSession asks the device whether the session is still alive.
func (c *Client) CheckSession(ctx context.Context, session Session) (bool, error) {
	if !session.Valid() {
		return false, nil
	}
	form := url.Values{"sid": {session.ID.String()}}
	doc, err := c.do(ctx, "check-session", http.MethodPost, c.makeURL(loginPath), form, session.ID)
	if err != nil {
		return false, err
	}
	info, err := ParseSessionInfo(doc)
	if err != nil {
		return false, err
	}
	return info.SessionID.Valid() && info.SessionID == session.ID, nil
}

// EnsureSession validates the given session and renews it when the
// device no longer accepts it.
func (c *Client) EnsureSession(ctx context.Context, session Session) (Session, error) {
	ok, err := c.CheckSession(ctx, session)
	if err != nil {
		return Session{}, err
	}
	if ok {
		return session, nil
	}
	if c.logger != nil && session.Valid() {
		c.logger.Info("session expired, logging in again")
	}
	return c.Login(ctx)
}

// Logout destroys the session on the device.
func (c *Client) Logout(ctx context.Context, session Session) error {
	if !session.Valid() {
		return nil
	}
	form := url.Values{
		"logout": {"1"},
		"sid":    {session.ID.String()},
	}
	_, err := c.do(ctx, "logout", http.MethodPost, c.makeURL(loginPath), form, session.ID)
	return err
}

type logFeed struct {
	Data struct {
		Log [][]string `json:"log"`
	} `json:"data"`
}

// FetchLogs fetches the device's event log. Entries come back exactly
// as delivered: newest first, six opaque text fields each. The poll
// driver reverses them before normalization.
func (c *Client) FetchLogs(ctx context.Context, session Session) ([]logparse.RawEntry, error) {
	form := url.Values{
		"xhr":    {"1"},
		"page":   {"log"},
		"lang":   {"de"},
		"filter": {"0"},
		"sid":    {session.ID.String()},
		"xhrId":  {"all"},
	}
	payload, err := c.do(ctx, "logs", http.MethodPost, c.makeURL("/data.lua"), form, session.ID)
	if err != nil {
		return nil, err
	}

	var feed logFeed
	if err := json.Unmarshal(payload, &feed); err != nil {
		return nil, fmt.Errorf("parse log feed: %w", err)
	}

	entries := make([]logparse.RawEntry, 0, len(feed.Data.Log))
	for i, fields := range feed.Data.Log {
		if len(fields) != 6 {
			return nil, fmt.Errorf("log entry %d has %d fields, want 6", i, len(fields))
		}
		entries = append(entries, logparse.RawEntry{
			Date:       fields[0],
			Time:       fields[1],
			Message:    fields[2],
			MessageID:  fields[3],
			CategoryID: fields[4],
			Help:       fields[5],
		})
	}
	return entries, nil
}

// ClearLogs wipes the event log on the device.
func (c *Client) ClearLogs(ctx context.Context, session Session) error {
	form := url.Values{
		"xhr":   {"1"},
		"sid":   {session.ID.String()},
		"page":  {"log"},
		"lang":  {"de"},
		"xhrId": {"del"},
		"del":   {"1"},
	}
	_, err := c.do(ctx, "clear-logs", http.MethodPost, c.makeURL("/data.lua"), form, session.ID)
	return err
}

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kmorozov/subctl/internal/tokenstore"
	"github.com/kmorozov/subctl/pkg/tokens"
)

// Client is the single outbound path to the subscription service. Every
// authenticated call goes through do, which attaches the persisted bearer
// token and transparently exchanges it when expired.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *tokenstore.Store
	log        *slog.Logger

	now func() time.Time
}

func New(baseURL string, store *tokenstore.Store, log *slog.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		store: store,
		log:   log,
		now:   time.Now,
	}
}

type loginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	// Token is the legacy single-token field of the first backend revision.
	Token string `json:"token"`
}

// Login exchanges credentials for a token pair and persists it. Legacy
// backends answer with a single {token}; it is stored as the access token
// with no refresh companion.
func (c *Client) Login(ctx context.Context, username, password string) (tokenstore.Pair, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return tokenstore.Pair{}, fmt.Errorf("encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/token/", bytes.NewReader(body))
	if err != nil {
		return tokenstore.Pair{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res loginResponse
	if err := c.dispatch(req, &res); err != nil {
		return tokenstore.Pair{}, err
	}

	pair := tokenstore.Pair{Access: res.Access, Refresh: res.Refresh}
	if pair.Access == "" {
		pair.Access = res.Token
	}
	if pair.Access == "" {
		return tokenstore.Pair{}, fmt.Errorf("login response carried no token")
	}

	if err := c.store.Save(pair); err != nil {
		return tokenstore.Pair{}, err
	}
	c.log.Debug("login ok", "username", username, "has_refresh", pair.Refresh != "")
	return pair, nil
}

// Refresh exchanges the persisted refresh token for a new access token and
// replaces the old one wholesale. A rejected exchange surfaces as
// ErrRefreshFailed.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	pair, err := c.store.Load()
	if err != nil {
		return "", err
	}
	if pair.Refresh == "" {
		return "", ErrNoSession
	}

	body, err := json.Marshal(map[string]string{"refresh": pair.Refresh})
	if err != nil {
		return "", fmt.Errorf("encode refresh: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/token/refresh/", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res struct {
		Access string `json:"access"`
	}
	if err := c.dispatch(req, &res); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if res.Access == "" {
		return "", fmt.Errorf("%w: empty access token in response", ErrRefreshFailed)
	}

	if err := c.store.SaveAccess(res.Access); err != nil {
		return "", err
	}
	c.log.Debug("access token refreshed")
	return res.Access, nil
}

// bearerToken implements the pre-dispatch credential policy: an expired
// access token is exchanged first when a refresh token exists; with no
// refresh token the stale token is forwarded unchanged and the backend
// gets to reject it.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	pair, err := c.store.Load()
	if err != nil {
		return "", err
	}
	if pair.Access == "" {
		return "", nil
	}

	claims, err := tokens.DecodeUnverified(pair.Access)
	if err != nil {
		// Undecodable token: forward as-is, the backend rejects it.
		return pair.Access, nil
	}
	if !tokens.Expired(claims, c.now()) {
		return pair.Access, nil
	}
	if pair.Refresh == "" {
		c.log.Debug("access token expired, no refresh token, forwarding stale")
		return pair.Access, nil
	}

	fresh, err := c.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return fresh, nil
}

// do shapes and sends one authenticated request. Dispatch is held until the
// credential policy in bearerToken has run, so a request either carries a
// currently valid token or fails with ErrRefreshFailed before leaving the
// client.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.dispatch(req, out)
}

func (c *Client) dispatch(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls the human-readable message out of an error body.
// The backend uses "error" for domain failures and "detail" for auth ones.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, m := range []string{payload.Error, payload.Detail, payload.Message} {
		if m != "" {
			return m
		}
	}
	return ""
}

func (c *Client) newMultipart(planID uint, filename string, file io.Reader) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if err := w.WriteField("plan", strconv.FormatUint(uint64(planID), 10)); err != nil {
		return nil, "", fmt.Errorf("write plan field: %w", err)
	}
	part, err := w.CreateFormFile("payment_proof", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy proof file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

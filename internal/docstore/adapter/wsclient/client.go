// Package wsclient consumes the listen stream of the HTTP API, the way a device keeps a
// list screen live.
package wsclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	docstorehttp "carelog/internal/docstore/adapter/http"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"

	"github.com/fasthttp/websocket"
)

// Target names the live query to open.
type Target struct {
	BaseURL    string // http(s) or ws(s) root of the API
	Owner      string
	Collection string
	Where      []string // field:operator:value
	OrderBy    string   // field[:desc]
}

// URL returns the websocket address of t.
func (t Target) URL() (string, error) {
	u, err := url.Parse(strings.TrimRight(t.BaseURL, "/"))
	if err != nil {
		return "", errors.NewConfigurationError("invalid base URL").WithCause(err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.NewConfigurationError("base URL must be http, https, ws or wss").WithDetail("url", t.BaseURL)
	}
	if t.Owner == "" || t.Collection == "" {
		return "", errors.NewConfigurationError("owner and collection are required")
	}
	u.Path += "/v1/listen/users/" + url.PathEscape(t.Owner) + "/" + url.PathEscape(t.Collection)
	q := url.Values{}
	for _, w := range t.Where {
		q.Add("where", w)
	}
	if t.OrderBy != "" {
		q.Set("orderBy", t.OrderBy)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type Client struct {
	dialer *websocket.Dialer
	token  string
	log    logger.Logger
}

func New(token string, log logger.Logger) *Client {
	return &Client{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		token: token,
		log:   logger.OrNop(log).WithComponent("wsclient"),
	}
}

// Stream calls fn for every frame until ctx is done, the server closes the stream or fn
// returns an error. A cancelled ctx is a clean stop and returns nil.
func (c *Client) Stream(ctx context.Context, t Target, fn func(docstorehttp.ListenMessage) error) error {
	target, err := t.URL()
	if err != nil {
		return err
	}
	headers := http.Header{"User-Agent": {"carelog-cli/1.0"}}
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, headers)
	if err != nil {
		return handshakeError(resp, err)
	}
	defer conn.Close()
	c.log.Debugf("Connected to %s", target)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var msg docstorehttp.ListenMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.NewTransportError("listen stream failed", err)
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// handshakeError maps a refused upgrade onto the API's error body when there is one.
func handshakeError(resp *http.Response, err error) error {
	if resp == nil {
		return errors.NewTransportError("failed to connect", err)
	}
	defer resp.Body.Close()
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return errors.NewAuthenticationError(msg).WithCause(errors.ErrUnauthorized)
	case http.StatusForbidden:
		return errors.NewAuthorizationError(msg).WithCause(errors.ErrForbidden)
	case http.StatusNotFound:
		return errors.NewNotFoundError("collection").WithDetail("reason", msg)
	case http.StatusBadRequest:
		return errors.NewValidationError(msg)
	}
	return errors.NewTransportError("listen handshake failed: "+msg, err)
}

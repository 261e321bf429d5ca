package syncer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aryamantandon18/connectly/internal/models"

	"github.com/goccy/go-json"
)

// APIError is a non-2xx answer of the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// HTTPClient talks to the history, ingest and auth endpoints.
type HTTPClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// LiveURL is the websocket URL of the live channel at path.
func (c *HTTPClient) LiveURL(path string) string {
	u := c.BaseURL + path
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *HTTPClient) ListPage(ctx context.Context, container models.Container, cursor string) (Page, error) {
	q := url.Values{}
	path := "/api/messages"
	if container.Kind == models.KindConversation {
		path = "/api/direct-messages"
		q.Set("conversationId", container.ID)
	} else {
		q.Set("channelId", container.ID)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return Page{}, err
	}
	var page Page
	if err := c.do(req, &page); err != nil {
		return Page{}, err
	}
	return page, nil
}

// Send submits a message. file may be nil; name is the attachment file name.
func (c *HTTPClient) Send(ctx context.Context, container models.Container, content, name string, file io.Reader) (Message, error) {
	q := url.Values{}
	path := "/api/socket/messages"
	if container.Kind == models.KindConversation {
		path = "/api/socket/direct-messages"
		q.Set("conversationId", container.ID)
	} else {
		q.Set("serverId", container.ServerID)
		q.Set("channelId", container.ID)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("content", content); err != nil {
		return Message{}, err
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			return Message{}, err
		}
		if _, err := io.Copy(fw, file); err != nil {
			return Message{}, fmt.Errorf("read attachment: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Message{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path+"?"+q.Encode(), &body)
	if err != nil {
		return Message{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var msg Message
	if err := c.do(req, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

type LoginResult struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (LoginResult, error) {
	b, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return LoginResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/auth/login", bytes.NewReader(b))
	if err != nil {
		return LoginResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var res LoginResult
	if err := c.do(req, &res); err != nil {
		return LoginResult{}, err
	}
	return res, nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(b, &body) == nil && body.Message != "" {
			apiErr.Message = body.Message
		}
		return apiErr
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

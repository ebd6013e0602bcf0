package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/service"
)

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status  int
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// API is a thin client for the REST endpoints, authenticated with a bearer
// token.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPI(baseURL, token string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{baseURL: baseURL, token: token, http: httpClient}
}

func (a *API) ListChannels(ctx context.Context) ([]domain.ChannelSummary, error) {
	var out []domain.ChannelSummary
	err := a.do(ctx, http.MethodGet, "/api/v1/channels", nil, &out)
	return out, err
}

func (a *API) GetChannel(ctx context.Context, channelID uuid.UUID) (*domain.ChannelSummary, error) {
	var out domain.ChannelSummary
	if err := a.do(ctx, http.MethodGet, "/api/v1/channels/"+channelID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) CreateChannel(ctx context.Context, input service.CreateChannelInput) (*domain.Channel, error) {
	var out domain.Channel
	if err := a.do(ctx, http.MethodPost, "/api/v1/channels", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UpdateChannel(ctx context.Context, channelID uuid.UUID, input service.UpdateChannelInput) (*domain.Channel, error) {
	var out domain.Channel
	if err := a.do(ctx, http.MethodPatch, "/api/v1/channels/"+channelID.String(), input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) DeleteChannel(ctx context.Context, channelID uuid.UUID) error {
	return a.do(ctx, http.MethodDelete, "/api/v1/channels/"+channelID.String(), nil, nil)
}

// History fetches the latest messages of a channel, oldest first. A zero
// limit uses the server default. Fetching marks the messages read.
func (a *API) History(ctx context.Context, channelID uuid.UUID, limit int) ([]domain.Message, error) {
	path := "/api/v1/channels/" + channelID.String() + "/messages"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out []domain.Message
	err := a.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (a *API) SendMessage(ctx context.Context, channelID uuid.UUID, input service.SendMessageInput) (*domain.Message, error) {
	var out domain.Message
	if err := a.do(ctx, http.MethodPost, "/api/v1/channels/"+channelID.String()+"/messages", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) EditMessage(ctx context.Context, messageID uuid.UUID, text string) (*domain.Message, error) {
	var out domain.Message
	if err := a.do(ctx, http.MethodPatch, "/api/v1/messages/"+messageID.String(), service.EditMessageInput{Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) DeleteMessage(ctx context.Context, messageID uuid.UUID) error {
	return a.do(ctx, http.MethodDelete, "/api/v1/messages/"+messageID.String(), nil, nil)
}

func (a *API) UnreadTotal(ctx context.Context) (int64, error) {
	var out struct {
		Unread int64 `json:"unread"`
	}
	err := a.do(ctx, http.MethodGet, "/api/v1/unread", nil, &out)
	return out.Unread, err
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		envelope.Error.Status = resp.StatusCode
		return &envelope.Error
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

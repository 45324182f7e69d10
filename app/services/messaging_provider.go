// Package services provides external service integrations and technical concerns like messaging and locking
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/Amaterasu/config"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/google/uuid"
)

// MessagingProvider is the outbound messaging service a campaign is delivered through
type MessagingProvider interface {
	Send(ctx context.Context, cred *Credential, req SendRequest) (SendResult, error)
	UploadFile(ctx context.Context, cred *Credential, fileName string, data []byte, fileType string) (string, error)
}

// SendRequest is one message to one destination
type SendRequest struct {
	ServiceID   string `json:"service_id"`
	Destination string `json:"phone"`
	Message     string `json:"text"`
	FileID      string `json:"file_id,omitempty"`
}

// SendResult is the provider's answer for an accepted message
type SendResult struct {
	ProviderStatus  string `json:"status"`
	ProviderMessage string `json:"message"`
	MessageID       string `json:"message_id,omitempty"`
}

// ProviderError describes a failed provider interaction.
// Retryable errors are transport level; everything else is a rejection.
type ProviderError struct {
	Retryable      bool
	Unauthorized   bool
	StatusCode     int
	ProviderStatus string
	Message        string
	Err            error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider: %s: %v", e.Message, e.Err)
	}
	return "provider: " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AsProviderError extracts a ProviderError from err
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryableProviderError reports whether another attempt may succeed
func IsRetryableProviderError(err error) bool {
	if pe, ok := AsProviderError(err); ok {
		return pe.Retryable
	}
	return false
}

// HTTPMessagingProvider talks to the provider's HTTP API.
// The credential travels only in the Authorization header.
type HTTPMessagingProvider struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewHTTPMessagingProvider creates a provider client bounded by the configured request timeout
func NewHTTPMessagingProvider(cfg config.ProviderConfig) *HTTPMessagingProvider {
	return &HTTPMessagingProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

type providerResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
	FileID    string `json:"file_id"`
}

func (p *HTTPMessagingProvider) Send(ctx context.Context, cred *Credential, req SendRequest) (SendResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to marshal send request: %w", err)
	}

	out, err := p.do(ctx, cred, "/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{
		ProviderStatus:  out.Status,
		ProviderMessage: out.Message,
		MessageID:       out.MessageID,
	}, nil
}

func (p *HTTPMessagingProvider) UploadFile(ctx context.Context, cred *Credential, fileName string, data []byte, fileType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("type", fileType); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	out, err := p.do(ctx, cred, "/files", mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	if out.FileID == "" {
		return "", &ProviderError{ProviderStatus: out.Status, Message: "upload response carried no file_id"}
	}
	return out.FileID, nil
}

func (p *HTTPMessagingProvider) do(ctx context.Context, cred *Credential, path, contentType string, body io.Reader) (*providerResponse, error) {
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+cred.Reveal())

	resp, err := p.client.Do(req)
	if err != nil {
		// transport failures and timeouts are worth retrying
		return nil, &ProviderError{Retryable: true, Message: "request failed", Err: scrubURLError(err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out providerResponse
	_ = json.Unmarshal(raw, &out)
	if out.Message == "" {
		out.Message = strings.TrimSpace(string(raw))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &ProviderError{Unauthorized: true, StatusCode: resp.StatusCode, ProviderStatus: out.Status, Message: "credential rejected"}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &ProviderError{Retryable: true, StatusCode: resp.StatusCode, ProviderStatus: out.Status, Message: out.Message}
	case resp.StatusCode >= 400:
		return nil, &ProviderError{StatusCode: resp.StatusCode, ProviderStatus: out.Status, Message: out.Message}
	}

	if out.Status != "" && !strings.EqualFold(out.Status, "OK") {
		return nil, &ProviderError{StatusCode: resp.StatusCode, ProviderStatus: out.Status, Message: out.Message}
	}
	return &out, nil
}

// scrubURLError drops the request URL from net/http errors; the message keeps the cause only
func scrubURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}

// MockMessagingProvider accepts everything unless SendFunc/UploadFunc say otherwise
type MockMessagingProvider struct {
	mu         sync.Mutex
	SendFunc   func(ctx context.Context, cred *Credential, req SendRequest) (SendResult, error)
	UploadFunc func(ctx context.Context, cred *Credential, fileName string, fileType string) (string, error)
	sent       []MockSentMessage
}

// MockSentMessage represents a mock delivery
type MockSentMessage struct {
	Request SendRequest
	SentAt  time.Time
}

// NewMockMessagingProvider creates a new mock provider
func NewMockMessagingProvider() *MockMessagingProvider {
	return &MockMessagingProvider{}
}

func (m *MockMessagingProvider) Send(ctx context.Context, cred *Credential, req SendRequest) (SendResult, error) {
	if cred.Reveal() == "" {
		return SendResult{}, &ProviderError{Unauthorized: true, Message: "credential rejected"}
	}
	if m.SendFunc != nil {
		res, err := m.SendFunc(ctx, cred, req)
		if err != nil {
			return res, err
		}
		m.record(req)
		return res, nil
	}
	m.record(req)
	log.Printf("mock provider: message accepted for %s", req.Destination)
	return SendResult{ProviderStatus: "OK", ProviderMessage: "accepted", MessageID: uuid.NewString()}, nil
}

func (m *MockMessagingProvider) UploadFile(ctx context.Context, cred *Credential, fileName string, data []byte, fileType string) (string, error) {
	if cred.Reveal() == "" {
		return "", &ProviderError{Unauthorized: true, Message: "credential rejected"}
	}
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, cred, fileName, fileType)
	}
	return "mock-file-" + uuid.NewString(), nil
}

func (m *MockMessagingProvider) record(req SendRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, MockSentMessage{Request: req, SentAt: utils.UTCNow()})
}

// GetSentMessages returns a copy of all accepted messages
func (m *MockMessagingProvider) GetSentMessages() []MockSentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// ClearSentMessages clears the sent messages list
func (m *MockMessagingProvider) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

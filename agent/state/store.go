package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrExtractionNotFound = errors.New("session extraction not found")
	ErrNilExtraction      = errors.New("session extraction is nil")
	ErrInvalidSessionID   = errors.New("session id is empty")
)

const (
	defaultKeyPrefix     = "portfolio:session:"
	defaultTTL           = 24 * time.Hour
	maxResponseSizeBytes = 2 << 20
)

// SessionExtraction is the persisted blob of everything extracted so far for
// one conversation session. The process-local bookkeeping on ProjectState is
// excluded by its json tags.
type SessionExtraction struct {
	SessionID string       `json:"session_id"`
	ProjectID string       `json:"project_id,omitempty"`
	State     ProjectState `json:"state"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SessionStore is the persistence contract for per-session extraction.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*SessionExtraction, error)
	Save(ctx context.Context, ext *SessionExtraction) error
	Delete(ctx context.Context, sessionID string) error
}

// StoreOption customizes RedisSessionStore.
type StoreOption func(*RedisSessionStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *RedisSessionStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *RedisSessionStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *RedisSessionStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// RedisSessionStore persists SessionExtraction in Upstash Redis via REST.
type RedisSessionStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type RedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewRedisSessionStore(cfg RedisConfig, opts ...StoreOption) (*RedisSessionStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("redis rest url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("redis rest token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &RedisSessionStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultKeyPrefix,
		ttl:        defaultTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (*SessionExtraction, error) {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrExtractionNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode extraction payload: %w", err)
	}

	var ext SessionExtraction
	if err := json.Unmarshal([]byte(encoded), &ext); err != nil {
		return nil, fmt.Errorf("unmarshal session extraction: %w", err)
	}
	ext.State.Recompute()

	return &ext, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, ext *SessionExtraction) error {
	if ext == nil {
		return ErrNilExtraction
	}
	if strings.TrimSpace(ext.SessionID) == "" {
		return ErrInvalidSessionID
	}
	if ext.UpdatedAt.IsZero() {
		ext.UpdatedAt = time.Now().UTC()
	} else {
		ext.UpdatedAt = ext.UpdatedAt.UTC()
	}

	key, err := s.redisKey(ext.SessionID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(ext)
	if err != nil {
		return fmt.Errorf("marshal session extraction: %w", err)
	}

	cmd := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}

	_, err = s.exec(ctx, cmd)
	return err
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", key})
	return err
}

func (s *RedisSessionStore) redisKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSessionID
	}
	return strings.TrimSpace(s.keyPrefix) + sessionID, nil
}

func (s *RedisSessionStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}

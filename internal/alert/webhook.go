package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/shiftwise/shiftwise/pkg/types"
)

const webhookTimeout = 10 * time.Second

// SecretsAPI is the subset of the Secrets Manager client used to fetch the
// webhook signing secret.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// WebhookSink POSTs alerts as JSON to an HTTP endpoint. When a signing secret
// is configured the request carries an HMAC-SHA256 signature of the body in
// the X-Shiftwise-Signature header.
type WebhookSink struct {
	url       string
	secretARN string
	secrets   SecretsAPI
	client    *http.Client

	mu     sync.Mutex
	secret []byte // cached after first fetch
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithSecretsClient sets a custom Secrets Manager client (useful for testing).
func WithSecretsClient(c SecretsAPI) WebhookOption {
	return func(s *WebhookSink) { s.secrets = c }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) { s.client = c }
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(cfg types.AlertConfig, region string, opts ...WebhookOption) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	s := &WebhookSink{
		url:       cfg.URL,
		secretARN: cfg.SecretARN,
		client:    &http.Client{Timeout: webhookTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	if s.secretARN != "" && s.secrets == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.secrets = secretsmanager.NewFromConfig(awsCfg)
	}
	return s, nil
}

// Name identifies the sink in logs.
func (s *WebhookSink) Name() string { return "webhook" }

// Send POSTs the alert, signing the body when a secret is configured.
func (s *WebhookSink) Send(ctx context.Context, alert types.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if s.secretARN != "" {
		secret, err := s.signingSecret(ctx)
		if err != nil {
			return fmt.Errorf("fetching signing secret: %w", err)
		}
		mac := hmac.New(sha256.New, secret)
		mac.Write(body)
		req.Header.Set("X-Shiftwise-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *WebhookSink) signingSecret(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.secret != nil {
		return s.secret, nil
	}
	out, err := s.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &s.secretARN,
	})
	if err != nil {
		return nil, err
	}
	if out.SecretString != nil {
		s.secret = []byte(*out.SecretString)
	} else {
		s.secret = out.SecretBinary
	}
	return s.secret, nil
}

package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/cyberguard-api/internal/models"
)

// AuthorityClientConfig configures the authority webhook.
type AuthorityClientConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	Retries int
}

// AuthorityNotice is the JSON body sent to the authority webhook.
type AuthorityNotice struct {
	Location         string                   `json:"location"`
	Message          string                   `json:"message"`
	PortalURL        string                   `json:"portalUrl"`
	CriticalPatterns []models.CriticalPattern `json:"criticalPatterns"`
	ReportIDs        []string                 `json:"reportIds"`
	EscalatedAt      time.Time                `json:"escalatedAt"`
}

// AuthorityClient forwards successful escalations to an external webhook.
type AuthorityClient struct {
	http   *resty.Client
	url    string
	logger *zap.Logger
}

// NewAuthorityClient builds a webhook client with retries on 5xx and transport errors.
func NewAuthorityClient(cfg AuthorityClientConfig, logger *zap.Logger) *AuthorityClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &AuthorityClient{http: client, url: cfg.URL, logger: logger}
}

// Forward posts the escalation summary. Any non-2xx answer is an error.
func (c *AuthorityClient) Forward(ctx context.Context, notice AuthorityNotice) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(notice).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("post authority webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("authority webhook responded %d", resp.StatusCode())
	}
	c.logger.Info("escalation forwarded to authority",
		zap.String("location", notice.Location),
		zap.Int("reports", len(notice.ReportIDs)),
		zap.Int("status_code", resp.StatusCode()),
	)
	return nil
}

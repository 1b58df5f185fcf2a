package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type SendRequest struct {
	To        string            `json:"to"`
	Subject   string            `json:"subject"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables"`
}

type SendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client talks to the transactional email service. Every send is bounded
// by the configured timeout so a slow mail provider cannot hang a request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	timeout    time.Duration
	retryCount int
}

func NewClient(baseURL string, timeout time.Duration, retryCount int, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:     logger,
		timeout:    timeout,
		retryCount: retryCount,
	}
}

func (c *Client) Send(ctx context.Context, req *SendRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error

	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt":  attempt,
				"to":       req.To,
				"template": req.Template,
			}).Info("Retrying email send")

			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.sendOnce(ctx, req)
		if err == nil {
			return nil
		}

		lastErr = err
		c.logger.WithFields(logrus.Fields{
			"attempt":  attempt,
			"error":    err.Error(),
			"to":       req.To,
			"template": req.Template,
		}).Error("Failed to send email")
	}

	return fmt.Errorf("failed to send email after %d attempts: %w", c.retryCount+1, lastErr)
}

func (c *Client) sendOnce(ctx context.Context, req *SendRequest) error {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	url := fmt.Sprintf("%s/email/send", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	var sendResp SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !sendResp.Success {
		return fmt.Errorf("email service returned error: %s", sendResp.Message)
	}

	c.logger.WithFields(logrus.Fields{
		"to":       req.To,
		"template": req.Template,
	}).Info("Email sent successfully")

	return nil
}

// SendVerificationCode delivers the registration verification code.
func (c *Client) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	return c.Send(ctx, &SendRequest{
		To:       to,
		Subject:  "Verify Your Account",
		Template: "registration_code",
		Variables: map[string]string{
			"code":   code,
			"expiry": fmt.Sprintf("%d minutes", int(ttl.Minutes())),
		},
	})
}

// SendResetCode delivers the password-reset code.
func (c *Client) SendResetCode(ctx context.Context, to, code string, ttl time.Duration) error {
	return c.Send(ctx, &SendRequest{
		To:       to,
		Subject:  "Password Reset Code",
		Template: "password_reset_code",
		Variables: map[string]string{
			"code":   code,
			"expiry": fmt.Sprintf("%d minutes", int(ttl.Minutes())),
		},
	})
}

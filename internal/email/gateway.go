// Package email sends transactional notification mail through the Mailgun
// HTTP API.
//
// Send never returns an error: delivery is best-effort and callers only need
// to know whether the provider accepted the message.
package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backend-groupridemtb/internal/config"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrNotConfigured = errors.New("email provider not configured")
	ErrNoRecipient   = errors.New("email recipient missing")
)

// StatusError is returned internally when the provider answers non-2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mailgun responded %d: %s", e.Code, e.Body)
}

type Options struct {
	APIKey  string
	Domain  string
	BaseURL string
	From    string
	// SendRate is the maximum sends per second; <= 0 disables pacing.
	SendRate float64
	Timeout  time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		APIKey:   cfg.MailgunAPIKey,
		Domain:   cfg.MailgunDomain,
		BaseURL:  cfg.MailgunBaseURL,
		From:     cfg.MailFrom,
		SendRate: cfg.MailSendRate,
		Timeout:  15 * time.Second,
	}
}

type Gateway struct {
	opts    Options
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *zap.Logger
}

func NewGateway(opts Options, client *http.Client, log *zap.Logger) *Gateway {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.mailgun.net"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.SendRate), 1)
	}

	g := &Gateway{opts: opts, client: client, limiter: limiter, log: log}
	g.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mailgun",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// a rejected address is the caller's problem, not the provider's
			var status *StatusError
			if errors.As(err, &status) {
				return status.Code < 500 && status.Code != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("email circuit state changed", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return g
}

// Configured reports whether credentials, sending domain and from-address are set.
func (g *Gateway) Configured() bool {
	return g.opts.APIKey != "" && g.opts.Domain != "" && g.opts.From != ""
}

// Send delivers one HTML message and reports whether the provider accepted it.
func (g *Gateway) Send(ctx context.Context, to, subject, html string) bool {
	if err := g.send(ctx, to, subject, html); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			g.log.Debug("email skipped, provider not configured", zap.String("to", to))
		} else {
			g.log.Warn("email send failed", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		}
		return false
	}
	return true
}

func (g *Gateway) send(ctx context.Context, to, subject, html string) error {
	if !g.Configured() {
		return ErrNotConfigured
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email rate limiter: %w", err)
	}
	_, err := g.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, g.post(ctx, to, subject, html)
	})
	return err
}

func (g *Gateway) post(ctx context.Context, to, subject, html string) error {
	form := url.Values{}
	form.Set("from", g.opts.From)
	form.Set("to", to)
	form.Set("subject", subject)
	form.Set("html", html)

	endpoint := fmt.Sprintf("%s/v3/%s/messages", g.opts.BaseURL, url.PathEscape(g.opts.Domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth("api", g.opts.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailgun request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

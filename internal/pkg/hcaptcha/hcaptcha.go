package hcaptcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/env"
)

const defaultVerifyURL = "https://hcaptcha.com/siteverify"

var ErrMissingToken = errors.New("hCaptcha token is empty")

type Response struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verifier checks hCaptcha response tokens against the siteverify endpoint.
type Verifier struct {
	secret    string
	verifyURL string
	http      *resty.Client
}

// NewVerifier returns nil when secret is empty, which disables the check.
func NewVerifier(secret, verifyURL string) *Verifier {
	if secret == "" {
		return nil
	}
	if verifyURL == "" {
		verifyURL = defaultVerifyURL
	}
	return &Verifier{
		secret:    secret,
		verifyURL: verifyURL,
		http:      resty.New().SetTimeout(10 * time.Second),
	}
}

// NewVerifierFromEnv reads HCAPTCHA_SECRET.
func NewVerifierFromEnv() *Verifier {
	return NewVerifier(env.GetEnv("HCAPTCHA_SECRET", ""), env.GetEnv("HCAPTCHA_VERIFY_URL", ""))
}

func (v *Verifier) Verify(ctx context.Context, token string) error {
	if token == "" {
		return ErrMissingToken
	}

	var response Response
	resp, err := v.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"secret":   v.secret,
			"response": token,
		}).
		SetResult(&response).
		Post(v.verifyURL)
	if err != nil {
		return fmt.Errorf("failed to send request to hCaptcha API: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("hCaptcha API returned %d", resp.StatusCode())
	}

	if !response.Success {
		msg := "hCaptcha validation failed"
		if len(response.ErrorCodes) > 0 {
			msg = msg + ": " + strings.Join(response.ErrorCodes, ", ")
		}
		return errors.New(msg)
	}
	return nil
}

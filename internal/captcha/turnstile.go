package captcha

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/config"
)

const passIssuer = "marketdesk-captcha"

// Submitter identifies who is posting which public form. A human pass is only
// honoured for the same Submitter that earned it.
type Submitter struct {
	Form        string // "inquiry" or "listing"
	IP          string
	Fingerprint string
	Session     string
}

// clientHash keeps the raw IP out of the pass, which clients can decode.
func (s Submitter) clientHash() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{s.IP, s.Fingerprint, s.Session}, "\x00")))
	return hex.EncodeToString(sum[:16])
}

// ITurnstileVerifier checks Turnstile challenges on the public forms and
// issues the short-lived passes that lift the soft rate limit for a form.
type ITurnstileVerifier interface {
	Verify(ctx context.Context, challenge string, who Submitter) (bool, error)
	IssuePass(who Submitter, ttl time.Duration) (string, error)
	CheckPass(pass string, who Submitter) bool
}

// siteverifyResponse is the subset of the siteverify reply we act on.
type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Action     string   `json:"action"`
}

type turnstileVerifier struct {
	cfg        *config.Config
	httpClient *http.Client
	log        *zap.Logger
}

func NewTurnstileVerifier(cfg *config.Config, log *zap.Logger) ITurnstileVerifier {
	return &turnstileVerifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log.Named("captcha"),
	}
}

// Verify asks siteverify about a challenge solved on who.Form. A widget that
// reports an action must report the form it was rendered on. Without a secret
// key every challenge passes.
func (v *turnstileVerifier) Verify(ctx context.Context, challenge string, who Submitter) (bool, error) {
	if v.cfg.CloudflareTurnstileSecretKey == "" {
		v.log.Warn("Turnstile secret key not configured, skipping verification", zap.String("form", who.Form))
		return true, nil
	}

	form := url.Values{
		"secret":   {v.cfg.CloudflareTurnstileSecretKey},
		"response": {challenge},
	}
	if who.IP != "" {
		form.Set("remoteip", who.IP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.CloudflareSiteVerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to contact siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		v.log.Warn("Siteverify returned non-OK status", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return false, fmt.Errorf("siteverify failed with status %d", resp.StatusCode)
	}

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to parse siteverify response: %w", err)
	}

	switch {
	case !result.Success:
		v.log.Info("Turnstile challenge rejected", zap.String("form", who.Form), zap.Strings("error_codes", result.ErrorCodes))
		return false, nil
	case result.Action != "" && result.Action != who.Form:
		v.log.Info("Turnstile challenge solved for another form",
			zap.String("form", who.Form), zap.String("action", result.Action))
		return false, nil
	}
	return true, nil
}

// IssuePass signs a pass whose audience is the form and whose subject is the
// hashed client binding.
func (v *turnstileVerifier) IssuePass(who Submitter, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    passIssuer,
		Subject:   who.clientHash(),
		Audience:  jwt.ClaimStrings{who.Form},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	pass, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(v.cfg.JwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign captcha pass: %w", err)
	}
	return pass, nil
}

func (v *turnstileVerifier) CheckPass(pass string, who Submitter) bool {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(pass, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(v.cfg.JwtSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(passIssuer),
		jwt.WithAudience(who.Form),
		jwt.WithSubject(who.clientHash()),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		v.log.Debug("Captcha pass refused", zap.String("form", who.Form), zap.Error(err))
		return false
	}
	return true
}

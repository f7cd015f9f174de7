package middleware

import (
	"path"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/captcha"
	"greendrake/marketdesk/internal/config"
)

const (
	// ContextKeyIsHumanVerified holds the key for captcha status in Gin context.
	ContextKeyIsHumanVerified = "isHumanVerified"
)

// submitter names the form by the last segment of the matched route, so
// POST /v1/inquiry and POST /v1/listing earn separate passes.
func submitter(c *gin.Context) captcha.Submitter {
	return captcha.Submitter{
		Form:        path.Base(c.FullPath()),
		IP:          c.ClientIP(),
		Fingerprint: c.GetHeader("X-BFP"),
		Session:     c.GetHeader("X-SPA"),
	}
}

// CaptchaMiddleware accepts a pass from an earlier challenge (X-C-T) or
// verifies a fresh Turnstile challenge (X-C-V) and answers with a new pass.
func CaptchaMiddleware(cfg *config.Config, verifier captcha.ITurnstileVerifier, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		who := submitter(c)
		pass := c.GetHeader("X-C-T")
		challenge := c.GetHeader("X-C-V")

		isHuman := pass != "" && verifier.CheckPass(pass, who)

		if !isHuman && challenge != "" {
			verified, err := verifier.Verify(c.Request.Context(), challenge, who)
			switch {
			case err != nil:
				// Treated as non-human; the rate limiter decides.
				log.Warn("Turnstile verification error", zap.String("ip", who.IP), zap.String("form", who.Form), zap.Error(err))
			case verified:
				isHuman = true
				if fresh, err := verifier.IssuePass(who, cfg.CaptchaTokenTTL); err != nil {
					log.Error("Failed to issue captcha pass", zap.Error(err))
				} else {
					c.Header("X-C-T", fresh)
				}
			}
		}

		c.Set(ContextKeyIsHumanVerified, isHuman)
		c.Next()
	}
}

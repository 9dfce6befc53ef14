package telephony

import (
	"net/http"

	"outreach-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
	twclient "github.com/twilio/twilio-go/client"
)

// ValidateSignature rejects webhook requests whose X-Twilio-Signature does not
// match. publicBase is the externally visible scheme and host; requests arrive
// behind a proxy so the signed URL is rebuilt from it.
func ValidateSignature(authToken, publicBase string) gin.HandlerFunc {
	validator := twclient.NewRequestValidator(authToken)
	base := URLs{Base: publicBase}

	return func(c *gin.Context) {
		sig := c.GetHeader("X-Twilio-Signature")
		if sig == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "missing signature"})
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid form"})
			return
		}

		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}

		url := base.join(c.Request.URL.RequestURI())
		if !validator.Validate(url, params, sig) {
			logger.FromGin(c).Warn("twilio signature mismatch", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "invalid signature"})
			return
		}
		c.Next()
	}
}

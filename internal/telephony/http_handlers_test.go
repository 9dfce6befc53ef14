package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAnswerHandler_ConferenceRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := AnswerHandler{URLs: URLs{Base: "https://dialer.example.com"}}
	r := gin.New()
	r.POST(PathConferenceAnswer, h.Conference)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/twiml/conference/u1?role=agent", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `endConferenceOnExit="true"`) || !strings.Contains(body, ">u1</Conference>") {
		t.Fatalf("agent leg should end conference on exit: %s", body)
	}
	if !strings.Contains(body, "https://dialer.example.com/webhooks/twilio/conference") {
		t.Fatalf("expected conference callback: %s", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/twiml/conference/u1", nil))
	if !strings.Contains(w.Body.String(), `endConferenceOnExit="false"`) {
		t.Fatalf("contact leg must not end conference: %s", w.Body.String())
	}
}

func TestAnswerHandler_Bridge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST(PathBridgeAnswer, AnswerHandler{}.Bridge)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/twiml/bridge/u1", nil))
	if !strings.Contains(w.Body.String(), "<Client>u1</Client>") {
		t.Fatalf("expected client dial: %s", w.Body.String())
	}
	if w.Header().Get("Content-Type") != "application/xml" {
		t.Fatalf("expected xml content type, got %q", w.Header().Get("Content-Type"))
	}
}

func TestURLs(t *testing.T) {
	u := URLs{Base: "https://dialer.example.com/"}
	if got := u.AgentConferenceAnswer("agent 7"); got != "https://dialer.example.com/twiml/conference/agent%207?role=agent" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := u.StatusCallback(); got != "https://dialer.example.com/webhooks/twilio/status" {
		t.Fatalf("unexpected url %q", got)
	}
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST(PathStatusCallback, ValidateSignature("token", "https://dialer.example.com"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"busy"}}
	send := func(sig string) int {
		req := httptest.NewRequest(http.MethodPost, PathStatusCallback, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if sig != "" {
			req.Header.Set("X-Twilio-Signature", sig)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	good := sign("token", "https://dialer.example.com/webhooks/twilio/status", form)
	if code := send(good); code != http.StatusOK {
		t.Fatalf("valid signature rejected: %d", code)
	}
	if code := send(sign("other", "https://dialer.example.com/webhooks/twilio/status", form)); code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad signature, got %d", code)
	}
	if code := send(""); code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing signature, got %d", code)
	}
}

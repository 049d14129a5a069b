package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"lumora/config"
	"lumora/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeUpstream records every request and answers with a fixed status and body.
type fakeUpstream struct {
	mu       sync.Mutex
	bodies   []string
	headers  []http.Header
	status   int
	response string
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(data))
	f.headers = append(f.headers, r.Header.Clone())
	f.mu.Unlock()

	if f.status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		io.WriteString(w, f.response)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, f.response)
}

func (f *fakeUpstream) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func (f *fakeUpstream) lastHeader() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[len(f.headers)-1]
}

func (f *fakeUpstream) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[len(f.bodies)-1]
}

const sseReply = ": keep-alive\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n" +
	"data: [DONE]\n\n"

func testConfig(upstreamURL string) *config.GatewayConfig {
	return &config.GatewayConfig{
		Addr:            ":0",
		UpstreamAPIKey:  "upstream-secret",
		UpstreamBaseURL: upstreamURL,
		AllowedModels:   []string{"openai/gpt-5", "openai/gpt-5-mini", "openai/gpt-5-nano"},
		DefaultModel:    "openai/gpt-5",
		SystemPrompt:    "You are a test assistant.",
		UpstreamTimeout: 5 * time.Second,
	}
}

func newTestServer(t *testing.T, up *fakeUpstream, mutate func(*config.GatewayConfig)) (*httptest.Server, *fakeUpstream) {
	t.Helper()
	if up == nil {
		up = &fakeUpstream{status: http.StatusOK, response: sseReply}
	}
	upstreamSrv := httptest.NewServer(up)
	t.Cleanup(upstreamSrv.Close)

	cfg := testConfig(upstreamSrv.URL)
	if mutate != nil {
		mutate(cfg)
	}
	srv := httptest.NewServer(NewServer(cfg, logger.New(io.Discard, "debug", true)).Handler())
	t.Cleanup(srv.Close)
	return srv, up
}

func post(t *testing.T, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestChatStreamsUpstreamBytes(t *testing.T) {
	srv, up := newTestServer(t, nil, nil)

	resp := post(t, srv.URL+"/chat", `{"model":"openai/gpt-5-mini","messages":[{"role":"user","content":"Hello"}]}`, nil)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for header, want := range map[string]string{
		"Content-Type":                 "text/event-stream",
		"Cache-Control":                "no-cache",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": allowHeaders,
	} {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if body := readBody(t, resp); body != sseReply {
		t.Errorf("body = %q, want upstream bytes unchanged", body)
	}

	sent := up.lastBody()
	if got := gjson.Get(sent, "model").String(); got != "openai/gpt-5-mini" {
		t.Errorf("upstream model = %q", got)
	}
	if !gjson.Get(sent, "stream").Bool() {
		t.Error("upstream request not streamed")
	}
	if got := gjson.Get(sent, "messages.0.role").String(); got != "system" {
		t.Errorf("first message role = %q, want system", got)
	}
	if got := gjson.Get(sent, "messages.0.content").String(); got != "You are a test assistant." {
		t.Errorf("system prompt = %q", got)
	}
	if got := gjson.Get(sent, "messages.1.content").String(); got != "Hello" {
		t.Errorf("user content = %q", got)
	}
	if got := up.lastHeader().Get("Authorization"); got != "Bearer upstream-secret" {
		t.Errorf("upstream Authorization = %q", got)
	}
}

func TestChatAliasRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	resp := post(t, srv.URL+"/functions/v1/chat", `{"messages":[{"role":"user","content":"Hi"}]}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestChatModelDefaulting(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  string
	}{
		{"absent", ``, "openai/gpt-5"},
		{"allowed", `"model":"openai/gpt-5-nano",`, "openai/gpt-5-nano"},
		{"not allowed", `"model":"gpt-4-turbo",`, "openai/gpt-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, up := newTestServer(t, nil, nil)
			resp := post(t, srv.URL+"/chat", `{`+tt.model+`"messages":[{"role":"user","content":"Hi"}]}`, nil)
			readBody(t, resp)
			if got := gjson.Get(up.lastBody(), "model").String(); got != tt.want {
				t.Errorf("upstream model = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChatImageParts(t *testing.T) {
	srv, up := newTestServer(t, nil, nil)

	body := `{"messages":[
		{"role":"user","content":"What is this?","images":[{"url":"data:image/png;base64,AAAA","name":"a.png"}]},
		{"role":"assistant","content":"A square."},
		{"role":"user","content":"","images":[{"url":"https://example.com/b.jpg","name":"b.jpg"}]}
	]}`
	readBody(t, post(t, srv.URL+"/chat", body, nil))

	sent := up.lastBody()
	first := gjson.Get(sent, "messages.1.content")
	if !first.IsArray() || len(first.Array()) != 2 {
		t.Fatalf("image message content = %s", first.Raw)
	}
	if first.Get("0.type").String() != "text" || first.Get("0.text").String() != "What is this?" {
		t.Errorf("text part = %s", first.Get("0").Raw)
	}
	if first.Get("1.type").String() != "image_url" || first.Get("1.image_url.url").String() != "data:image/png;base64,AAAA" {
		t.Errorf("image part = %s", first.Get("1").Raw)
	}
	if got := gjson.Get(sent, "messages.2.role").String(); got != "assistant" {
		t.Errorf("assistant role = %q", got)
	}

	imageOnly := gjson.Get(sent, "messages.3.content")
	if len(imageOnly.Array()) != 1 || imageOnly.Get("0.type").String() != "image_url" {
		t.Errorf("image-only content = %s, want a single image part", imageOnly.Raw)
	}
}

func TestChatUpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus int
		wantError  string
	}{
		{"rate limited", 429, 429, "Rate limit exceeded. Please try again in a moment."},
		{"payment required", 402, 402, "Usage limit reached. Please check your account."},
		{"server error", 503, 500, "Failed to get AI response"},
		{"bad request", 400, 500, "Failed to get AI response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpstream{status: tt.status, response: `{"error":{"message":"upstream says no"}}`}
			srv, _ := newTestServer(t, up, nil)

			resp := post(t, srv.URL+"/chat", `{"messages":[{"role":"user","content":"Hi"}]}`, nil)
			body := readBody(t, resp)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := gjson.Get(body, "error").String(); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
			if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
				t.Error("error response missing CORS header")
			}
			if up.calls() != 1 {
				t.Errorf("upstream called %d times, want 1", up.calls())
			}
		})
	}
}

func TestChatInvalidBody(t *testing.T) {
	srv, up := newTestServer(t, nil, nil)

	for _, body := range []string{`not json`, `{}`, `{"messages":[{"role":"tool","content":"x"}]}`} {
		resp := post(t, srv.URL+"/chat", body, nil)
		got := readBody(t, resp)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, resp.StatusCode)
		}
		if gjson.Get(got, "error").String() != "Invalid request body" {
			t.Errorf("%s: body = %s", body, got)
		}
	}
	if up.calls() != 0 {
		t.Error("invalid request reached upstream")
	}
}

func TestChatMissingUpstreamKey(t *testing.T) {
	srv, up := newTestServer(t, nil, func(cfg *config.GatewayConfig) { cfg.UpstreamAPIKey = "" })

	resp := post(t, srv.URL+"/chat", `{"messages":[{"role":"user","content":"Hi"}]}`, nil)
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusInternalServerError || gjson.Get(body, "error").String() != "Failed to get AI response" {
		t.Errorf("got %d %s", resp.StatusCode, body)
	}
	if up.calls() != 0 {
		t.Error("request forwarded without a credential")
	}
}

func TestOptionsPreflight(t *testing.T) {
	srv, up := newTestServer(t, nil, func(cfg *config.GatewayConfig) { cfg.ClientAPIKey = "client-key" })

	for _, withOrigin := range []bool{false, true} {
		req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/chat", nil)
		if withOrigin {
			req.Header.Set("Origin", "https://app.example.com")
			req.Header.Set("Access-Control-Request-Method", "POST")
			req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("origin=%v: status = %d, want 204", withOrigin, resp.StatusCode)
		}
		if len(body) != 0 {
			t.Errorf("origin=%v: body = %q, want empty", withOrigin, body)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("origin=%v: missing Access-Control-Allow-Origin", withOrigin)
		}
	}
	if up.calls() != 0 {
		t.Error("preflight reached upstream")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestClientAPIKeyAuth(t *testing.T) {
	srv, up := newTestServer(t, nil, func(cfg *config.GatewayConfig) { cfg.ClientAPIKey = "client-key" })
	body := `{"messages":[{"role":"user","content":"Hi"}]}`

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", "client-key", http.StatusUnauthorized},
		{"valid", "Bearer client-key", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			resp := post(t, srv.URL+"/chat", body, h)
			readBody(t, resp)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
	if up.calls() != 1 {
		t.Errorf("upstream called %d times, want 1", up.calls())
	}
}

func TestJWTAuth(t *testing.T) {
	secret := "jwt-secret"
	auth := NewAuthenticator("", secret)

	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	valid := sign(jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"role": "anon", "exp": time.Now().Add(time.Hour).Unix()})
	expired := sign(jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey := sign(jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"role": "anon"})
	wrongAlg := sign(jwt.SigningMethodHS512, []byte(secret), jwt.MapClaims{"role": "anon"})

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{"valid", "Bearer " + valid, false},
		{"expired", "Bearer " + expired, true},
		{"wrong key", "Bearer " + wrongKey, true},
		{"wrong algorithm", "Bearer " + wrongAlg, true},
		{"garbage", "Bearer abc.def.ghi", true},
		{"missing", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := auth.Verify(tt.header); (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := NewAuthenticator("", "").Verify(""); err != nil {
		t.Errorf("disabled authenticator rejected request: %v", err)
	}
}

func TestChatFlushesBeforeUpstreamFinishes(t *testing.T) {
	release := make(chan struct{})
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-release
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(upstreamSrv.Close)
	defer close(release)

	srv := httptest.NewServer(NewServer(testConfig(upstreamSrv.URL), logger.New(io.Discard, "error", true)).Handler())
	t.Cleanup(srv.Close)

	resp := post(t, srv.URL+"/chat", `{"messages":[{"role":"user","content":"Hi"}]}`, nil)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := resp.Body.Read(buf)
		got <- string(buf[:n])
	}()

	select {
	case chunk := <-got:
		if !strings.Contains(chunk, "first") {
			t.Errorf("first read = %q", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first event not relayed while upstream was still open")
	}
}

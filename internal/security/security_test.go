package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEscape(t *testing.T) {
	assert.Equal(t, "&lt;script&gt;alert(&quot;x&quot;)&lt;/script&gt;", Escape(`<script>alert("x")</script>`))
	assert.Equal(t, "O&#039;Brien &amp; Sons", Escape("O'Brien & Sons"))
	assert.Equal(t, "plain", Escape("plain"))
}

func TestCleanString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"<b>bold</b> text", "bold text"},
		{"<script>alert(1)</script>hi", "alert(1)hi"},
		{"a &amp; b", "a &amp; b"},
		{"<!-- note -->visible", "visible"},
		{"<p>\n  Vortrag  </p>", "Vortrag"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanString(tt.in))
		})
	}
}

func TestClean_Recurses(t *testing.T) {
	in := map[string]any{
		"name":  " <i>Anna</i> ",
		"count": 3,
		"tags":  []any{"<b>a</b>", 1.5, []string{" x "}},
		"meta":  map[string]string{"k": "<u>v</u>"},
		"nested": map[string]any{
			"deep": []any{map[string]any{"s": "<em>z</em>"}},
		},
	}

	out := Clean(in).(map[string]any)
	assert.Equal(t, "Anna", out["name"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, []any{"a", 1.5, []string{"x"}}, out["tags"])
	assert.Equal(t, map[string]string{"k": "v"}, out["meta"])
	assert.Equal(t, "z", out["nested"].(map[string]any)["deep"].([]any)[0].(map[string]any)["s"])

	// input is not modified
	assert.Equal(t, " <i>Anna</i> ", in["name"])
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name     string `json:"name"`
		Password string `json:"password"`
		Age      int    `json:"age"`
	}
	body := `{"name": " <b>Eva</b> ", "password": " <secret> ", "age": 42}`

	require.NoError(t, DecodeJSON(strings.NewReader(body), &dst, "password"))
	assert.Equal(t, "Eva", dst.Name)
	assert.Equal(t, " <secret> ", dst.Password)
	assert.Equal(t, 42, dst.Age)

	assert.Error(t, DecodeJSON(strings.NewReader("not json"), &dst))
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidEmail("anna@example.de"))
	assert.False(t, ValidEmail("anna@"))
	assert.False(t, ValidEmail(""))

	assert.True(t, ValidPostalCode("01067"))
	assert.False(t, ValidPostalCode("1234"))
	assert.False(t, ValidPostalCode("123456"))
	assert.False(t, ValidPostalCode("1234X"))

	assert.True(t, ValidMembershipNumber("049501800"))
	assert.False(t, ValidMembershipNumber("0495018"))
	assert.False(t, ValidMembershipNumber("04950180a"))
}

func TestValidPostalCode_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[0-9]{5}`).Draw(t, "plz")
		if !ValidPostalCode(s) {
			t.Fatalf("%q should be valid", s)
		}
		extra := rapid.StringMatching(`[0-9]{1,3}`).Draw(t, "extra")
		if ValidPostalCode(s + extra) {
			t.Fatalf("%q should be invalid", s+extra)
		}
	})
}

func TestValidateStruct(t *testing.T) {
	type req struct {
		Number string `json:"mnr" validate:"required,mnr"`
		Email  string `json:"email" validate:"required,email"`
		PLZ    string `json:"plz" validate:"omitempty,plz"`
	}

	assert.NoError(t, ValidateStruct(req{Number: "123456789", Email: "a@b.de", PLZ: "12345"}))

	err := ValidateStruct(req{Number: "12", Email: "nope", PLZ: "1"})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "mnr must be a 9-digit membership number")
	assert.Contains(t, err.Error(), "email must be a valid email address")
	assert.Contains(t, err.Error(), "plz must be a 5-digit postal code")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:5555", "10.0.0.1"},
		{"remote addr without port", nil, "10.0.0.2", "10.0.0.2"},
		{"client-ip wins", map[string]string{"Client-IP": "1.1.1.1", "X-Forwarded-For": "2.2.2.2"}, "10.0.0.1:1", "1.1.1.1"},
		{"first of list", map[string]string{"X-Forwarded-For": "3.3.3.3, 4.4.4.4"}, "10.0.0.1:1", "3.3.3.3"},
		{"invalid header skipped", map[string]string{"Client-IP": "garbage", "X-Forwarded": "5.5.5.5"}, "10.0.0.1:1", "5.5.5.5"},
		{"ipv6", map[string]string{"X-Cluster-Client-IP": "2001:db8::1"}, "10.0.0.1:1", "2001:db8::1"},
		{"nothing valid", map[string]string{"Forwarded": "for=x"}, "pipe", UnknownIP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got := ClientIP(r)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), 45)
		})
	}
}

func TestCSRF_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	c := NewCSRF(NewMemoryStore())

	tok, err := c.Token(ctx, "session-a")
	require.NoError(t, err)
	assert.Len(t, tok, 64)

	again, err := c.Token(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, tok, again)

	assert.True(t, c.Verify(ctx, "session-a", tok))
	assert.True(t, c.Verify(ctx, "session-a", tok), "verification must not consume the token")
	assert.False(t, c.Verify(ctx, "session-a", tok[:63]+"x"))
	assert.False(t, c.Verify(ctx, "session-b", tok))
	assert.False(t, c.Verify(ctx, "session-a", ""))

	other, err := c.Token(ctx, "session-b")
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)

	_, err = c.Token(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	store := NewRedisStore(rdb, time.Hour)

	_, ok, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.LoadOrStore(ctx, "s1", "first")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = store.LoadOrStore(ctx, "s1", "second")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	assert.True(t, mr.Exists("csrf:s1"))
	assert.Equal(t, time.Hour, mr.TTL("csrf:s1"))

	mr.FastForward(2 * time.Hour)
	_, ok, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	c := NewCSRF(NewRedisStore(rdb, time.Minute))
	_, err = c.Token(context.Background(), "s1")
	assert.Error(t, err)
	assert.False(t, c.Verify(context.Background(), "s1", "anything"))
}

func newTestRouter(c *CSRF) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /csrf-token", c.HandleToken)
	mux.HandleFunc("POST /members", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	return Sessions(SessionOptions{TTL: time.Hour})(c.Middleware(mux))
}

func TestCSRFMiddleware(t *testing.T) {
	c := NewCSRF(NewMemoryStore())
	srv := httptest.NewServer(newTestRouter(c))
	defer srv.Close()

	// First request establishes the session and fetches the token.
	resp, err := http.Get(srv.URL + "/csrf-token")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == SessionCookieName {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)

	token, err := c.Token(context.Background(), cookie.Value)
	require.NoError(t, err)

	post := func(header, form string) int {
		var body *strings.Reader
		if form != "" {
			body = strings.NewReader(url.Values{CSRFFormField: {form}}.Encode())
		} else {
			body = strings.NewReader(`{}`)
		}
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/members", body)
		require.NoError(t, err)
		req.AddCookie(cookie)
		if form != "" {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if header != "" {
			req.Header.Set(CSRFHeader, header)
		}
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		return res.StatusCode
	}

	assert.Equal(t, http.StatusForbidden, post("", ""))
	assert.Equal(t, http.StatusForbidden, post("wrong", ""))
	assert.Equal(t, http.StatusCreated, post(token, ""))
	assert.Equal(t, http.StatusCreated, post("", token))
	assert.Equal(t, http.StatusCreated, post(token, ""), "token stays valid")
}

func TestSessions_KeepsValidCookie(t *testing.T) {
	var seen string
	h := Sessions(SessionOptions{TTL: time.Minute})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionID(r.Context())
	}))

	id := "8f14e45f-ceea-467f-a0e6-3b2e5e6f3c1a"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: id})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, id, seen)
	assert.Empty(t, rec.Result().Cookies())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "forged"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEqual(t, "forged", seen)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, seen, rec.Result().Cookies()[0].Value)
	assert.Equal(t, 60, rec.Result().Cookies()[0].MaxAge)
}

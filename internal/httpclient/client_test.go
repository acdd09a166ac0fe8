package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quotefeed/quotefeed/internal/ratelimit"
)

func TestGet_MergesParamsCallerWins(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewBuilder().
		BaseURL(srv.URL).
		Param("format", "json").
		Param("symbol", "default").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	_, err = c.Get(context.Background(), "/ticker", url.Values{"symbol": {"BTCUSDT"}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := gotQuery.Get("format"); got != "json" {
		t.Errorf("default param: got %q, want %q", got, "json")
	}
	if got := gotQuery.Get("symbol"); got != "BTCUSDT" {
		t.Errorf("caller param must win: got %q, want %q", got, "BTCUSDT")
	}
}

func TestGet_NonTwoHundredSurfacesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewBuilder().BaseURL(srv.URL).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	_, err = c.Get(context.Background(), "/x", nil)
	var st *StatusError
	if !errors.As(err, &st) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if st.StatusCode != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", st.StatusCode)
	}
	if !strings.Contains(string(st.Body), "nope") {
		t.Errorf("body not captured: %q", st.Body)
	}
}

func TestGet_HeadersApplied(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Apikey")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewBuilder().BaseURL(srv.URL).Header("Apikey", "s3cret").Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := c.Get(context.Background(), "/", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotHeader != "s3cret" {
		t.Errorf("header: got %q, want %q", gotHeader, "s3cret")
	}
}

func TestGet_TimeoutWithoutCallerDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewBuilder().BaseURL(srv.URL).Timeout(30 * time.Millisecond).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := c.Get(context.Background(), "/", nil); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestGet_RetriesThroughLimiter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	limiter := ratelimit.New(ratelimit.Options{Key: "t-0", MaxConcurrent: 1, MaxRetries: 2})
	defer limiter.Stop(time.Second)

	c, err := NewBuilder().BaseURL(srv.URL).Limiter(limiter).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	resp, err := c.Get(context.Background(), "/", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("body: got %q, want %q", resp.Body, "ok")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls: got %d, want 2", got)
	}
}

func TestRedactURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"api_key",
			"https://x.test/q?api_key=abc&symbol=BTC",
			"https://x.test/q?api_key=REDACTED&symbol=BTC",
		},
		{
			"token and sig",
			"https://x.test/q?token=t0k&sig=55aa",
			"https://x.test/q?sig=REDACTED&token=REDACTED",
		},
		{
			"access_token",
			"https://x.test/q?access_token=zz",
			"https://x.test/q?access_token=REDACTED",
		},
		{
			"no secrets untouched",
			"https://x.test/q?symbol=BTC&vs=usd",
			"https://x.test/q?symbol=BTC&vs=usd",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.in)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := RedactURL(u); got != tc.want {
				t.Errorf("RedactURL:\n got  %s\n want %s", got, tc.want)
			}
		})
	}
}

func TestBuilder_RejectsRelativeBaseURL(t *testing.T) {
	if _, err := NewBuilder().BaseURL("api.example.com/v1").Build(); err == nil {
		t.Fatal("expected error for relative base URL")
	}
}

func TestNewTransport_ProxySelection(t *testing.T) {
	t.Run("direct by default", func(t *testing.T) {
		tr, err := newTransport("", false)
		if err != nil {
			t.Fatalf("newTransport: %v", err)
		}
		if tr.Proxy != nil {
			t.Error("transport without proxy config must connect directly, not read HTTP_PROXY")
		}
	})

	t.Run("environment when opted in", func(t *testing.T) {
		tr, err := newTransport("", true)
		if err != nil {
			t.Fatalf("newTransport: %v", err)
		}
		if tr.Proxy == nil {
			t.Error("env proxy opt-in must install a proxy function")
		}
	})

	t.Run("explicit URL wins", func(t *testing.T) {
		tr, err := newTransport("http://proxy.test:8080", false)
		if err != nil {
			t.Fatalf("newTransport: %v", err)
		}
		if tr.Proxy == nil {
			t.Fatal("explicit proxy must install a proxy function")
		}
		req, _ := http.NewRequest(http.MethodGet, "https://upstream.test/", nil)
		u, err := tr.Proxy(req)
		if err != nil {
			t.Fatalf("proxy func: %v", err)
		}
		if u == nil || u.Host != "proxy.test:8080" {
			t.Errorf("proxy target: got %v, want proxy.test:8080", u)
		}
	})
}

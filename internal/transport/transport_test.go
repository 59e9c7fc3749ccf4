package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestPostSendsQueryAndBody(t *testing.T) {
	var gotMethod, gotBody, gotUA string
	var gotQuery url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.Query()
		gotUA = r.Header.Get("User-Agent")
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
		_, _ = w.Write([]byte(`{"stat":"ok"}`))
	}))
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	query := url.Values{}
	query.Set("method", "test.echo")
	query.Set("partner_id", "42")

	tr := New()
	body, err := tr.Post(context.Background(), host, "/services/json/", query, []byte("payload"), false)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("request method = %s, want POST", gotMethod)
	}
	if gotQuery.Get("method") != "test.echo" || gotQuery.Get("partner_id") != "42" {
		t.Errorf("query params not forwarded, got %v", gotQuery)
	}
	if gotBody != "payload" {
		t.Errorf("request body = %q, want %q", gotBody, "payload")
	}
	if gotUA != userAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, userAgent)
	}
	if string(body) != `{"stat":"ok"}` {
		t.Errorf("response body = %q", string(body))
	}
}

func TestPostNon200ReturnsStatusError(t *testing.T) {
	tests := []struct {
		name string
		code int
	}{
		{"server error", http.StatusInternalServerError},
		{"not found", http.StatusNotFound},
		{"bad gateway", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer server.Close()

			host := strings.TrimPrefix(server.URL, "http://")
			tr := New()
			_, err := tr.Post(context.Background(), host, "/", nil, nil, false)
			if err == nil {
				t.Fatal("Post() should fail for non-200 status")
			}

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Post() error = %T, want *StatusError", err)
			}
			if statusErr.Code != tt.code {
				t.Errorf("StatusError.Code = %d, want %d", statusErr.Code, tt.code)
			}
		})
	}
}

func TestPostUnreachableHost(t *testing.T) {
	tr := New()
	_, err := tr.Post(context.Background(), "127.0.0.1:1", "/", nil, nil, false)
	if err == nil {
		t.Fatal("Post() should fail for an unreachable host")
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Error("network failure should not be reported as *StatusError")
	}
}

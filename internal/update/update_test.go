package update

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func releaseServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckNewerVersion(t *testing.T) {
	srv := releaseServer(t, http.StatusOK, `{"tag_name": "v1.3.0"}`)
	res := check(context.Background(), srv.Client(), srv.URL, "v1.2.0")
	if res == nil {
		t.Fatal("expected an update")
	}
	if res.LatestVersion != "1.3.0" || res.CurrentVersion != "1.2.0" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCheckSameVersion(t *testing.T) {
	srv := releaseServer(t, http.StatusOK, `{"tag_name": "v1.2.0"}`)
	if res := check(context.Background(), srv.Client(), srv.URL, "1.2.0"); res != nil {
		t.Errorf("expected no update, got %+v", res)
	}
}

func TestCheckErrorsAreSilent(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, `{}`},
		{"bad json", http.StatusOK, `not json`},
		{"no tag", http.StatusOK, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := releaseServer(t, tt.status, tt.body)
			if res := check(context.Background(), srv.Client(), srv.URL, "1.0.0"); res != nil {
				t.Errorf("expected nil, got %+v", res)
			}
		})
	}
}

func TestCurrentIsSet(t *testing.T) {
	if Current() == "" {
		t.Error("expected a version string")
	}
}

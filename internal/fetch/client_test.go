package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const feed = "MatchDate,HomeTeam,AwayTeam,FTHome,FTAway,FTResult,HomeShots,AwayShots,HomeCorners,AwayCorners,HomeElo,AwayElo,OddHome,OddDraw,OddAway\n" +
	"2023-06-03,Arsenal,Chelsea,2,1,H,12,8,6,3,1800,1750,1.9,3.5,4.0\n" +
	"2023-06-03,Leeds,Wolves,0,0,D,7,9,4,5,1600,1580,2.6,3.1,2.8\n"

func newTestClient(url string) *Client {
	c := NewClient(url, 5*time.Second, 3)
	c.retryDelay = time.Millisecond
	return c
}

func TestFetchMatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/csv" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(feed))
	}))
	defer server.Close()

	lr, err := newTestClient(server.URL).FetchMatches(context.Background())
	if err != nil {
		t.Fatalf("FetchMatches() error = %v", err)
	}
	if len(lr.Matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(lr.Matches))
	}
	if lr.Matches[0].HomeTeam != "Arsenal" || lr.Matches[1].Result != "D" {
		t.Errorf("unexpected matches: %+v", lr.Matches)
	}
}

func TestFetchMatches_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(feed))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).FetchMatches(context.Background()); err != nil {
		t.Fatalf("FetchMatches() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchMatches_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"always 500", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"not found", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"missing columns", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("HomeTeam,AwayTeam\nA,B\n")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()
			if _, err := newTestClient(server.URL).FetchMatches(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := newTestClient("").FetchMatches(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("empty source error = %v, want ErrNoSource", err)
	}
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "incoming", "weekly_update.csv")
	n, err := newTestClient(server.URL).Download(context.Background(), path)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Download() = %d, want 2", n)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != feed {
		t.Errorf("saved file differs from feed")
	}
}

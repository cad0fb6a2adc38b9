package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"prism-board/domain"
)

// readEvent returns the data line of the next board event, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) boardResponse {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var resp boardResponse
			if err := sonic.UnmarshalString(data, &resp); err != nil {
				t.Fatalf("invalid event payload %q: %v", data, err)
			}
			return resp
		}
	}
}

func TestStreamBoardPushesChanges(t *testing.T) {
	a := newTestAPI(t, nil)
	srv := httptest.NewServer(a.e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/board/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	first := readEvent(t, r)
	if first.Revision != 0 || len(first.Stages) != domain.StageCount {
		t.Fatalf("unexpected initial event: %#v", first)
	}

	if _, err := a.svc.CreateTask(context.Background(), domain.StagePlanned, "streamed", "", testNow); err != nil {
		t.Fatalf("create: %v", err)
	}
	next := readEvent(t, r)
	if next.Revision != 1 || len(next.Stages[0].Tasks) != 1 || next.Stages[0].Tasks[0].Title != "streamed" {
		t.Fatalf("unexpected change event: %#v", next)
	}
}

func TestStreamAcceptsQueryToken(t *testing.T) {
	auth := newTestAuth()
	a := newTestAPI(t, auth)
	srv := httptest.NewServer(a.e)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/board/stream")
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/board/stream?token="+signTestToken(t, "owner", time.Hour), nil)
	resp, err = srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	if ev := readEvent(t, bufio.NewReader(resp.Body)); len(ev.Stages) != domain.StageCount {
		t.Fatalf("unexpected event: %#v", ev)
	}
}

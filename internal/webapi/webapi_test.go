package webapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/moku-wst/internal/authtoken"
	"github.com/raysh454/moku-wst/internal/model"
	"github.com/raysh454/moku-wst/internal/render"
	"github.com/raysh454/moku-wst/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *authtoken.Signer, *testutil.DummyStore) {
	t.Helper()
	signer, err := authtoken.NewSigner([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	store := testutil.NewDummyStore()
	return New(store, signer, &testutil.DummyLogger{}), signer, store
}

func TestHandleDiffHTMLRejectsMissingToken(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/internal/diff-html/abc/" + render.FieldOld + "/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHandleDiffHTMLServesRequestedSide(t *testing.T) {
	s, signer, store := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	ctx := context.Background()
	d, _, err := store.CreateDiffHtml(ctx, &model.DiffHtml{
		NewSnapshotID: 1,
		NewDiffHTML:   "<p>new side</p>",
		OldDiffHTML:   "<p>old side</p>",
	})
	if err != nil {
		t.Fatalf("CreateDiffHtml: %v", err)
	}
	encID, err := signer.EncryptID(d.ID)
	if err != nil {
		t.Fatalf("EncryptID: %v", err)
	}
	token, err := signer.MintDeadlineToken(time.Now(), authtoken.DefaultValidity)
	if err != nil {
		t.Fatalf("MintDeadlineToken: %v", err)
	}

	req, err := http.NewRequest("GET", ts.URL+"/internal/diff-html/"+encID+"/"+render.FieldNew+"/", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("WST-Auth-Key", token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleChangeLogRendersTargetAndPrior(t *testing.T) {
	s, signer, store := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	ctx := context.Background()
	older, _, err := store.CreateWebUpdate(ctx, &model.WebUpdate{
		ClientID:    1,
		WebSourceID: 5,
		Hash:        "h1",
		Title:       "Older change",
		PubDate:     "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("CreateWebUpdate: %v", err)
	}
	target, _, err := store.CreateWebUpdate(ctx, &model.WebUpdate{
		ClientID:    1,
		WebSourceID: 5,
		Hash:        "h2",
		Title:       "Latest change",
		PubDate:     "2026-02-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("CreateWebUpdate: %v", err)
	}

	encID, err := signer.EncryptID(target.ID)
	if err != nil {
		t.Fatalf("EncryptID: %v", err)
	}
	resp, err := http.Get(ts.URL + "/tracking/" + encID + "/change-log/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])
	if !strings.Contains(body, "Latest change") || !strings.Contains(body, "Older change") {
		t.Fatalf("expected both titles in rendered page, got: %s", body)
	}
	_ = older
}

func TestHandleJobProgressStreamsPublishedEvents(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/jobs/fetch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// give the server a moment to register the subscription before publishing
	time.Sleep(50 * time.Millisecond)
	Publish(JobEvent{Job: "fetch", Message: "tick complete"})

	var evt JobEvent
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if evt.Message != "tick complete" {
		t.Fatalf("Message = %q, want %q", evt.Message, "tick complete")
	}
}

func TestHandleJobProgressRejectsUnknownJob(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws/jobs/not-a-real-job")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

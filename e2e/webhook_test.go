package e2e

import (
	"context"
	"encoding/hex"
	"net/http"
	"reflect"
	"testing"

	"github.com/makeasinger/lipsync/internal/middleware"
	"github.com/makeasinger/lipsync/internal/model"
)

const (
	lipsyncDone  = `{"id":"gen-1","status":"COMPLETED","outputUrl":"https://cdn.example.com/lipsync.mp4","outputDuration":30.5}`
	captionsDone = `{"projectId":"cap-1","status":"completed","title":"My Song","downloadUrl":"https://cdn.example.com/final.mp4","duration":31}`
)

func signedHeaders(body string) map[string]string {
	sig := middleware.Sign([]byte(testWebhookSecret), []byte(body))
	return map[string]string{middleware.SignatureHeader: hex.EncodeToString(sig)}
}

func snapshotJob(t *testing.T, ta *testApp) *model.Job {
	t.Helper()
	job, err := ta.store.Get(context.Background(), testUserID, "gen-1")
	if err != nil {
		t.Fatalf("read job: %v", err)
	}
	return job
}

func createJob(t *testing.T, ta *testApp) {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs", validJobBody)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
}

func TestFullPipeline(t *testing.T) {
	ta := setupApp(t)
	createJob(t, ta)

	for i := 0; i < 2; i++ {
		resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/lipsync?uid="+testUserID, lipsyncDone, nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusOK)

		body := parseJSON(t, resp)
		if body["received"] != true || body["deliveryId"] == "" {
			t.Errorf("unexpected ack %v", body)
		}
	}

	if ta.captions.count() != 1 {
		t.Fatalf("expected one captions request, got %d", ta.captions.count())
	}
	capReq := ta.captions.last()
	if capReq["resultUrl"] != "https://cdn.example.com/lipsync.mp4" || capReq["captionTemplate"] != "karaoke" {
		t.Errorf("unexpected captions request %v", capReq)
	}

	for i := 0; i < 2; i++ {
		resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/captions?uid="+testUserID, captionsDone, signedHeaders(captionsDone))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusOK)
	}

	if ta.sendgrid.count() != 1 {
		t.Fatalf("expected one email, got %d", ta.sendgrid.count())
	}

	resp, _ := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/gen-1", "")
	job := parseJSON(t, resp)
	if job["status"] != "completed" || job["secondaryStatus"] != "completed" {
		t.Errorf("unexpected statuses %v / %v", job["status"], job["secondaryStatus"])
	}
	if job["secondaryResultUrl"] != "https://cdn.example.com/final.mp4" {
		t.Errorf("unexpected secondaryResultUrl %v", job["secondaryResultUrl"])
	}

	resp, _ = doAuthRequest(t, ta.app, http.MethodGet, "/api/videos", "")
	videos := parseJSON(t, resp)["videos"].([]interface{})
	if len(videos) != 1 {
		t.Fatalf("expected one finished video, got %d", len(videos))
	}
}

func TestLipsyncWebhook_UnknownJob(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/lipsync?uid="+testUserID, lipsyncDone, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
	if ta.captions.count() != 0 {
		t.Error("unknown job must not chain")
	}
}

func TestLipsyncWebhook_MissingOwner(t *testing.T) {
	ta := setupApp(t)
	createJob(t, ta)
	before := snapshotJob(t, ta)

	resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/lipsync", lipsyncDone, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(parseJSON(t, resp)); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %q", code)
	}

	if after := snapshotJob(t, ta); !reflect.DeepEqual(before, after) {
		t.Errorf("job changed:\nbefore %+v\nafter  %+v", before, after)
	}
	if ta.captions.count() != 0 {
		t.Error("rejected callback must not chain")
	}
}

func TestLipsyncWebhook_MissingStatus(t *testing.T) {
	ta := setupApp(t)
	createJob(t, ta)
	before := snapshotJob(t, ta)

	body := `{"id":"gen-1","outputUrl":"https://cdn.example.com/lipsync.mp4"}`
	resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/lipsync?uid="+testUserID, body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	if after := snapshotJob(t, ta); !reflect.DeepEqual(before, after) {
		t.Errorf("job changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestLipsyncWebhook_MalformedBody(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/lipsync?uid="+testUserID, `{not json`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCaptionsWebhook_MissingOwner(t *testing.T) {
	ta := setupApp(t)
	createJob(t, ta)
	resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/lipsync?uid="+testUserID, lipsyncDone, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	before := snapshotJob(t, ta)

	resp, err = doRequest(ta.app, http.MethodPost, "/webhooks/captions", captionsDone, signedHeaders(captionsDone))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(parseJSON(t, resp)); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %q", code)
	}

	if after := snapshotJob(t, ta); !reflect.DeepEqual(before, after) {
		t.Errorf("job changed:\nbefore %+v\nafter  %+v", before, after)
	}
	if ta.sendgrid.count() != 0 {
		t.Error("rejected callback must not notify")
	}
}

func TestCaptionsWebhook_BadSignature(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/captions?uid="+testUserID, captionsDone,
		map[string]string{middleware.SignatureHeader: "deadbeef"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestCaptionsWebhook_MissingFields(t *testing.T) {
	ta := setupApp(t)

	body := `{"status":"completed"}`
	resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/captions?uid="+testUserID, body, signedHeaders(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCaptionsWebhook_UnknownProject(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/captions?uid="+testUserID, captionsDone, signedHeaders(captionsDone))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
	if ta.sendgrid.count() != 0 {
		t.Error("no email expected")
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fitbaus/fitbaus/fetch/async"
	fitbaustest "github.com/fitbaus/fitbaus/internal/testing"
)

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v\nbody: %s", err, w.Body.String())
	}
	return resp
}

func TestHandleFetchData(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/fetch-data", strings.NewReader(`{"profile":"ghost"}`))
	w := httptest.NewRecorder()

	srv.HandleFetchData(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeJSON(t, w)
	if resp["job_id"] != "1" {
		t.Errorf("job_id = %v, want 1", resp["job_id"])
	}
	if resp["status"] != "queued" {
		t.Errorf("status = %v, want queued", resp["status"])
	}
	if resp["message"] != "Fetch operation started" {
		t.Errorf("message = %v", resp["message"])
	}

	// Unknown profile fails inside the job, not at the endpoint
	job := waitTerminal(t, srv.controller.FetchJobs(), "1")
	if job.Status != async.JobStatusFailed {
		t.Errorf("ghost profile job status = %v, want failed", job.Status)
	}
}

func TestHandleFetchData_EmptyBodyStillQueues(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/fetch-data", nil)
	w := httptest.NewRecorder()

	srv.HandleFetchData(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decodeJSON(t, w)
	if resp["job_id"] != "1" {
		t.Errorf("job_id = %v, want 1", resp["job_id"])
	}
}

func TestHandleFetchData_RejectsWhileDraining(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	srv.setState(ServerStateDraining)

	req := httptest.NewRequest(http.MethodPost, "/api/fetch-data", strings.NewReader(`{"profile":"alice"}`))
	w := httptest.NewRecorder()

	srv.HandleFetchData(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	resp := decodeJSON(t, w)
	if resp["error"] != "Server is shutting down" {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestHandleFetchData_RejectsNonPost(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/api/fetch-data", nil)
			w := httptest.NewRecorder()

			srv.HandleFetchData(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s: Status = %d, want %d", method, w.Code, http.StatusMethodNotAllowed)
			}
		})
	}
}

func TestHandleFetchStatus(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/fetch-status/", nil)
		w := httptest.NewRecorder()

		srv.HandleFetchStatus(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if resp := decodeJSON(t, w); resp["error"] != "Missing job ID" {
			t.Errorf("error = %v", resp["error"])
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/fetch-status/999", nil)
		w := httptest.NewRecorder()

		srv.HandleFetchStatus(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
		}
		if resp := decodeJSON(t, w); resp["error"] != "Job not found" {
			t.Errorf("error = %v", resp["error"])
		}
	})

	t.Run("known id", func(t *testing.T) {
		job := srv.controller.StartFetch("ghost")

		req := httptest.NewRequest(http.MethodGet, "/api/fetch-status/"+job.ID, nil)
		w := httptest.NewRecorder()

		srv.HandleFetchStatus(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		resp := decodeJSON(t, w)
		if resp["id"] != job.ID {
			t.Errorf("id = %v, want %s", resp["id"], job.ID)
		}
		if resp["kind"] != "fetch" {
			t.Errorf("kind = %v, want fetch", resp["kind"])
		}
	})
}

func TestHandleFetchJobs(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/fetch-jobs", nil)
	w := httptest.NewRecorder()
	srv.HandleFetchJobs(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	var empty []*async.Job
	if err := json.Unmarshal(w.Body.Bytes(), &empty); err != nil {
		t.Fatalf("response is not a job list: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("fresh registry listed %d jobs, want 0", len(empty))
	}

	srv.controller.StartFetch("ghost")
	srv.controller.StartFetch("ghost")

	w = httptest.NewRecorder()
	srv.HandleFetchJobs(w, httptest.NewRequest(http.MethodGet, "/api/fetch-jobs", nil))

	var jobs []*async.Job
	if err := json.Unmarshal(w.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("response is not a job list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("listed %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != "1" || jobs[1].ID != "2" {
		t.Errorf("job order = %s, %s, want 1, 2", jobs[0].ID, jobs[1].ID)
	}
}

func TestHandleCancelFetch(t *testing.T) {
	srv, _, profiles := newTestServer(t, nil)

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/cancel-fetch/", nil)
		w := httptest.NewRecorder()

		srv.HandleCancelFetch(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/cancel-fetch/999", nil)
		w := httptest.NewRecorder()

		srv.HandleCancelFetch(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
		}
		if resp := decodeJSON(t, w); resp["error"] != "Job not found" {
			t.Errorf("error = %v", resp["error"])
		}
	})

	t.Run("terminal job", func(t *testing.T) {
		job := srv.controller.StartFetch("ghost")
		waitTerminal(t, srv.controller.FetchJobs(), job.ID)

		req := httptest.NewRequest(http.MethodPost, "/api/cancel-fetch/"+job.ID, nil)
		w := httptest.NewRecorder()

		srv.HandleCancelFetch(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if resp := decodeJSON(t, w); resp["error"] != "Job cannot be cancelled" {
			t.Errorf("error = %v", resp["error"])
		}
	})

	t.Run("running job", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping subprocess test in short mode")
		}

		createAuthorizedProfile(t, profiles, "alice")
		writeScript(t, srv.cfg.Paths.ScriptsDir, "pipeline.sh", "sleep 30\n")

		job := srv.controller.StartFetch("alice")
		waitRunningProcess(t, srv.controller.FetchJobs(), job.ID)

		req := httptest.NewRequest(http.MethodPost, "/api/cancel-fetch/"+job.ID, nil)
		w := httptest.NewRecorder()

		srv.HandleCancelFetch(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		resp := decodeJSON(t, w)
		if resp["success"] != true {
			t.Errorf("success = %v, want true", resp["success"])
		}
		if resp["message"] != "Fetch operation cancelled" {
			t.Errorf("message = %v", resp["message"])
		}

		final := waitTerminal(t, srv.controller.FetchJobs(), job.ID)
		if final.Status != async.JobStatusCancelled {
			t.Errorf("final status = %v, want cancelled", final.Status)
		}
	})
}

func TestHandleFetchHistory_NoArchive(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/fetch-history", nil)
	w := httptest.NewRecorder()

	srv.HandleFetchHistory(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if resp := decodeJSON(t, w); resp["error"] != "Job history not available" {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestHandleFetchHistory(t *testing.T) {
	db := fitbaustest.CreateTestDB(t)
	archive := async.NewStore(db)
	srv, _, _ := newTestServer(t, archive)

	// Archive one finished job so the listing has content
	job := async.NewJob("9", async.JobKindFetch, "alice")
	job.Start()
	job.Complete(0, "5 scripts finished")
	if err := archive.ArchiveJob(job); err != nil {
		t.Fatalf("ArchiveJob() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/fetch-history?kind=fetch&profile=alice", nil)
	w := httptest.NewRecorder()

	srv.HandleFetchHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeJSON(t, w)
	jobs, ok := resp["jobs"].([]interface{})
	if !ok {
		t.Fatalf("jobs = %T, want array", resp["jobs"])
	}
	if len(jobs) != 1 {
		t.Fatalf("listed %d archived jobs, want 1", len(jobs))
	}
	first, _ := jobs[0].(map[string]interface{})
	if first["job_id"] != "9" || first["profile"] != "alice" {
		t.Errorf("archived job = %v", first)
	}

	counts, ok := resp["counts"].(map[string]interface{})
	if !ok {
		t.Fatalf("counts = %T, want object", resp["counts"])
	}
	if counts["completed"] != float64(1) {
		t.Errorf("counts.completed = %v, want 1", counts["completed"])
	}
}

func TestHandleFetchLogging(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	t.Run("get reports disabled", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/fetch-logging", nil)
		w := httptest.NewRecorder()

		srv.HandleFetchLogging(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		resp := decodeJSON(t, w)
		if resp["verbose_logging"] != false {
			t.Errorf("verbose_logging = %v, want false", resp["verbose_logging"])
		}
		if resp["message"] != "Verbose fetch logging is disabled" {
			t.Errorf("message = %v", resp["message"])
		}
	})

	t.Run("post enables and persists", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/fetch-logging", strings.NewReader(`{"enabled":true}`))
		w := httptest.NewRecorder()

		srv.HandleFetchLogging(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		resp := decodeJSON(t, w)
		if resp["success"] != true || resp["verbose_logging"] != true {
			t.Errorf("response = %v", resp)
		}
		if !srv.controller.VerboseFetchLogging() {
			t.Error("controller toggle not flipped")
		}
	})

	t.Run("post empty body defaults to enable", func(t *testing.T) {
		srv.controller.SetVerboseFetchLogging(false)

		req := httptest.NewRequest(http.MethodPost, "/api/fetch-logging", nil)
		w := httptest.NewRecorder()

		srv.HandleFetchLogging(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if !srv.controller.VerboseFetchLogging() {
			t.Error("empty POST body should enable verbose logging")
		}
	})

	t.Run("rejects other methods", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/fetch-logging", nil)
		w := httptest.NewRecorder()

		srv.HandleFetchLogging(w, req)

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
		}
	})
}

func TestHandleCreateProfile(t *testing.T) {
	srv, _, profiles := newTestServer(t, nil)

	t.Run("success", func(t *testing.T) {
		body := `{"profileName":"alice","clientId":"client-123","clientSecret":"secret-456"}`
		req := httptest.NewRequest(http.MethodPost, "/api/create-profile", strings.NewReader(body))
		w := httptest.NewRecorder()

		srv.HandleCreateProfile(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		resp := decodeJSON(t, w)
		if resp["profileName"] != "alice" {
			t.Errorf("profileName = %v, want alice", resp["profileName"])
		}
		if !profiles.Exists("alice") {
			t.Error("profile not created on disk")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		body := `{"profileName":"bob","clientId":"  "}`
		req := httptest.NewRequest(http.MethodPost, "/api/create-profile", strings.NewReader(body))
		w := httptest.NewRecorder()

		srv.HandleCreateProfile(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if resp := decodeJSON(t, w); resp["error"] != "All fields are required" {
			t.Errorf("error = %v", resp["error"])
		}
	})

	t.Run("invalid name", func(t *testing.T) {
		body := `{"profileName":"../evil","clientId":"id","clientSecret":"sec"}`
		req := httptest.NewRequest(http.MethodPost, "/api/create-profile", strings.NewReader(body))
		w := httptest.NewRecorder()

		srv.HandleCreateProfile(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		resp := decodeJSON(t, w)
		if !strings.Contains(resp["error"].(string), "letters, numbers") {
			t.Errorf("error = %v", resp["error"])
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		body := `{"profileName":"alice","clientId":"id","clientSecret":"sec"}`
		req := httptest.NewRequest(http.MethodPost, "/api/create-profile", strings.NewReader(body))
		w := httptest.NewRecorder()

		srv.HandleCreateProfile(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		resp := decodeJSON(t, w)
		if !strings.Contains(resp["error"].(string), "already exists") {
			t.Errorf("error = %v", resp["error"])
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/create-profile", strings.NewReader("{broken"))
		w := httptest.NewRecorder()

		srv.HandleCreateProfile(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		resp := decodeJSON(t, w)
		if !strings.Contains(resp["error"].(string), "Invalid request body") {
			t.Errorf("error = %v", resp["error"])
		}
	})
}

func TestHandleDeleteProfile(t *testing.T) {
	srv, _, profiles := newTestServer(t, nil)

	t.Run("empty name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/delete-profile", strings.NewReader(`{"profileName":"  "}`))
		w := httptest.NewRecorder()

		srv.HandleDeleteProfile(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if resp := decodeJSON(t, w); resp["error"] != "Profile name is required" {
			t.Errorf("error = %v", resp["error"])
		}
	})

	t.Run("invalid name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/delete-profile", strings.NewReader(`{"profileName":"a/b"}`))
		w := httptest.NewRecorder()

		srv.HandleDeleteProfile(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if resp := decodeJSON(t, w); resp["error"] != "Invalid profile name format" {
			t.Errorf("error = %v", resp["error"])
		}
	})

	t.Run("unknown profile", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/delete-profile", strings.NewReader(`{"profileName":"ghost"}`))
		w := httptest.NewRecorder()

		srv.HandleDeleteProfile(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("success", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping subprocess test in short mode")
		}

		createAuthorizedProfile(t, profiles, "gone")

		req := httptest.NewRequest(http.MethodPost, "/api/delete-profile", strings.NewReader(`{"profileName":"gone"}`))
		w := httptest.NewRecorder()

		srv.HandleDeleteProfile(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		resp := decodeJSON(t, w)
		if !strings.Contains(resp["message"].(string), "deleted successfully") {
			t.Errorf("message = %v", resp["message"])
		}
	})
}

func TestHandleProfiles(t *testing.T) {
	srv, _, profiles := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/profiles", nil)
	w := httptest.NewRecorder()
	srv.HandleProfiles(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	if err := profiles.Create("alice", "id", "secret"); err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	srv.HandleProfiles(w, httptest.NewRequest(http.MethodGet, "/api/profiles", nil))

	var list []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("response is not a profile list: %v", err)
	}
	if len(list) != 1 || list[0]["name"] != "alice" {
		t.Errorf("profiles = %v, want [alice]", list)
	}
}

func TestHandleAuthorize(t *testing.T) {
	srv, cfg, profiles := newTestServer(t, nil)

	t.Run("missing profile name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/authorize/", nil)
		w := httptest.NewRecorder()

		srv.HandleAuthorize(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("unknown profile", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/authorize/ghost", nil)
		w := httptest.NewRecorder()

		srv.HandleAuthorize(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		resp := decodeJSON(t, w)
		if resp["error"] != "Client credentials not found for profile ghost" {
			t.Errorf("error = %v", resp["error"])
		}
	})

	t.Run("get reports manual mode without certs", func(t *testing.T) {
		createAuthorizedProfile(t, profiles, "alice")

		req := httptest.NewRequest(http.MethodGet, "/api/authorize/alice", nil)
		w := httptest.NewRecorder()

		srv.HandleAuthorize(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		resp := decodeJSON(t, w)
		if resp["mode"] != "manual" {
			t.Errorf("mode = %v, want manual for https localhost without certs", resp["mode"])
		}
		authURL, _ := resp["auth_url"].(string)
		if !strings.Contains(authURL, "client_id=client-123") {
			t.Errorf("auth_url missing client id: %v", authURL)
		}
		if resp["redirect_uri"] != cfg.Authorize.RedirectURI {
			t.Errorf("redirect_uri = %v", resp["redirect_uri"])
		}
	})

	t.Run("get reports background mode for plain http", func(t *testing.T) {
		cfg.Authorize.RedirectURI = "http://localhost:8080/callback"
		defer func() { cfg.Authorize.RedirectURI = "https://localhost:8080/callback" }()

		req := httptest.NewRequest(http.MethodGet, "/api/authorize/alice", nil)
		w := httptest.NewRecorder()

		srv.HandleAuthorize(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		resp := decodeJSON(t, w)
		if resp["mode"] != "background" {
			t.Errorf("mode = %v, want background", resp["mode"])
		}
		if resp["message"] != "Background authorization supported." {
			t.Errorf("message = %v", resp["message"])
		}
	})

	t.Run("post starts authorization job", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping subprocess test in short mode")
		}

		req := httptest.NewRequest(http.MethodPost, "/api/authorize/alice", nil)
		w := httptest.NewRecorder()

		srv.HandleAuthorize(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		resp := decodeJSON(t, w)
		if resp["job_id"] != "1" {
			t.Errorf("job_id = %v, want 1", resp["job_id"])
		}
		if resp["message"] != "Authorization started for profile: alice" {
			t.Errorf("message = %v", resp["message"])
		}

		job := waitTerminal(t, srv.controller.AuthJobs(), "1")
		if job.Status != async.JobStatusCompleted {
			t.Errorf("authorize job status = %v, want completed", job.Status)
		}
	})

	t.Run("post rejected while draining", func(t *testing.T) {
		srv.setState(ServerStateDraining)
		defer srv.setState(ServerStateRunning)

		req := httptest.NewRequest(http.MethodPost, "/api/authorize/alice", nil)
		w := httptest.NewRecorder()

		srv.HandleAuthorize(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestHandleAuthorizeStatus(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/authorize-status/", nil)
	w := httptest.NewRecorder()
	srv.HandleAuthorizeStatus(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing id Status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = httptest.NewRecorder()
	srv.HandleAuthorizeStatus(w, httptest.NewRequest(http.MethodGet, "/api/authorize-status/999", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id Status = %d, want %d", w.Code, http.StatusNotFound)
	}

	job := srv.controller.StartAuthorize("ghost")
	w = httptest.NewRecorder()
	srv.HandleAuthorizeStatus(w, httptest.NewRequest(http.MethodGet, "/api/authorize-status/"+job.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("known id Status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeJSON(t, w); resp["kind"] != "authorize" {
		t.Errorf("kind = %v, want authorize", resp["kind"])
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	srv.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeJSON(t, w)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
	if resp["active_jobs"] != float64(0) {
		t.Errorf("active_jobs = %v, want 0", resp["active_jobs"])
	}
	if resp["clients"] != float64(0) {
		t.Errorf("clients = %v, want 0", resp["clients"])
	}
	if resp["version"] == "" {
		t.Error("version missing")
	}
	system, ok := resp["system"].(map[string]interface{})
	if !ok {
		t.Fatalf("system = %T, want object", resp["system"])
	}
	for _, key := range []string{"jobs_queued", "jobs_running", "memory_total_gb"} {
		if _, ok := system[key]; !ok {
			t.Errorf("system metrics missing %s", key)
		}
	}

	w = httptest.NewRecorder()
	srv.HandleHealth(w, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST Status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestCORSMiddleware(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	t.Run("allowed origin echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()

		srv.mux.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Allow-Origin = %q, want the request origin", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Allow-Credentials = %q, want true", got)
		}
	})

	t.Run("disallowed origin gets no header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://evil.example.com")
		w := httptest.NewRecorder()

		srv.mux.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q for a disallowed origin, want empty", got)
		}
	})

	t.Run("preflight succeeds without dispatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/fetch-data", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()

		srv.mux.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("OPTIONS Status = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
			t.Errorf("Allow-Methods = %q, want POST included", got)
		}
	})
}

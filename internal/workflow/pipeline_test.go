package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"gfwpro-workflow/internal/gfw"
)

var fixedNow = func() time.Time { return time.Unix(1714564800, 0) }

func TestPipelineRunsStepsInOrder(t *testing.T) {
	api := &fakeUpload{}
	var steps []gfw.Step
	p := &Pipeline{API: api, Now: fixedNow, OnStep: func(step gfw.Step, _ Outcome) { steps = append(steps, step) }}
	csv := []byte("id,lat,lon\n")

	out, err := p.Run(context.Background(), PipelineInput{
		UserEmail:      "me@example.com",
		CSV:            csv,
		Commodity:      "Cocoa Generic",
		AnalysisID:     "FCD",
		ListNamePrefix: "client_demo",
		Payload:        map[string]string{"userEmail": "me@example.com"},
		RunID:          "3f2a9c1e-7b44-4d0e-9a51-0c8e2d6f1b77",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomeSucceeded || out.Job.ListID != "4217" || out.ListName != "client_demo_1714564800_3f2a9c1e" {
		t.Fatalf("outcome = %+v", out)
	}
	if !reflect.DeepEqual(api.calls, []string{"prepare", "upload", "create", "trigger"}) {
		t.Fatalf("calls = %v", api.calls)
	}
	wantSteps := []gfw.Step{gfw.StepPrepareUpload, gfw.StepUploadFile, gfw.StepCreateList, gfw.StepTriggerAnalysis}
	if !reflect.DeepEqual(steps, wantSteps) {
		t.Fatalf("steps = %v", steps)
	}
	if string(api.uploaded) != string(csv) {
		t.Fatalf("uploaded %q", api.uploaded)
	}
	want := gfw.CreateListRequest{UploadID: "up-1", ListName: "client_demo_1714564800_3f2a9c1e", Commodity: "Cocoa Generic", AnalysisIDs: "FCD"}
	if api.created != want {
		t.Fatalf("create request = %+v", api.created)
	}
}

func TestPipelineFailsFastBeforeListExists(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		api       *fakeUpload
		kind      error
		step      gfw.Step
		wantCalls []string
	}{
		{name: "prepare", api: &fakeUpload{prepareErr: boom}, kind: gfw.ErrPrepareFailed, step: gfw.StepPrepareUpload, wantCalls: []string{"prepare"}},
		{name: "upload", api: &fakeUpload{uploadErr: boom}, kind: gfw.ErrUploadFailed, step: gfw.StepUploadFile, wantCalls: []string{"prepare", "upload"}},
		{name: "create", api: &fakeUpload{createErr: boom}, kind: gfw.ErrJobCreationFailed, step: gfw.StepCreateList, wantCalls: []string{"prepare", "upload", "create"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := (&Pipeline{API: tt.api, Now: fixedNow}).Run(context.Background(), PipelineInput{AnalysisID: "FCD"})
			if !errors.Is(err, tt.kind) || !errors.Is(err, boom) {
				t.Fatalf("err = %v, want %v wrapping boom", err, tt.kind)
			}
			if out.Kind != OutcomeFailed || out.Step != tt.step {
				t.Fatalf("outcome = %+v", out)
			}
			if !reflect.DeepEqual(tt.api.calls, tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", tt.api.calls, tt.wantCalls)
			}
		})
	}
}

func TestPipelineTriggerFailureIsPartial(t *testing.T) {
	api := &fakeUpload{triggerErr: errors.New("502 from upstream")}
	out, err := (&Pipeline{API: api, Now: fixedNow}).Run(context.Background(), PipelineInput{AnalysisID: "GHG"})
	if err != nil {
		t.Fatalf("trigger failure must not be returned as error: %v", err)
	}
	if out.Kind != OutcomePartial || out.Job.ListID != "4217" {
		t.Fatalf("outcome = %+v", out)
	}
	if !errors.Is(out.Err, gfw.ErrTriggerFailed) {
		t.Fatalf("outcome err = %v, want ErrTriggerFailed", out.Err)
	}
}

func TestPipelineTriggerHTTP500OverWireKeepsListID(t *testing.T) {
	var triggerBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/prepare_upload", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"uploadId":"up-9","uploadUrl":"`+"http://"+r.Host+`/signed/put"}`)
	})
	mux.HandleFunc("/signed/put", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/list/upload_new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"listId":"list-500"}`)
	})
	mux.HandleFunc("/api/v1/list/list-500/analysis/Alerts/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&triggerBody)
		http.Error(w, "internal", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := gfw.NewClient(gfw.Options{BaseURL: srv.URL + "/api/v1", APIKey: "k", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	payload := gfw.BuildTriggerPayload("alerts", gfw.PayloadSettings{UserEmail: "u@x", AlertStartDate: "2024-01-01", AlertEndDate: "2024-12-31"})

	out, err := (&Pipeline{API: client, Now: fixedNow}).Run(context.Background(), PipelineInput{
		UserEmail:  "u@x",
		CSV:        []byte("a,b\n"),
		AnalysisID: "Alerts",
		Payload:    payload,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomePartial || out.Job.ListID != "list-500" {
		t.Fatalf("outcome = %+v", out)
	}
	if !errors.Is(out.Err, gfw.ErrTriggerFailed) || gfw.StatusCodeOf(out.Err) != http.StatusInternalServerError {
		t.Fatalf("outcome err = %v", out.Err)
	}
	if triggerBody["startDate"] != "2024-01-01" || triggerBody["userEmail"] != "u@x" {
		t.Fatalf("trigger body = %v", triggerBody)
	}
}

func TestRetriggerOnlyCallsTrigger(t *testing.T) {
	api := &fakeUpload{}
	out := (&Pipeline{API: api}).Retrigger(context.Background(), gfw.Job{ListID: "77"}, "FCD", nil)
	if out.Kind != OutcomeSucceeded || out.Job.ListID != "77" {
		t.Fatalf("outcome = %+v", out)
	}
	if !reflect.DeepEqual(api.calls, []string{"trigger"}) {
		t.Fatalf("calls = %v", api.calls)
	}
}

func TestListName(t *testing.T) {
	tests := []struct {
		prefix string
		runID  string
		want   string
	}{
		{prefix: " client_demo ", runID: "ab12cd34-ef56", want: "client_demo_42_ab12cd34"},
		{prefix: "", runID: "ab12cd34-ef56", want: "list_42_ab12cd34"},
		{prefix: "client_demo", runID: "r-7", want: "client_demo_42_r7"},
		{prefix: "client_demo", runID: "", want: "client_demo_42"},
	}
	for _, tt := range tests {
		if got := ListName(tt.prefix, time.Unix(42, 0), tt.runID); got != tt.want {
			t.Fatalf("ListName(%q, %q) = %q, want %q", tt.prefix, tt.runID, got, tt.want)
		}
	}
}

func TestConcurrentRunsInSameSecondGetDistinctListNames(t *testing.T) {
	api := &fakeUpload{}
	p := &Pipeline{API: api, Now: fixedNow}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(context.Background(), PipelineInput{ListNamePrefix: "client_demo", AnalysisID: "FCD"}); err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.names) != 2 || api.names[0] == api.names[1] {
		t.Fatalf("list names = %v, want two distinct names", api.names)
	}
	for _, name := range api.names {
		if !strings.HasPrefix(name, "client_demo_1714564800_") {
			t.Fatalf("list name %q lost its time base", name)
		}
	}
}

func TestRetriggerWithoutAPIIsPartial(t *testing.T) {
	out := (&Pipeline{}).Retrigger(context.Background(), gfw.Job{ListID: "4217"}, "FCD", nil)
	if out.Kind != OutcomePartial || out.Job.ListID != "4217" {
		t.Fatalf("outcome = %+v", out)
	}
	if !errors.Is(out.Err, gfw.ErrTriggerFailed) {
		t.Fatalf("err = %v, want ErrTriggerFailed", out.Err)
	}
}

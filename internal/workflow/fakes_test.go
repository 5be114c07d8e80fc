package workflow

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"gfwpro-workflow/internal/gfw"
)

type scriptedStatus struct {
	mu       sync.Mutex
	statuses []gfw.StatusSnapshot
	errs     map[int]error
	calls    int
}

func statusScript(raw ...string) *scriptedStatus {
	s := &scriptedStatus{}
	for _, r := range raw {
		s.statuses = append(s.statuses, gfw.StatusSnapshot{Status: r})
	}
	return s
}

func (s *scriptedStatus) Status(ctx context.Context, listID, analysisID string) (gfw.StatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return gfw.StatusSnapshot{}, err
	}
	if err, ok := s.errs[s.calls]; ok {
		return gfw.StatusSnapshot{}, err
	}
	idx := s.calls - 1
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	return s.statuses[idx], nil
}

func (s *scriptedStatus) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type sleepRecorder struct {
	mu    sync.Mutex
	naps  []time.Duration
	onNap func(n int) error
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.naps = append(r.naps, d)
	n := len(r.naps)
	hook := r.onNap
	r.mu.Unlock()
	if hook != nil {
		if err := hook(n); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (r *sleepRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.naps)
}

type fakeUpload struct {
	mu         sync.Mutex
	prepareErr error
	uploadErr  error
	createErr  error
	triggerErr error

	calls    []string
	uploaded []byte
	created  gfw.CreateListRequest
	names    []string
	payload  any
}

func (f *fakeUpload) PrepareUpload(ctx context.Context, userEmail string) (gfw.UploadTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "prepare")
	if f.prepareErr != nil {
		return gfw.UploadTicket{}, f.prepareErr
	}
	return gfw.UploadTicket{UploadID: "up-1", UploadURL: "https://signed/put"}, nil
}

func (f *fakeUpload) UploadFile(ctx context.Context, ticket gfw.UploadTicket, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "upload")
	f.uploaded = data
	return f.uploadErr
}

func (f *fakeUpload) CreateList(ctx context.Context, in gfw.CreateListRequest) (gfw.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	f.created = in
	f.names = append(f.names, in.ListName)
	if f.createErr != nil {
		return gfw.Job{}, f.createErr
	}
	return gfw.Job{ListID: "4217"}, nil
}

func (f *fakeUpload) TriggerAnalysis(ctx context.Context, listID, analysisID string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "trigger")
	f.payload = payload
	return f.triggerErr
}

type fakeDownload struct {
	body  []byte
	err   error
	calls int
}

func (f *fakeDownload) Download(ctx context.Context, resultURL string, w io.Writer) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	n, err := w.Write(f.body)
	return int64(n), err
}

type failingStore struct{}

func (failingStore) SaveWithKey(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	return 0, errors.New("disk full")
}

func (failingStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("not found")
}

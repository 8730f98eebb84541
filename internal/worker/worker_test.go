package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-learn/backend/pkg/queue"
	"github.com/aura-learn/backend/pkg/storage"
)

type sliceSource struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
}

func (s *sliceSource) Dequeue(_ context.Context, _ time.Duration) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	return job, nil
}

func (s *sliceSource) Retry(_ context.Context, job *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Attempt++
	s.retried = append(s.retried, job)
	return nil
}

type memBucket struct {
	objects map[string][]byte
	types   map[string]string
}

func (b *memBucket) Upload(_ context.Context, key, contentType string, body io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	b.objects[key] = data
	b.types[key] = contentType
	return "https://bucket.test/" + key, nil
}

type attached struct {
	id       uuid.UUID
	url, key string
}

type memClasses struct {
	mu    sync.Mutex
	calls []attached
	err   error
}

func (m *memClasses) attachedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *memClasses) AttachRecording(_ context.Context, id uuid.UUID, url, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, attached{id, url, key})
	return nil
}

func importJob(t *testing.T, classID uuid.UUID, src string) *queue.Job {
	t.Helper()
	body, err := json.Marshal(queue.RecordingImportPayload{LiveClassID: classID, SourceURL: src})
	require.NoError(t, err)
	return &queue.Job{ID: uuid.NewString(), Type: queue.JobTypeRecordingImport, Payload: body}
}

func providerServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rec.webm":
			w.Header().Set("Content-Type", "video/webm")
			_, _ = w.Write([]byte("webm-bytes"))
		case "/rec.bin":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("raw-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProcess(t *testing.T) {
	srv := providerServer(t)
	bucket := &memBucket{objects: map[string][]byte{}, types: map[string]string{}}
	classes := &memClasses{}
	p := NewRecordingProcessor(&sliceSource{}, bucket, classes, srv.Client(), nil)
	classID := uuid.New()

	job := importJob(t, classID, srv.URL+"/rec.webm")
	require.NoError(t, p.Process(context.Background(), job))

	key := storage.RecordingKey(classID, job.ID)
	assert.Equal(t, []byte("webm-bytes"), bucket.objects[key])
	assert.Equal(t, "video/webm", bucket.types[key])
	require.Len(t, classes.calls, 1)
	assert.Equal(t, attached{classID, "https://bucket.test/" + key, key}, classes.calls[0])

	job = importJob(t, classID, srv.URL+"/rec.bin")
	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, "video/mp4", bucket.types[storage.RecordingKey(classID, job.ID)])
}

func TestProcessFailures(t *testing.T) {
	srv := providerServer(t)
	classID := uuid.New()

	tests := []struct {
		name    string
		job     *queue.Job
		attach  error
		wantErr string
	}{
		{"unknown type", &queue.Job{ID: "1", Type: "other"}, nil, "unknown job type"},
		{"bad payload", &queue.Job{ID: "2", Type: queue.JobTypeRecordingImport, Payload: []byte("{")}, nil, "unmarshal payload"},
		{"provider 404", importJob(t, classID, srv.URL+"/missing"), nil, "download status: 404"},
		{"attach fails", importJob(t, classID, srv.URL+"/rec.webm"), errors.New("db down"), "attach recording"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket := &memBucket{objects: map[string][]byte{}, types: map[string]string{}}
			p := NewRecordingProcessor(&sliceSource{}, bucket, &memClasses{err: tt.attach}, srv.Client(), nil)
			err := p.Process(context.Background(), tt.job)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDrainRequeuesFailuresOnce(t *testing.T) {
	srv := providerServer(t)
	classID := uuid.New()
	ok1 := importJob(t, classID, srv.URL+"/rec.webm")
	bad := importJob(t, classID, srv.URL+"/missing")
	ok2 := importJob(t, classID, srv.URL+"/rec.bin")
	source := &sliceSource{jobs: []*queue.Job{ok1, bad, ok2}}
	classes := &memClasses{}
	p := NewRecordingProcessor(source, &memBucket{objects: map[string][]byte{}, types: map[string]string{}}, classes, srv.Client(), nil)

	done, err := p.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, done)
	assert.Len(t, classes.calls, 2)
	require.Len(t, source.retried, 1)
	assert.Equal(t, bad.ID, source.retried[0].ID)
	assert.Equal(t, 1, source.retried[0].Attempt)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := providerServer(t)
	classID := uuid.New()
	source := &sliceSource{jobs: []*queue.Job{importJob(t, classID, srv.URL+"/rec.webm")}}
	classes := &memClasses{}
	p := NewRecordingProcessor(source, &memBucket{objects: map[string][]byte{}, types: map[string]string{}}, classes, srv.Client(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return classes.attachedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Empty(t, source.retried)
}

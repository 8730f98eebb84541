package recordings

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-learn/backend/internal/middleware"
	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/policy"
	"github.com/aura-learn/backend/pkg/queue"
	"github.com/aura-learn/backend/pkg/storage"
)

type fakeClasses struct {
	classes  map[uuid.UUID]*models.LiveClass
	managers map[uuid.UUID]bool
	viewers  map[uuid.UUID]bool
}

func (f *fakeClasses) Get(_ context.Context, id uuid.UUID) (*models.LiveClass, error) {
	lc, ok := f.classes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *lc
	return &cp, nil
}

func (f *fakeClasses) Managed(ctx context.Context, caller policy.Caller, id uuid.UUID) (*models.LiveClass, *models.Course, error) {
	lc, err := f.Get(ctx, id)
	if err != nil {
		return nil, nil, models.NewError(models.ErrNotFound, "Live class not found")
	}
	if !f.managers[caller.ID] {
		return nil, nil, policy.Decision{Reason: policy.ReasonNotOwner}.Err()
	}
	return lc, &models.Course{ID: lc.CourseID}, nil
}

func (f *fakeClasses) Viewable(ctx context.Context, caller policy.Caller, id uuid.UUID) (*models.LiveClass, error) {
	lc, err := f.Get(ctx, id)
	if err != nil {
		return nil, models.NewError(models.ErrNotFound, "Live class not found")
	}
	if !f.managers[caller.ID] && !f.viewers[caller.ID] {
		return nil, policy.Decision{Reason: policy.ReasonNotEnrolled}.Err()
	}
	return lc, nil
}

func (f *fakeClasses) AttachRecording(_ context.Context, id uuid.UUID, url, key string) error {
	f.classes[id].RecordingURL = url
	f.classes[id].RecordingKey = key
	return nil
}

type fakeStore struct {
	objects map[string]bool
	deleted []string
}

func (s *fakeStore) PresignUpload(_ context.Context, key, contentType string) (string, error) {
	return "https://s3.test/" + key + "?put&ct=" + contentType, nil
}

func (s *fakeStore) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://s3.test/" + key + "?get", nil
}

func (s *fakeStore) Exists(_ context.Context, key string) (bool, error) { return s.objects[key], nil }

func (s *fakeStore) ObjectURL(key string) string { return "https://s3.test/" + key }

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStore) PresignExpire() time.Duration { return 15 * time.Minute }

type fixture struct {
	classes *fakeClasses
	store   *fakeStore
	class   *models.LiveClass
	teacher uuid.UUID
	learner uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		class:   &models.LiveClass{ID: uuid.New(), CourseID: uuid.New(), Status: models.LiveClassCompleted},
		teacher: uuid.New(),
		learner: uuid.New(),
		store:   &fakeStore{objects: map[string]bool{}},
	}
	f.classes = &fakeClasses{
		classes:  map[uuid.UUID]*models.LiveClass{f.class.ID: f.class},
		managers: map[uuid.UUID]bool{f.teacher: true},
		viewers:  map[uuid.UUID]bool{f.learner: true},
	}
	return f
}

func (f *fixture) router(store ObjectStore, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.classes, store, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextUserRole, models.RoleTeacher)
		c.Next()
	})
	r.POST("/live-classes/:id/recording/upload-url", h.UploadURL)
	r.POST("/live-classes/:id/recording/complete", h.Complete)
	r.GET("/live-classes/:id/recording/download-url", h.DownloadURL)
	return r
}

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

func call(t *testing.T, r http.Handler, method, path string, body interface{}, header map[string]string) (int, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestUploadURL(t *testing.T) {
	f := newFixture()
	path := "/live-classes/" + f.class.ID.String() + "/recording/upload-url"

	code, env := call(t, f.router(f.store, f.teacher), http.MethodPost, path, nil, nil)
	require.Equal(t, http.StatusOK, code)
	key, _ := env.Data["key"].(string)
	assert.True(t, strings.HasPrefix(key, "recordings/"+f.class.ID.String()+"/"))
	assert.Equal(t, "video/mp4", env.Data["content_type"])
	assert.Contains(t, env.Data["upload_url"], key)

	code, env = call(t, f.router(f.store, f.teacher), http.MethodPost, path, map[string]string{"content_type": "video/webm"}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "video/webm", env.Data["content_type"])

	code, _ = call(t, f.router(f.store, f.teacher), http.MethodPost, path, map[string]string{"content_type": "image/png"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, f.router(f.store, f.learner), http.MethodPost, path, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, f.router(nil, f.teacher), http.MethodPost, path, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestComplete(t *testing.T) {
	f := newFixture()
	f.class.RecordingKey = storage.RecordingKey(f.class.ID, "old")
	path := "/live-classes/" + f.class.ID.String() + "/recording/complete"
	r := f.router(f.store, f.teacher)
	key := storage.RecordingKey(f.class.ID, "new")

	code, env := call(t, r, http.MethodPost, path, map[string]string{"key": storage.RecordingKey(uuid.New(), "x")}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "key does not belong to this live class", env.Message)

	code, env = call(t, r, http.MethodPost, path, map[string]string{"key": key}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "recording has not been uploaded", env.Message)

	f.store.objects[key] = true
	code, env = call(t, r, http.MethodPost, path, map[string]string{"key": key}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "https://s3.test/"+key, env.Data["recording_url"])
	assert.Equal(t, key, f.class.RecordingKey)
	assert.Equal(t, []string{storage.RecordingKey(f.class.ID, "old")}, f.store.deleted)
}

func TestDownloadURL(t *testing.T) {
	f := newFixture()
	path := "/live-classes/" + f.class.ID.String() + "/recording/download-url"

	code, env := call(t, f.router(f.store, f.learner), http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Recording not available", env.Message)

	f.class.RecordingURL = "https://vimeo.example.com/1"
	code, env = call(t, f.router(f.store, f.learner), http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "https://vimeo.example.com/1", env.Data["download_url"])

	f.class.RecordingKey = storage.RecordingKey(f.class.ID, "a")
	code, env = call(t, f.router(f.store, f.learner), http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "https://s3.test/"+f.class.RecordingKey+"?get", env.Data["download_url"])
	assert.EqualValues(t, 900, env.Data["expires_in"])

	code, _ = call(t, f.router(f.store, uuid.New()), http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

type fakeQueue struct{ jobs []queue.RecordingImportPayload }

func (q *fakeQueue) EnqueueRecordingImport(_ context.Context, p queue.RecordingImportPayload) (string, error) {
	q.jobs = append(q.jobs, p)
	return "job-1", nil
}

func TestRecordingReadyWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture()
	q := &fakeQueue{}
	r := gin.New()
	r.POST("/webhooks/recording-ready", NewWebhookHandler(f.classes, q, "s3cret", nil).RecordingReady)
	good := map[string]string{SecretHeader: "s3cret"}
	valid := map[string]string{"live_class_id": f.class.ID.String(), "file_url": "https://zoom.example.com/rec/1.mp4"}

	tests := []struct {
		name   string
		header map[string]string
		body   interface{}
		status int
	}{
		{"no secret", nil, valid, http.StatusUnauthorized},
		{"wrong secret", map[string]string{SecretHeader: "nope"}, valid, http.StatusUnauthorized},
		{"bad body", good, map[string]string{"live_class_id": "x"}, http.StatusBadRequest},
		{"unknown class", good, map[string]string{"live_class_id": uuid.NewString(), "file_url": "https://zoom.example.com/x"}, http.StatusNotFound},
		{"accepted", good, valid, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := call(t, r, http.MethodPost, "/webhooks/recording-ready", tt.body, tt.header)
			assert.Equal(t, tt.status, code)
		})
	}
	require.Len(t, q.jobs, 1)
	assert.Equal(t, f.class.ID, q.jobs[0].LiveClassID)
	assert.Equal(t, "https://zoom.example.com/rec/1.mp4", q.jobs[0].SourceURL)
}

func TestWebhookWithoutSecretRejectsEverything(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture()
	r := gin.New()
	r.POST("/hook", NewWebhookHandler(f.classes, &fakeQueue{}, "", nil).RecordingReady)
	code, _ := call(t, r, http.MethodPost, "/hook", map[string]string{}, map[string]string{SecretHeader: ""})
	assert.Equal(t, http.StatusUnauthorized, code)
}

// Package worker runs the background jobs: the status sweep, reminder
// delivery and recording imports.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/pkg/queue"
	"github.com/aura-learn/backend/pkg/storage"
)

const pollTimeout = 5 * time.Second

// JobSource hands out recording import jobs.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Uploader streams an object into the recordings bucket.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// Attacher stores the imported recording on its live class.
type Attacher interface {
	AttachRecording(ctx context.Context, id uuid.UUID, url, key string) error
}

// RecordingProcessor copies provider recordings into S3: download from the
// provider URL, upload to the bucket, attach to the live class.
type RecordingProcessor struct {
	source   JobSource
	uploader Uploader
	classes  Attacher
	http     *http.Client
	logger   *zap.Logger
	backoff  time.Duration
}

// NewRecordingProcessor creates a recording import processor. httpClient may be nil.
func NewRecordingProcessor(source JobSource, uploader Uploader, classes Attacher, httpClient *http.Client, logger *zap.Logger) *RecordingProcessor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Minute}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingProcessor{
		source:   source,
		uploader: uploader,
		classes:  classes,
		http:     httpClient,
		logger:   logger,
		backoff:  queue.RetryBackoff,
	}
}

// Process executes one recording import job.
func (p *RecordingProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRecordingImport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RecordingImportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		contentType = "video/mp4"
	}
	key := storage.RecordingKey(payload.LiveClassID, job.ID)
	url, err := p.uploader.Upload(ctx, key, contentType, resp.Body, resp.ContentLength)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.classes.AttachRecording(ctx, payload.LiveClassID, url, key); err != nil {
		return fmt.Errorf("attach recording: %w", err)
	}

	p.logger.Info("recording import completed",
		zap.String("live_class_id", payload.LiveClassID.String()),
		zap.String("s3_key", key),
		zap.String("source", path.Base(payload.SourceURL)),
	)
	return nil
}

// handle processes one job and requeues it on failure. It reports whether the job succeeded.
func (p *RecordingProcessor) handle(ctx context.Context, job *queue.Job) bool {
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	if err := p.Process(ctx, job); err != nil {
		p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		if reErr := p.source.Retry(ctx, job); reErr != nil {
			p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
		}
		return false
	}
	return true
}

// Drain processes queued jobs until the queue is empty and returns how many
// succeeded. Failed jobs are requeued once the queue is empty, so each job is
// tried at most once per call.
func (p *RecordingProcessor) Drain(ctx context.Context) (int, error) {
	done := 0
	var failed []*queue.Job
	defer func() {
		for _, job := range failed {
			if err := p.source.Retry(ctx, job); err != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}()
	for {
		job, err := p.source.Dequeue(ctx, time.Second)
		if err != nil {
			return done, fmt.Errorf("dequeue: %w", err)
		}
		if job == nil {
			return done, nil
		}
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			failed = append(failed, job)
			continue
		}
		done++
	}
}

// Run dequeues and processes jobs until ctx is done.
func (p *RecordingProcessor) Run(ctx context.Context) {
	p.logger.Info("recording worker started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("recording worker stopping")
			return
		default:
		}

		job, err := p.source.Dequeue(ctx, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		if !p.handle(ctx, job) {
			p.sleep(ctx)
		}
	}
}

func (p *RecordingProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Package export coordinates the lifecycle of remote export jobs:
// submission, status polling, listener fan-out, notification and
// garbage collection.
package export

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/motorgrid/exportd/internal/config"
	"github.com/motorgrid/exportd/internal/erp"
	"github.com/motorgrid/exportd/internal/export/structs"
	"github.com/motorgrid/exportd/internal/logger"
	"github.com/motorgrid/exportd/internal/notify"
)

// ReportingClient is the slice of the ERP reporting API the coordinator
// consumes.
type ReportingClient interface {
	StartExport(ctx context.Context, params *erp.ExportParams) (*erp.StartExportResult, error)
	ExportStatus(ctx context.Context, taskID string) (*erp.StatusResult, error)
}

// Listener observes job-state changes. It receives a snapshot copy and
// must not retain expectations about delivery timing beyond per-task
// ordering.
type Listener func(job *structs.Job)

// Service owns the export job registry. One instance per composition
// root; all registry access goes through it.
type Service struct {
	cfg      *config.Export
	logger   *logger.Logger
	client   ReportingClient
	notifier notify.Notifier

	mu        sync.Mutex
	jobs      map[string]*structs.Job
	pollers   map[string]chan struct{}
	listeners map[string]Listener
}

// NewService creates an export coordinator.
func NewService(cfg *config.Export, log *logger.Logger, client ReportingClient, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Service{
		cfg:       cfg,
		logger:    log,
		client:    client,
		notifier:  notifier,
		jobs:      make(map[string]*structs.Job),
		pollers:   make(map[string]chan struct{}),
		listeners: make(map[string]Listener),
	}
}

// Start launches the periodic cleanup loop. It runs for the lifetime of
// ctx; cancelling ctx also retires every active poller.
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.stopAllPollers()
				return
			case <-ticker.C:
				s.CleanupOldJobs()
			}
		}
	}()
}

// RequestPermission queries the host notification facility.
func (s *Service) RequestPermission(ctx context.Context) bool {
	return s.notifier.RequestPermission(ctx)
}

// StartExport submits an export request to the reporting API and begins
// tracking it. Returns the task ID: the remote one for asynchronous
// jobs, or a locally synthesized sync-<ms> ID when the backend answered
// with the finished file directly.
func (s *Service) StartExport(ctx context.Context, params *erp.ExportParams) (string, error) {
	// Outcome deliberately ignored: notification capability must not
	// gate the export.
	go s.notifier.RequestPermission(context.Background())

	res, err := s.client.StartExport(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExportStart, err)
	}

	if res.Error {
		message := res.Message
		if message == "" {
			message = "export request rejected"
		}
		return "", fmt.Errorf("%w: %s", ErrExportStart, message)
	}

	format := structs.Format(params.Format)

	switch {
	case res.TaskID != "":
		job := &structs.Job{
			TaskID:    res.TaskID,
			Format:    format,
			Status:    structs.JobStatusPending,
			CreatedAt: time.Now(),
		}

		s.mu.Lock()
		s.jobs[job.TaskID] = job
		snapshot := job.Clone()
		s.mu.Unlock()

		s.startPolling(job.TaskID)
		s.notifyListeners(snapshot)
		s.notifier.Started(ctx, job.TaskID, params.Format)

		s.logger.Info(ctx, "Export job started", "task_id", job.TaskID, "format", params.Format)
		return job.TaskID, nil

	case res.FilePath != "":
		// Synchronous completion: the async execution backend was
		// unavailable and the server produced the file inline.
		now := time.Now()
		job := &structs.Job{
			Format:      format,
			Status:      structs.JobStatusSuccess,
			FilePath:    res.FilePath,
			FileName:    structs.FileNameFromPath(res.FilePath, format),
			CreatedAt:   now,
			CompletedAt: &now,
		}

		s.mu.Lock()
		job.TaskID = s.nextSyncTaskID(now)
		s.jobs[job.TaskID] = job
		snapshot := job.Clone()
		s.mu.Unlock()

		s.notifyListeners(snapshot)
		s.notifier.Ready(ctx, job.TaskID, job.FileName)

		s.logger.Info(ctx, "Export completed synchronously", "task_id", job.TaskID, "file", job.FileName)
		return job.TaskID, nil

	default:
		return "", ErrUnexpectedResponse
	}
}

// nextSyncTaskID synthesizes a registry-unique task ID for a
// synchronously completed job. Caller holds s.mu.
func (s *Service) nextSyncTaskID(now time.Time) string {
	base := fmt.Sprintf("sync-%d", now.UnixMilli())
	id := base
	for n := 1; ; n++ {
		if _, exists := s.jobs[id]; !exists {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// GetJob returns a snapshot of the job, or false when unknown.
func (s *Service) GetJob(taskID string) (*structs.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[taskID]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// Jobs returns snapshots of all tracked jobs, most recent first.
func (s *Service) Jobs() []*structs.Job {
	s.mu.Lock()
	jobs := make([]*structs.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].TaskID > jobs[j].TaskID
	})
	return jobs
}

// Subscribe registers a listener invoked on every job-state change. The
// returned function removes the listener.
func (s *Service) Subscribe(listener Listener) func() {
	id := gonanoid.Must(12)

	s.mu.Lock()
	s.listeners[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notifyListeners delivers a job snapshot to every listener. Each
// invocation is isolated: a panicking listener is logged and the rest
// still receive the update.
func (s *Service) notifyListeners(job *structs.Job) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error(context.Background(), "Export listener panicked",
						"task_id", job.TaskID, "panic", r)
				}
			}()
			l(job.Clone())
		}()
	}
}

// startPolling begins the status poll loop for a task. Re-invocation
// for an already-polled task replaces the prior poller instead of
// running two in parallel.
func (s *Service) startPolling(taskID string) {
	stop := make(chan struct{})

	s.mu.Lock()
	if prev, ok := s.pollers[taskID]; ok {
		delete(s.pollers, taskID)
		close(prev)
	}
	s.pollers[taskID] = stop
	s.mu.Unlock()

	go s.pollLoop(taskID, stop)
}

// StopPolling cancels any active poll timer for the task. No-op when
// the task has no poller.
func (s *Service) StopPolling(taskID string) {
	s.mu.Lock()
	stop, ok := s.pollers[taskID]
	if ok {
		delete(s.pollers, taskID)
	}
	s.mu.Unlock()

	if ok {
		close(stop)
	}
}

func (s *Service) stopAllPollers() {
	s.mu.Lock()
	stops := make([]chan struct{}, 0, len(s.pollers))
	for id, stop := range s.pollers {
		stops = append(stops, stop)
		delete(s.pollers, id)
	}
	s.mu.Unlock()

	for _, stop := range stops {
		close(stop)
	}
}

func (s *Service) pollLoop(taskID string, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.pollOnce(taskID) {
				s.StopPolling(taskID)
				return
			}
		}
	}
}

// pollOnce performs one status query and applies it to the local job.
// It returns false when polling must end: terminal transition, poll
// error, or the job having vanished from the registry.
func (s *Service) pollOnce(taskID string) bool {
	ctx := context.Background()

	s.mu.Lock()
	_, exists := s.jobs[taskID]
	s.mu.Unlock()
	if !exists {
		// Registry and poller disagree; retire the poller.
		s.logger.Warn(ctx, "Poller found no job record, retiring", "task_id", taskID)
		return false
	}

	res, err := s.client.ExportStatus(ctx, taskID)
	if err != nil {
		// Poll errors are never retried: the job is forced terminal so
		// subscribers reach a deterministic state instead of hanging.
		s.logger.Error(ctx, "Export status poll failed", "task_id", taskID, "error", err)
		s.failJob(ctx, taskID, err.Error())
		return false
	}

	switch {
	case res.Status == "SUCCESS" && res.Result != nil && res.Result.FilePath != "":
		s.succeedJob(ctx, taskID, res.Result.FilePath)
		return false

	case res.Status == "FAILURE":
		s.failJob(ctx, taskID, "export failed on the reporting backend")
		return false

	case res.Info != nil:
		s.progressJob(ctx, taskID, res.Info.Current, res.Info.Total)
		return true

	default:
		// Still pending, or a status this coordinator does not know.
		// Subscribers get a refresh either way; polling continues.
		if res.Status != "PENDING" {
			s.logger.Warn(ctx, "Unrecognized remote export status", "task_id", taskID, "status", res.Status)
		}
		if job, ok := s.GetJob(taskID); ok {
			s.notifyListeners(job)
		}
		return true
	}
}

func (s *Service) progressJob(ctx context.Context, taskID string, current, total int) {
	s.mu.Lock()
	job, ok := s.jobs[taskID]
	if !ok || job.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	job.Status = structs.JobStatusProgress
	job.Progress = &structs.Progress{Current: current, Total: total}
	snapshot := job.Clone()
	s.mu.Unlock()

	s.notifyListeners(snapshot)
}

func (s *Service) succeedJob(ctx context.Context, taskID, filePath string) {
	s.mu.Lock()
	job, ok := s.jobs[taskID]
	if !ok || job.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = structs.JobStatusSuccess
	job.Progress = nil
	job.FilePath = filePath
	job.FileName = structs.FileNameFromPath(filePath, job.Format)
	job.CompletedAt = &now
	snapshot := job.Clone()
	s.mu.Unlock()

	s.notifyListeners(snapshot)
	s.notifier.Ready(ctx, taskID, snapshot.FileName)
	s.logger.Info(ctx, "Export job succeeded", "task_id", taskID, "file", snapshot.FileName)
}

func (s *Service) failJob(ctx context.Context, taskID, reason string) {
	s.mu.Lock()
	job, ok := s.jobs[taskID]
	if !ok || job.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = structs.JobStatusFailure
	job.Progress = nil
	job.Error = reason
	job.CompletedAt = &now
	snapshot := job.Clone()
	s.mu.Unlock()

	s.notifyListeners(snapshot)
	s.notifier.Failed(ctx, taskID, reason)
	s.logger.Info(ctx, "Export job failed", "task_id", taskID, "reason", reason)
}

// CleanupOldJobs evicts terminal jobs older than the configured maximum
// age and cancels any stray poller for them. Active jobs are never
// evicted regardless of age.
func (s *Service) CleanupOldJobs() {
	cutoff := time.Now().Add(-s.cfg.MaxAge)

	s.mu.Lock()
	var evicted []string
	var strays []chan struct{}
	for taskID, job := range s.jobs {
		if job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, taskID)
			evicted = append(evicted, taskID)
			if stop, ok := s.pollers[taskID]; ok {
				delete(s.pollers, taskID)
				strays = append(strays, stop)
			}
		}
	}
	s.mu.Unlock()

	for _, stop := range strays {
		close(stop)
	}
	if len(evicted) > 0 {
		s.logger.Info(context.Background(), "Evicted stale export jobs", "count", len(evicted))
	}
}

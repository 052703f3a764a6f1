// Package supervisor implements the persisted job registry (C10):
// subprocess-per-job lifecycle management for Monitor, Schedule,
// AutoBooking, and KeepAlive jobs, crash-recovery reconciliation on
// startup, and atomic jobs-file persistence.
//
// Grounded on the teacher's internal/session/manager.go (mutex-guarded
// running-state supervision loop), internal/session/runner.go
// (ProcessRunner subprocess abstraction), internal/hub/hub.go (per-job
// circular log buffer with live subscribers), and
// original_source/sja_booking/job_manager.py (smallest-unused-int ID
// assignment, pid-liveness reconciliation on load, and
// _auto_recover_jobs's KeepAlive auto-restart).
package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/courtrace/agent/internal/auditstore"
	"github.com/courtrace/agent/internal/hub"
	"github.com/courtrace/agent/internal/model"
)

// stopGrace is how long Stop waits for a graceful SIGTERM exit before
// escalating to SIGKILL, per spec.md §4.10.
const stopGrace = 2 * time.Second

// Supervisor owns the jobs.json registry file and every running worker
// subprocess. A single Supervisor is safe for concurrent use.
type Supervisor struct {
	mu       sync.Mutex
	dataDir  string
	jobsPath string
	jobs     map[string]*model.Job
	handles  map[string]ProcessHandle

	runner   ProcessRunner
	hub      *hub.Hub
	audit    *auditstore.Store
	redactor *RedactionFilter
}

// New loads the jobs file at <dataDir>/jobs.json (an absent file is
// treated as an empty registry), then reconciles it: every Running job
// whose pid is dead transitions to Failed, and every KeepAlive job left
// Failed or Stopped is restarted.
func New(dataDir string, runner ProcessRunner, h *hub.Hub, audit *auditstore.Store, redactor *RedactionFilter) (*Supervisor, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("supervisor: create data dir: %w", err)
	}
	if redactor == nil {
		redactor = NewRedactionFilter()
	}
	s := &Supervisor{
		dataDir:  dataDir,
		jobsPath: filepath.Join(dataDir, "jobs.json"),
		jobs:     make(map[string]*model.Job),
		handles:  make(map[string]ProcessHandle),
		runner:   runner,
		hub:      h,
		audit:    audit,
		redactor: redactor,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.reconcile(context.Background())
	return s, nil
}

func (s *Supervisor) load() error {
	data, err := os.ReadFile(s.jobsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("supervisor: read jobs file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var doc map[string]*model.Job
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("supervisor: parse jobs file: %w", err)
	}
	s.jobs = doc
	return nil
}

// save atomically replaces the jobs file. Caller must hold s.mu.
func (s *Supervisor) save() error {
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("supervisor: marshal jobs: %w", err)
	}
	tmp, err := os.CreateTemp(s.dataDir, ".jobs-*.tmp")
	if err != nil {
		return fmt.Errorf("supervisor: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("supervisor: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("supervisor: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.jobsPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("supervisor: rename temp file: %w", err)
	}
	return nil
}

func (s *Supervisor) recordTransition(ctx context.Context, job *model.Job, from, to model.JobStatus, msg string) {
	if s.audit == nil || from == to {
		return
	}
	_ = s.audit.RecordJobTransition(ctx, job.JobID, job.JobType, from, to, msg)
}

func (s *Supervisor) reconcile(ctx context.Context) {
	_, _ = s.CleanupDeadJobs(ctx)

	s.mu.Lock()
	var toRestart []string
	for id, job := range s.jobs {
		if job.JobType == model.JobKeepAlive && (job.Status == model.JobFailed || job.Status == model.JobStopped) {
			toRestart = append(toRestart, id)
		}
	}
	s.mu.Unlock()

	for _, id := range toRestart {
		_ = s.StartJob(ctx, id)
	}
}

func smallestUnusedID(jobs map[string]*model.Job) string {
	used := make(map[int]struct{}, len(jobs))
	for id := range jobs {
		if n, err := strconv.Atoi(id); err == nil {
			used[n] = struct{}{}
		}
	}
	for i := 0; ; i++ {
		if _, ok := used[i]; !ok {
			return strconv.Itoa(i)
		}
	}
}

// CreateJob registers a new job with the smallest unused integer ID and
// optionally starts it immediately.
func (s *Supervisor) CreateJob(ctx context.Context, jobType model.JobType, name string, config map[string]any, autoStart bool) (model.Job, error) {
	s.mu.Lock()
	id := smallestUnusedID(s.jobs)
	job := &model.Job{
		JobID:     id,
		JobType:   jobType,
		Name:      name,
		Status:    model.JobPending,
		CreatedAt: time.Now(),
		Config:    config,
	}
	s.jobs[id] = job
	err := s.save()
	s.mu.Unlock()
	if err != nil {
		return model.Job{}, err
	}

	if autoStart {
		if err := s.StartJob(ctx, id); err != nil {
			return *job, err
		}
	}
	s.mu.Lock()
	out := *s.jobs[id]
	s.mu.Unlock()
	return out, nil
}

// StartJob spawns the worker subprocess for jobID, unless it is already
// Running.
func (s *Supervisor) StartJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: job %s not found", jobID)
	}
	if job.Status == model.JobRunning {
		s.mu.Unlock()
		return nil
	}
	from := job.Status
	s.mu.Unlock()

	stdout, handle, err := s.runner.Start(ctx, jobID, job.JobType)
	if err != nil {
		s.mu.Lock()
		job.Status = model.JobFailed
		job.ErrorMessage = err.Error()
		now := time.Now()
		job.StoppedAt = &now
		_ = s.save()
		s.mu.Unlock()
		s.recordTransition(ctx, job, from, model.JobFailed, err.Error())
		return fmt.Errorf("supervisor: start job %s: %w", jobID, err)
	}

	now := time.Now()
	s.mu.Lock()
	job.Status = model.JobRunning
	job.PID = handle.PID()
	job.StartedAt = &now
	job.StoppedAt = nil
	job.ErrorMessage = ""
	s.handles[jobID] = handle
	_ = s.save()
	s.mu.Unlock()
	s.recordTransition(ctx, job, from, model.JobRunning, "")

	logPath := filepath.Join(s.dataDir, jobID+".log")
	go s.stream(jobID, stdout, handle, logPath)
	return nil
}

// stream drains the worker's stdout to the job's log file and the hub,
// then finalizes the job's terminal status once the process exits.
func (s *Supervisor) stream(jobID string, stdout io.ReadCloser, handle ProcessHandle, logPath string) {
	logFile, ferr := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if ferr != nil {
		logFile = nil
	}
	if logFile != nil {
		defer logFile.Close()
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := s.redactor.Redact(scanner.Text())
		if logFile != nil {
			fmt.Fprintln(logFile, line)
		}
		if s.hub != nil {
			s.hub.Publish(jobID, line)
		}
	}

	waitErr := handle.Wait()

	ctx := context.Background()
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	delete(s.handles, jobID)
	if !ok {
		s.mu.Unlock()
		return
	}
	from := job.Status
	now := time.Now()
	if job.Status != model.JobStopped {
		if waitErr != nil {
			job.Status = model.JobFailed
			job.ErrorMessage = waitErr.Error()
		} else {
			job.Status = model.JobCompleted
		}
	}
	job.StoppedAt = &now
	_ = s.save()
	to := job.Status
	msg := job.ErrorMessage
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Close(jobID)
	}
	s.recordTransition(ctx, job, from, to, msg)
}

// StopJob signals jobID's worker to stop: SIGTERM, then up to
// stopGrace waiting for it to exit, then SIGKILL.
func (s *Supervisor) StopJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: job %s not found", jobID)
	}
	if job.Status != model.JobRunning {
		s.mu.Unlock()
		return nil
	}
	handle := s.handles[jobID]
	pid := job.PID
	from := job.Status
	job.Status = model.JobStopped
	now := time.Now()
	job.StoppedAt = &now
	_ = s.save()
	s.mu.Unlock()
	s.recordTransition(ctx, job, from, model.JobStopped, "")

	if handle == nil {
		return nil
	}
	_ = handle.Signal(syscall.SIGTERM)
	deadline := time.Now().Add(stopGrace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if processAlive(pid) {
		_ = handle.Signal(syscall.SIGKILL)
	}
	return nil
}

// DeleteJob stops jobID if Running, then removes its registry entry,
// log file, and hub buffer.
func (s *Supervisor) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: job %s not found", jobID)
	}
	if job.Status == model.JobRunning {
		if err := s.StopJob(ctx, jobID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	delete(s.jobs, jobID)
	err := s.save()
	s.mu.Unlock()

	_ = os.Remove(filepath.Join(s.dataDir, jobID+".log"))
	if s.hub != nil {
		s.hub.Remove(jobID)
	}
	return err
}

// DeleteAllJobs deletes every job matching jobType (all jobs when nil).
// force is a CLI-layer concern (skipping an interactive confirmation
// prompt) and has no effect at this layer; cmd/courtrace is responsible
// for prompting before calling this with force=false semantics.
func (s *Supervisor) DeleteAllJobs(ctx context.Context, jobType *model.JobType, _ bool) (int, error) {
	s.mu.Lock()
	var ids []string
	for id, job := range s.jobs {
		if jobType == nil || job.JobType == *jobType {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	count := 0
	for _, id := range ids {
		if err := s.DeleteJob(ctx, id); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ListJobs returns every job matching jobType (all jobs when nil),
// newest first.
func (s *Supervisor) ListJobs(jobType *model.JobType) []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if jobType != nil && job.JobType != *jobType {
			continue
		}
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// GetJob returns a snapshot of one job.
func (s *Supervisor) GetJob(jobID string) (model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return model.Job{}, false
	}
	return *job, true
}

// GetJobLogs returns the last n lines of jobID's log file (all lines
// when n <= 0).
func (s *Supervisor) GetJobLogs(jobID string, n int) ([]string, error) {
	path := filepath.Join(s.dataDir, jobID+".log")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("supervisor: read job log: %w", err)
	}
	trimmed := strings.TrimRight(string(data), "\n")
	if trimmed == "" {
		return nil, nil
	}
	lines := strings.Split(trimmed, "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// CleanupDeadJobs transitions every Running job whose recorded pid no
// longer exists to Failed, and returns how many were cleaned up.
func (s *Supervisor) CleanupDeadJobs(ctx context.Context) (int, error) {
	s.mu.Lock()
	var transitioned []*model.Job
	for _, job := range s.jobs {
		if job.Status == model.JobRunning && !processAlive(job.PID) {
			job.Status = model.JobFailed
			job.ErrorMessage = "进程意外终止"
			now := time.Now()
			job.StoppedAt = &now
			transitioned = append(transitioned, job)
		}
	}
	err := s.save()
	s.mu.Unlock()

	for _, job := range transitioned {
		s.recordTransition(ctx, job, model.JobRunning, model.JobFailed, job.ErrorMessage)
	}
	return len(transitioned), err
}

// Shutdown gracefully stops every currently Running job, for use during
// process shutdown.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	var ids []string
	for id, job := range s.jobs {
		if job.Status == model.JobRunning {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	for _, id := range ids {
		_ = s.StopJob(ctx, id)
	}
}

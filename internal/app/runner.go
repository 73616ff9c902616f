package app

import (
	"context"
	"log"
	"sync"
	"time"

	"leadatlas/api/internal/export"
	"leadatlas/api/internal/store"
)

type exportTask struct {
	group  store.LeadGroup
	format export.Format
	jobID  string
}

// exportRunner executes claimed export jobs on a small worker pool, keeping
// the HTTP trigger free to return processing immediately.
type exportRunner struct {
	service *Service
	tasks   chan exportTask
	wg      sync.WaitGroup
	once    sync.Once
}

func newExportRunner(service *Service, workers int) *exportRunner {
	r := &exportRunner{
		service: service,
		tasks:   make(chan exportTask, 64),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *exportRunner) enqueue(task exportTask) {
	r.tasks <- task
}

func (r *exportRunner) stop() {
	r.once.Do(func() { close(r.tasks) })
	r.wg.Wait()
}

func (r *exportRunner) worker() {
	defer r.wg.Done()
	for task := range r.tasks {
		r.service.runExport(task)
	}
}

// runExport executes one claimed job end to end and persists the outcome.
// It must always leave the group in completed or error, never wedged in
// processing.
func (s *Service) runExport(task exportTask) {
	timeout := s.cfg.ExportJobTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	url, err := s.generator.Generate(ctx, task.group, task.format)

	// The generation context may be expired by now; persist the outcome on
	// a fresh one.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer persistCancel()

	if err != nil {
		log.Printf("export job %s failed for group %s: %v", task.jobID, task.group.ID, err)
		message := err.Error()
		if err := s.store.SetGroupExportStatus(persistCtx, task.group.ID, store.ExportStatusError); err != nil {
			log.Printf("export job %s: persist error status: %v", task.jobID, err)
		}
		if err := s.store.FinishExportJob(persistCtx, task.jobID, store.ExportStatusError, &message); err != nil {
			log.Printf("export job %s: finish job: %v", task.jobID, err)
		}
		return
	}

	now := time.Now().UTC()
	if err := s.store.SetGroupExportResult(persistCtx, task.group.ID, string(task.format), url, now); err != nil {
		log.Printf("export job %s: persist result: %v", task.jobID, err)
		message := err.Error()
		_ = s.store.SetGroupExportStatus(persistCtx, task.group.ID, store.ExportStatusError)
		_ = s.store.FinishExportJob(persistCtx, task.jobID, store.ExportStatusError, &message)
		return
	}
	if err := s.store.FinishExportJob(persistCtx, task.jobID, store.ExportStatusCompleted, nil); err != nil {
		log.Printf("export job %s: finish job: %v", task.jobID, err)
	}
}

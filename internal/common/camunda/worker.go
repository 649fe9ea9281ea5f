package camunda

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"loan-lifecycle/internal/common/logger"
)

type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker on a shared client. Stop closes the worker
// only; the client belongs to the caller.
func NewWorker(
	client zbc.Client,
	taskType string,
	maxJobsActive int,
	timeout time.Duration,
	handler JobHandler,
	log logger.Logger,
) *Worker {
	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(maxJobsActive).
		Timeout(timeout).
		Name("loan-lifecycle").
		Open()

	return &Worker{
		worker:   jobWorker,
		logger:   log.With(map[string]interface{}{"taskType": taskType}),
		taskType: taskType,
	}
}

func (w *Worker) TaskType() string {
	return w.taskType
}

func (w *Worker) Stop(_ context.Context) {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}

// CompleteJob sends the output as job variables.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}, log logger.Logger) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		log.Error("failed to create complete job command", map[string]interface{}{"jobKey": job.Key, "error": err})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		log.Error("failed to send complete job command", map[string]interface{}{"jobKey": job.Key, "error": err})
		return
	}
	log.Info("job completed successfully", map[string]interface{}{"jobKey": job.Key})
}

// DecodeVariables unmarshals the job variables into v.
func DecodeVariables(job entities.Job, v interface{}) error {
	return json.Unmarshal([]byte(job.Variables), v)
}

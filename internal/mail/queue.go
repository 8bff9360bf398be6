package mail

import (
	"context"
	"encoding/json"

	"github.com/codegenie/apiserver/internal/apperr"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/mq"
	"github.com/google/uuid"
)

// Job is the queued form of an OTPMessage.
type Job struct {
	ID      string     `json:"id"`
	Message OTPMessage `json:"message"`
}

// QueueMailer hands messages to the worker through a message queue. A
// successful publish counts as sent.
type QueueMailer struct {
	queue   *mq.MQ
	channel string
}

func NewQueueMailer(queue *mq.MQ, channel string) *QueueMailer {
	return &QueueMailer{queue: queue, channel: channel}
}

func (q *QueueMailer) SendOTP(ctx context.Context, msg OTPMessage) error {
	job := Job{ID: uuid.NewString(), Message: msg}
	if _, err := q.queue.PublishJSON(ctx, q.channel, job.ID, job); err != nil {
		return apperr.Wrap(apperr.ErrUpstream, "enqueue otp mail", err)
	}
	return nil
}

// Worker drains the queue into a Mailer.
type Worker struct {
	queue   *mq.MQ
	channel string
	mailer  Mailer
	log     logging.Logger
}

func NewWorker(queue *mq.MQ, channel string, mailer Mailer, log logging.Logger) *Worker {
	return &Worker{queue: queue, channel: channel, mailer: mailer, log: log.With("component", "mail-worker")}
}

// Run blocks until ctx is done or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info(ctx, "mail worker started", "channel", w.channel)
	return w.queue.Subscribe(ctx, w.channel, w.handle)
}

func (w *Worker) handle(ctx context.Context, msg mq.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		// Undecodable jobs would be redelivered forever.
		w.log.Error(ctx, "dropping malformed mail job", "message_id", msg.ID, "error", err)
		return nil
	}

	if err := w.mailer.SendOTP(ctx, job.Message); err != nil {
		w.log.Warn(ctx, "otp mail delivery failed", "job_id", job.ID, "error", err)
		return err
	}
	w.log.Info(ctx, "otp mail sent", "job_id", job.ID)
	return nil
}

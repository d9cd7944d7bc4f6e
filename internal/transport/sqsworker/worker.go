// Package sqsworker consumes Execute requests from an SQS queue and streams
// grading events to the response queue named in each request.
package sqsworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/assessor"
	"github.com/programme-lv/assessor/internal/gatherer"
	"github.com/programme-lv/assessor/internal/gatherer/sqsgath"
	"golang.org/x/sync/errgroup"
)

// Client is the part of *sqs.Client the worker uses.
type Client interface {
	sqsgath.Sender
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Worker struct {
	client      Client
	queueUrl    string
	svc         *assessor.Service
	batch       int32
	waitSeconds int32
	logger      *slog.Logger
}

func New(client Client, queueUrl string, svc *assessor.Service, batch int, logger *slog.Logger) *Worker {
	if batch < 1 || batch > 10 {
		batch = 1
	}
	return &Worker{
		client:      client,
		queueUrl:    queueUrl,
		svc:         svc,
		batch:       int32(batch),
		waitSeconds: 5,
		logger:      logger.With("queue_url", queueUrl),
	}
}

// Run polls the queue until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("sqs worker started")
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := w.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("failed to receive messages", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll receives one batch and handles its messages concurrently.
func (w *Worker) Poll(ctx context.Context) error {
	out, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(w.queueUrl),
		MaxNumberOfMessages: w.batch,
		WaitTimeSeconds:     w.waitSeconds,
	})
	if err != nil {
		return err
	}
	var g errgroup.Group
	for _, msg := range out.Messages {
		g.Go(func() error {
			w.handle(ctx, msg)
			return nil
		})
	}
	return g.Wait()
}

// handle deletes the message once it is graded or found malformed. Other
// failures leave it on the queue to be redelivered.
func (w *Worker) handle(ctx context.Context, msg types.Message) {
	err := w.process(ctx, aws.ToString(msg.Body))
	if err != nil && !errors.Is(err, assessor.ErrBadRequest) {
		w.logger.Error("failed to process message", "message_id", aws.ToString(msg.MessageId), "error", err)
		return
	}
	if err != nil {
		w.logger.Warn("dropping malformed message", "message_id", aws.ToString(msg.MessageId), "error", err)
	}
	_, err = w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueUrl),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		w.logger.Error("failed to delete message", "message_id", aws.ToString(msg.MessageId), "error", err)
	}
}

func (w *Worker) process(ctx context.Context, body string) error {
	var req api.ExecReq
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return fmt.Errorf("%w: %v", assessor.ErrBadRequest, err)
	}
	if req.EvalUuid == "" {
		req.EvalUuid = uuid.NewString()
	}
	var extra []gatherer.Gatherer
	if req.ResSqsUrl != "" {
		extra = append(extra, sqsgath.New(ctx, w.client, req.EvalUuid, req.ResSqsUrl, w.logger))
	}
	resp, err := w.svc.Execute(ctx, req, extra...)
	if err != nil {
		return err
	}
	w.logger.Info("graded", "eval_uuid", resp.EvalUuid, "status", resp.Status, "ms", resp.ExecutionTimeMs)
	return nil
}

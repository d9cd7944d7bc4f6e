// Package sqsgath streams grading events to an SQS response queue.
package sqsgath

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/gatherer"
	"github.com/programme-lv/assessor/internal/runner"
)

// Sender is the part of *sqs.Client the gatherer uses.
type Sender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type sqsResQueueGatherer struct {
	ctx      context.Context
	client   Sender
	queueUrl string
	evalUuid string
	logger   *slog.Logger
	tally    gatherer.Tally
}

// New returns a gatherer sending every event to queueUrl. Sends use ctx so
// a shutting down worker stops publishing.
func New(ctx context.Context, client Sender, evalUuid, queueUrl string, logger *slog.Logger) *sqsResQueueGatherer {
	return &sqsResQueueGatherer{
		ctx:      ctx,
		client:   client,
		queueUrl: queueUrl,
		evalUuid: evalUuid,
		logger:   logger.With("eval_uuid", evalUuid),
	}
}

func (s *sqsResQueueGatherer) send(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal message", "error", err)
		return
	}

	_, err = s.client.SendMessage(s.ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueUrl),
		MessageBody: aws.String(string(b)),
	})
	if err != nil {
		s.logger.Error("failed to send message", "error", err, "queue_url", s.queueUrl)
	}
}

func (s *sqsResQueueGatherer) StartJob(systemInfo string) {
	s.send(api.NewStartJob(s.evalUuid, systemInfo))
}

func (s *sqsResQueueGatherer) StartCompile() {
	s.send(api.NewStartCompile(s.evalUuid))
}

func (s *sqsResQueueGatherer) FinishCompile(report *runner.CompileReport) {
	s.send(api.NewFinishCompile(s.evalUuid, gatherer.CompileData(report)))
}

func (s *sqsResQueueGatherer) ReachTest(order int, tc domain.TestCase) {
	s.send(api.NewReachTest(s.evalUuid, order, tc.ID,
		gatherer.TrimmedPtr(tc.Input), gatherer.TrimmedPtr(tc.ExpectedOutput)))
}

func (s *sqsResQueueGatherer) FinishTest(o domain.TestCaseOutcome) {
	s.tally.Add(o)
	s.send(gatherer.FinishTestMsg(s.evalUuid, o))
}

func (s *sqsResQueueGatherer) CompileError(msg string) {
	s.send(s.tally.FinishJobMsg(s.evalUuid, &msg, true, false))
}

func (s *sqsResQueueGatherer) InternalError(msg string) {
	s.send(s.tally.FinishJobMsg(s.evalUuid, &msg, false, true))
}

func (s *sqsResQueueGatherer) FinishNoError() {
	s.send(s.tally.FinishJobMsg(s.evalUuid, nil, false, false))
}

// Package natsapi serves the assessor operations as NATS request/reply
// subjects.
package natsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/activity"
	"github.com/programme-lv/assessor/internal/assessor"
	"github.com/programme-lv/assessor/internal/gatherer/natsgath"
)

const QueueGroup = "assessor"

// Subject suffixes under the configured prefix.
const (
	SubjExec           = "exec"
	SubjExecStream     = "exec.stream"
	SubjStart          = "attempt.start"
	SubjStatus         = "attempt.status"
	SubjSubmitQuestion = "attempt.question"
	SubjSubmit         = "attempt.submit"
	SubjEnd            = "attempt.end"
	SubjViolation      = "attempt.violation"
	SubjAbandon        = "attempt.abandon"
	SubjActivity       = "attempt.activity"
)

type attemptReq struct {
	AttemptID string `json:"attemptId"`
}

type questionReq struct {
	AttemptID string `json:"attemptId"`
	api.QuestionSubmission
}

type submitReq struct {
	AttemptID string `json:"attemptId"`
	api.SubmitReq
}

type violationReq struct {
	AttemptID string `json:"attemptId"`
	api.ViolationReq
}

type abandonReq struct {
	AttemptID string `json:"attemptId"`
	api.AbandonReq
}

type activityReq struct {
	AttemptID string `json:"attemptId"`
	api.ActivityReq
}

type Server struct {
	nc     *nats.Conn
	svc    *assessor.Service
	prefix string
	logger *slog.Logger
}

func NewServer(nc *nats.Conn, svc *assessor.Service, prefix string, logger *slog.Logger) *Server {
	return &Server{nc: nc, svc: svc, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

func (s *Server) subject(suffix string) string {
	return s.prefix + "." + suffix
}

// Subscribe registers every subject in the queue group. Requests run on
// their own goroutine under ctx.
func (s *Server) Subscribe(ctx context.Context) ([]*nats.Subscription, error) {
	suffixes := []string{
		SubjExec, SubjExecStream, SubjStart, SubjStatus, SubjSubmitQuestion,
		SubjSubmit, SubjEnd, SubjViolation, SubjAbandon, SubjActivity,
	}
	var subs []*nats.Subscription
	for _, suffix := range suffixes {
		sub, err := s.nc.QueueSubscribe(s.subject(suffix), QueueGroup, func(msg *nats.Msg) {
			go s.serve(ctx, suffix, msg)
		})
		if err != nil {
			for _, sub := range subs {
				_ = sub.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe to %s: %w", s.subject(suffix), err)
		}
		subs = append(subs, sub)
	}
	s.logger.Info("nats api subscribed", "prefix", s.prefix, "queue", QueueGroup)
	return subs, nil
}

func (s *Server) serve(ctx context.Context, suffix string, msg *nats.Msg) {
	if suffix == SubjExecStream {
		s.serveStream(ctx, msg)
		return
	}
	resp, err := s.dispatch(ctx, suffix, msg.Data)
	if err != nil {
		resp = assessor.ErrorResponse(err)
		if assessor.ErrorCode(err) == assessor.CodeInternal {
			s.logger.Error("nats request failed", "subject", msg.Subject, "error", err)
		}
	}
	s.respond(msg, resp)
}

// serveStream grades an ExecReq while streaming events to the reply
// subject. The stream ends with a job_finish message.
func (s *Server) serveStream(ctx context.Context, msg *nats.Msg) {
	var req api.ExecReq
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, assessor.ErrorResponse(fmt.Errorf("%w: %v", assessor.ErrBadRequest, err)))
		return
	}
	if req.EvalUuid == "" {
		req.EvalUuid = uuid.NewString()
	}
	if msg.Reply == "" {
		s.logger.Warn("stream request without reply subject", "eval_uuid", req.EvalUuid)
		return
	}
	gath := natsgath.New(s.nc, req.EvalUuid, msg.Reply, s.logger)
	if _, err := s.svc.Execute(ctx, req, gath); err != nil {
		s.respond(msg, assessor.ErrorResponse(err))
	}
}

func (s *Server) respond(msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal reply", "error", err)
		return
	}
	if err := msg.Respond(b); err != nil {
		s.logger.Error("failed to respond", "subject", msg.Subject, "error", err)
	}
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", assessor.ErrBadRequest, err)
	}
	return nil
}

// dispatch runs the operation behind suffix on a JSON request.
func (s *Server) dispatch(ctx context.Context, suffix string, data []byte) (any, error) {
	switch suffix {
	case SubjExec:
		var req api.ExecReq
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return s.svc.Execute(ctx, req)
	case SubjStart:
		var req api.StartReq
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return s.svc.Start(ctx, req.TestID, req.UserID)
	case SubjStatus:
		var req api.StartReq
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return s.svc.Status(ctx, req.TestID, req.UserID)
	case SubjSubmitQuestion:
		var req questionReq
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return s.svc.SubmitQuestion(ctx, req.AttemptID, req.QuestionSubmission)
	case SubjSubmit:
		var req submitReq
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return s.svc.Submit(ctx, req.AttemptID, req.Questions)
	case SubjEnd:
		var req attemptReq
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return s.svc.End(ctx, req.AttemptID)
	case SubjViolation:
		var req violationReq
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return s.svc.RecordViolation(ctx, req.AttemptID, req.Kind)
	case SubjAbandon:
		var req abandonReq
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return s.svc.Abandon(ctx, req.AttemptID, req.Reason)
	case SubjActivity:
		var req activityReq
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		kind, err := activity.ParseKind(req.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", assessor.ErrBadRequest, err)
		}
		if err := s.svc.RecordActivity(ctx, req.AttemptID, kind, req.Language); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}
	return nil, fmt.Errorf("%w: unknown subject %q", assessor.ErrBadRequest, suffix)
}

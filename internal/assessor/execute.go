package assessor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/activity"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/gatherer"
	"github.com/programme-lv/assessor/internal/gatherer/respbuilder"
	"github.com/programme-lv/assessor/internal/runner"
)

func (s *Service) validateCode(language, code string) error {
	if language == "" {
		return fmt.Errorf("%w: language is required", ErrBadRequest)
	}
	if _, err := s.harness.Catalog().Get(language); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if len(code) > s.cfg.MaxCodeBytes {
		return fmt.Errorf("%w: code is %d bytes, limit is %d", ErrBadRequest, len(code), s.cfg.MaxCodeBytes)
	}
	return nil
}

// Execute runs code against caller-supplied cases. Extra gatherers receive
// the event stream while the response is being built.
func (s *Service) Execute(ctx context.Context, req api.ExecReq, extra ...gatherer.Gatherer) (api.ExecResponse, error) {
	if err := s.validateCode(req.Language, req.Code); err != nil {
		return api.ExecResponse{}, err
	}
	if len(req.Cases) > s.cfg.MaxCases {
		return api.ExecResponse{}, fmt.Errorf("%w: %d test cases, limit is %d", ErrBadRequest, len(req.Cases), s.cfg.MaxCases)
	}

	evalUuid := req.EvalUuid
	if evalUuid == "" {
		evalUuid = uuid.NewString()
	}
	spec := domain.SubmissionSpec{
		LanguageID:     req.Language,
		Code:           req.Code,
		TestCases:      make([]domain.TestCase, len(req.Cases)),
		TimeLimit:      time.Duration(req.TimeLimitMs) * time.Millisecond,
		MemoryLimitKiB: req.MemoryLimitKiB,
	}
	for i, c := range req.Cases {
		id := c.ID
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		spec.TestCases[i] = domain.TestCase{ID: id, Input: c.Input, ExpectedOutput: c.ExpectedOutput}
	}

	if req.AttemptID != "" {
		s.activity.Record(req.AttemptID, activity.Run, req.Language)
	}

	rb := respbuilder.New(evalUuid)
	gath := gatherer.Multi(append([]gatherer.Gatherer{rb}, extra...)...)

	logger := s.logger.With("eval_uuid", evalUuid)
	logger.Info("executing", "language", req.Language, "cases", len(req.Cases))
	if _, err := s.harness.Grade(ctx, spec, gath); err != nil {
		return api.ExecResponse{}, err
	}

	resp := rb.Response()
	logger.Info("executed", "status", resp.Status, "ms", resp.ExecutionTimeMs)
	return resp, nil
}

// Languages lists the languages submissions may use.
func (s *Service) Languages() []runner.Language {
	return s.harness.Catalog().All()
}

// StarterCode returns the starting code of a problem in one language.
func (s *Service) StarterCode(ctx context.Context, problemID, languageID string) (string, error) {
	lang, err := s.harness.Catalog().Get(languageID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	p, err := s.content.Problem(ctx, problemID)
	if err != nil {
		return "", err
	}
	if code, ok := p.StarterFor(languageID); ok {
		return code, nil
	}
	return lang.HelloWorld, nil
}

// Package content loads problems and tests. Content is read-only to the
// assessor; authoring happens elsewhere.
package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/assessor/internal/domain"
)

type Store interface {
	Problem(ctx context.Context, id string) (*domain.Problem, error)
	Test(ctx context.Context, id string) (*domain.Test, error)
}

// DecodeProblem parses a TOML problem. Test cases without an ID are
// numbered from 1 in file order; duplicate IDs are rejected.
func DecodeProblem(id string, data []byte) (*domain.Problem, error) {
	var p domain.Problem
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse problem %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.ID != id {
		return nil, fmt.Errorf("problem file %s declares id %q", id, p.ID)
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	for i := range p.TestCases {
		tc := &p.TestCases[i]
		if tc.ID == "" {
			tc.ID = strconv.Itoa(i + 1)
		}
		if !seen.Add(tc.ID) {
			return nil, fmt.Errorf("problem %s: duplicate test case id %q", id, tc.ID)
		}
		tc.ProblemID = p.ID
	}
	return &p, nil
}

// DecodeTest parses a TOML test and checks its invariants.
func DecodeTest(id string, data []byte) (*domain.Test, error) {
	var t domain.Test
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse test %s: %w", id, err)
	}
	if t.ID == "" {
		t.ID = id
	}
	if t.Kind == "" {
		t.Kind = domain.KindAssessment
	}
	if t.Mode == "" {
		t.Mode = domain.ModeStandard
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	for _, q := range t.Questions {
		if !seen.Add(q.ProblemID) {
			return nil, fmt.Errorf("%w: test %s lists problem %s twice", domain.ErrInvalidTest, id, q.ProblemID)
		}
	}
	return &t, nil
}

func decompress(r io.Reader) ([]byte, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer d.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, d); err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return buf.Bytes(), nil
}

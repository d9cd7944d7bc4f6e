package natsgath

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPub struct {
	subjects []string
	msgs     [][]byte
}

func (r *recordingPub) Publish(subj string, data []byte) error {
	r.subjects = append(r.subjects, subj)
	r.msgs = append(r.msgs, data)
	return nil
}

func TestNatsGatherer_StreamsTrimmedEvents(t *testing.T) {
	pub := &recordingPub{}
	g := &natsGatherer{
		pub:      pub,
		inbox:    "_INBOX.x",
		evalUuid: "e1",
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	long := strings.Repeat("x", 200)
	g.StartJob("linux")
	g.ReachTest(0, domain.TestCase{ID: "t1", Input: long})
	g.FinishTest(domain.TestCaseOutcome{Order: 0, TestCaseID: "t1", Passed: true, ActualOutput: long})
	g.FinishNoError()

	require.Len(t, pub.msgs, 4)
	for _, s := range pub.subjects {
		assert.Equal(t, "_INBOX.x", s)
	}

	var reach api.ReachTest
	require.NoError(t, json.Unmarshal(pub.msgs[1], &reach))
	assert.Equal(t, api.ReachTestMsg, reach.MsgType)
	require.NotNil(t, reach.Input)
	assert.Equal(t, strings.Repeat("x", api.MaxRuntimeDataWidth)+"[...]", *reach.Input)
	assert.Nil(t, reach.Answer)

	var fin api.FinishJob
	require.NoError(t, json.Unmarshal(pub.msgs[3], &fin))
	assert.Equal(t, api.FinishJobMsg, fin.MsgType)
	assert.Equal(t, 1, fin.PassedCases)
	assert.Equal(t, 1, fin.TotalCases)
	assert.False(t, fin.CompileError)
}

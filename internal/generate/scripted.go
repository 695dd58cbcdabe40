package generate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/phase"
)

type scriptedReply struct {
	out mission.StageOutput
	err error
}

// Scripted is a deterministic invoker. Queued replies for a stage are
// returned in order; once a stage's queue is empty a fallback output is
// derived from the request.
//
// Thread-safety: safe for concurrent use.
type Scripted struct {
	mu     sync.Mutex
	queued map[string][]scriptedReply
	calls  map[string]int
}

// NewScripted creates an empty scripted invoker.
func NewScripted() *Scripted {
	return &Scripted{
		queued: map[string][]scriptedReply{},
		calls:  map[string]int{},
	}
}

// Queue appends an output for stage.
func (s *Scripted) Queue(stage string, out mission.StageOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[stage] = append(s.queued[stage], scriptedReply{out: out})
}

// Fail appends a failure for stage.
func (s *Scripted) Fail(stage string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[stage] = append(s.queued[stage], scriptedReply{err: err})
}

// Calls returns how many times stage was invoked.
func (s *Scripted) Calls(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[stage]
}

// Invoke implements phase.Invoker.
func (s *Scripted) Invoke(ctx context.Context, req phase.StageRequest) (mission.StageOutput, error) {
	if err := ctx.Err(); err != nil {
		return mission.StageOutput{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Stage.ID]++
	if q := s.queued[req.Stage.ID]; len(q) > 0 {
		s.queued[req.Stage.ID] = q[1:]
		return q[0].out, q[0].err
	}
	return Fallback(req), nil
}

// Fallback derives a valid output for req from its answers alone.
func Fallback(req phase.StageRequest) mission.StageOutput {
	subject := summary(req.Answers)
	switch req.Stage.Kind {
	case mission.StageText:
		return mission.StageOutput{Text: fmt.Sprintf("%s for %s", req.Stage.Title, subject)}
	case mission.StageFields:
		fields := make(map[string]string, len(req.Stage.Produces))
		for _, name := range req.Stage.Produces {
			fields[name] = fmt.Sprintf("%s %s", subject, name)
		}
		return mission.StageOutput{Fields: fields}
	case mission.StageImage:
		return mission.StageOutput{ImageRef: "scripted://" + req.Mission.Key() + "/" + req.Stage.ID}
	case mission.StageList:
		return mission.StageOutput{Options: []mission.Option{
			{Label: "Prepare " + subject},
			{Label: "Announce " + subject},
			{Label: "Review " + subject},
		}}
	}
	opts := make([]mission.Option, 3)
	for i := range opts {
		opts[i] = mission.Option{
			Label:  fmt.Sprintf("%s %d", req.Stage.Title, i+1),
			Values: []string{fmt.Sprintf("%02X%02X%02X", 40*(i+1), 60*(i+1), 80*(i+1))},
		}
	}
	return mission.StageOutput{Options: opts}
}

func summary(answers map[string]string) string {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, answers[k])
	}
	if len(parts) == 0 {
		return "your brand"
	}
	return strings.Join(parts, " / ")
}

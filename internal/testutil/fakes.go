package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/analyzer"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/codehost"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/notify"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

// Items is an in-memory workitem.Store.
//
// Listing errors are consumed in order per stage, so a test can make the
// first call fail and the retry succeed.
type Items struct {
	mu sync.Mutex

	stages   map[string][]workitem.Candidate
	records  map[string]workitem.Record
	listErrs map[string][]error

	// ShowErr, CommentErr, and UpdateErr fail every call when set.
	ShowErr    error
	CommentErr error
	UpdateErr  error

	listCalls map[string]int
	showCalls map[string]int
	comments  map[string][]string
	updates   map[string][]workitem.StatusUpdate
}

// NewItems creates an empty store.
func NewItems() *Items {
	return &Items{
		stages:    make(map[string][]workitem.Candidate),
		records:   make(map[string]workitem.Record),
		listErrs:  make(map[string][]error),
		listCalls: make(map[string]int),
		showCalls: make(map[string]int),
		comments:  make(map[string][]string),
		updates:   make(map[string][]workitem.StatusUpdate),
	}
}

// AddToStage appends candidates to a stage listing. Each candidate also gets
// a bare record unless one already exists.
func (s *Items) AddToStage(stage string, items ...workitem.Candidate) *Items {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range items {
		s.stages[stage] = append(s.stages[stage], c)
		if _, ok := s.records[c.ID]; !ok {
			s.records[c.ID] = workitem.Record{Candidate: c}
		}
	}
	return s
}

// SetRecord replaces the record returned by Show.
func (s *Items) SetRecord(rec workitem.Record) *Items {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return s
}

// FailList queues errors returned by successive listings of stage.
func (s *Items) FailList(stage string, errs ...error) *Items {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErrs[stage] = append(s.listErrs[stage], errs...)
	return s
}

func (s *Items) ListByStage(_ context.Context, stage string) ([]workitem.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls[stage]++
	if errs := s.listErrs[stage]; len(errs) > 0 {
		s.listErrs[stage] = errs[1:]
		return nil, errs[0]
	}
	out := make([]workitem.Candidate, len(s.stages[stage]))
	copy(out, s.stages[stage])
	return out, nil
}

func (s *Items) Show(_ context.Context, id string) (workitem.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showCalls[id]++
	if s.ShowErr != nil {
		return workitem.Record{}, s.ShowErr
	}
	rec, ok := s.records[id]
	if !ok {
		return workitem.Record{}, fmt.Errorf("%w: %s", workitem.ErrNotFound, id)
	}
	return rec, nil
}

func (s *Items) AddComment(_ context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CommentErr != nil {
		return s.CommentErr
	}
	s.comments[id] = append(s.comments[id], text)
	return nil
}

func (s *Items) UpdateStatus(_ context.Context, id string, update workitem.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.updates[id] = append(s.updates[id], update)
	return nil
}

// ListCalls returns how many times stage was listed.
func (s *Items) ListCalls(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls[stage]
}

// ShowCalls returns how many times id was shown.
func (s *Items) ShowCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showCalls[id]
}

// Comments returns the comments posted to id.
func (s *Items) Comments(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.comments[id]...)
}

// CommentCount returns the total number of comments posted.
func (s *Items) CommentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.comments {
		n += len(c)
	}
	return n
}

// Updates returns the status updates applied to id.
func (s *Items) Updates(id string) []workitem.StatusUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]workitem.StatusUpdate(nil), s.updates[id]...)
}

// Analyzer returns canned transcripts and records which ids were audited.
type Analyzer struct {
	mu sync.Mutex

	// Transcripts maps item id to its transcript; Default covers the rest.
	Transcripts map[string]analyzer.Transcript
	Default     analyzer.Transcript

	calls []string
}

// NewAnalyzer returns an analyzer whose every invocation yields text with
// exit code 0.
func NewAnalyzer(text string) *Analyzer {
	return &Analyzer{
		Transcripts: make(map[string]analyzer.Transcript),
		Default:     analyzer.Transcript{Text: text},
	}
}

func (a *Analyzer) Invoke(_ context.Context, id string) analyzer.Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, id)
	if tr, ok := a.Transcripts[id]; ok {
		return tr
	}
	return a.Default
}

// Calls returns the ids invoked, in order.
func (a *Analyzer) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// CodeHost answers IsMerged from a map keyed by PRRef.String().
type CodeHost struct {
	mu sync.Mutex

	Merged map[string]bool
	Err    error

	calls []codehost.PRRef
}

// NewCodeHost reports every listed ref ("owner/repo#N") as merged.
func NewCodeHost(merged ...string) *CodeHost {
	h := &CodeHost{Merged: make(map[string]bool)}
	for _, ref := range merged {
		h.Merged[ref] = true
	}
	return h
}

func (h *CodeHost) IsMerged(_ context.Context, ref codehost.PRRef) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, ref)
	if h.Err != nil {
		return false, h.Err
	}
	return h.Merged[ref.String()], nil
}

// Calls returns the refs queried, in order.
func (h *CodeHost) Calls() []codehost.PRRef {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]codehost.PRRef(nil), h.calls...)
}

// Cooldowns is an in-memory cooldown.StateStore.
type Cooldowns struct {
	mu   sync.Mutex
	jobs map[string]cooldown.Records

	GetErr error
	PutErr error

	puts int
}

// NewCooldowns creates an empty store.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{jobs: make(map[string]cooldown.Records)}
}

// Seed sets one record directly.
func (c *Cooldowns) Seed(jobID, id string, at time.Time) *Cooldowns {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jobs[jobID] == nil {
		c.jobs[jobID] = cooldown.Records{}
	}
	c.jobs[jobID][id] = at.UTC()
	return c
}

func (c *Cooldowns) Get(_ context.Context, jobID string) (cooldown.Records, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	return c.jobs[jobID].Clone(), nil
}

func (c *Cooldowns) Put(_ context.Context, jobID string, records cooldown.Records) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PutErr != nil {
		return c.PutErr
	}
	c.jobs[jobID] = records.Clone()
	c.puts++
	return nil
}

// Last returns the stored time for id under jobID.
func (c *Cooldowns) Last(jobID, id string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobs[jobID].Last(id)
}

// Puts returns the number of successful writes.
func (c *Cooldowns) Puts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

// Artifacts is an in-memory artifact.Store.
type Artifacts struct {
	mu      sync.Mutex
	objects map[string][]byte

	Err error
}

// NewArtifacts creates an empty store.
func NewArtifacts() *Artifacts {
	return &Artifacts{objects: make(map[string][]byte)}
}

func (a *Artifacts) Store(_ context.Context, itemID string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return "", a.Err
	}
	ref := fmt.Sprintf("mem://%s/%d", itemID, len(a.objects)+1)
	a.objects[ref] = append([]byte(nil), data...)
	return ref, nil
}

// Object returns the bytes stored under ref.
func (a *Artifacts) Object(ref string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.objects[ref]
	return b, ok
}

// Notifier records every message it is sent.
type Notifier struct {
	mu       sync.Mutex
	messages []notify.Message

	Err error
}

func (n *Notifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.Err
}

// Messages returns the messages sent, in order.
func (n *Notifier) Messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.messages...)
}

// Titles returns the titles of the messages sent, in order.
func (n *Notifier) Titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Title)
	}
	return out
}

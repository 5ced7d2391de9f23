package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/engine"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

// Scenario defines an audit scenario: a tracker snapshot, the transcripts
// the audit agent will return, and a sequence of cycles with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Job configures the engine under test.
	Job JobSpec `yaml:"job"`

	// Items are loaded into the fake tracker before the first cycle.
	Items []ItemSpec `yaml:"items,omitempty"`

	// Merged lists PR references ("owner/repo#N") the code host reports as
	// merged.
	Merged []string `yaml:"merged,omitempty"`

	// Transcripts maps item id to the audit output for that item.
	Transcripts map[string]TranscriptSpec `yaml:"transcripts,omitempty"`

	// DefaultTranscript covers items without an entry in Transcripts.
	DefaultTranscript TranscriptSpec `yaml:"default_transcript,omitempty"`

	// Flow is the ordered list of cycles to run.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace, tracker, and ledger after the flow.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, comment_contains, status_updated, notified.
	Assertions []Assertion `yaml:"assertions"`
}

// JobSpec mirrors engine.Job with YAML-friendly fields.
type JobSpec struct {
	ID               string                   `yaml:"id,omitempty"`
	Stages           []string                 `yaml:"stages,omitempty"`
	Cooldown         *time.Duration           `yaml:"cooldown,omitempty"`
	CooldownByStatus map[string]time.Duration `yaml:"cooldown_by_status,omitempty"`
	VerifyPR         bool                     `yaml:"verify_pr,omitempty"`
	CommentThreshold int                      `yaml:"comment_threshold,omitempty"`
	CompleteStatus   string                   `yaml:"complete_status,omitempty"`
	CompleteStage    string                   `yaml:"complete_stage,omitempty"`
}

// ItemSpec is one work item in the fake tracker. Relative times are
// measured back from the scenario start.
type ItemSpec struct {
	ID     string `yaml:"id"`
	Title  string `yaml:"title,omitempty"`
	Status string `yaml:"status,omitempty"`

	// Stage defaults to the job's first stage.
	Stage string `yaml:"stage,omitempty"`

	// UpdatedAgo sets the tracker's updated_at. Nil leaves it unset.
	UpdatedAgo *time.Duration `yaml:"updated_ago,omitempty"`

	// LastAuditAgo seeds the cooldown store. Nil means never audited.
	LastAuditAgo *time.Duration `yaml:"last_audit_ago,omitempty"`

	Children []ChildSpec   `yaml:"children,omitempty"`
	Comments []CommentSpec `yaml:"comments,omitempty"`
}

// ChildSpec is a sub-item of a work item.
type ChildSpec struct {
	ID     string `yaml:"id"`
	Status string `yaml:"status"`
}

// CommentSpec is an existing comment on a work item.
type CommentSpec struct {
	Body string        `yaml:"body"`
	Ago  time.Duration `yaml:"ago"`
}

// TranscriptSpec is the canned output of one audit invocation.
type TranscriptSpec struct {
	Text     string `yaml:"text,omitempty"`
	ExitCode int    `yaml:"exit_code,omitempty"`
	TimedOut bool   `yaml:"timed_out,omitempty"`
}

// FlowStep is one audit cycle.
type FlowStep struct {
	// Advance moves the clock forward before the cycle runs.
	Advance time.Duration `yaml:"advance,omitempty"`

	// DryRun selects without invoking the audit.
	DryRun bool `yaml:"dry_run,omitempty"`

	// Expect validates the cycle result. Nil skips validation.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected result of a cycle.
type ExpectClause struct {
	// Outcome is the expected engine.Outcome (e.g., "audited", "no_candidates").
	Outcome string `yaml:"outcome"`

	// Item is the expected selected item id. Empty skips the check.
	Item string `yaml:"item,omitempty"`

	// Completed, when set, must match the cycle's completion flag.
	Completed *bool `yaml:"completed,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a cycle matches Where
	// - "trace_order": Items were audited in this order
	// - "trace_count": exactly Count cycles match Where
	// - "final_state": a ledger table row matches Where and Expect
	// - "comment_contains": a comment posted to Item contains Text
	// - "status_updated": Item received Count status updates
	// - "notified": a notification titled Text was sent
	Type string `yaml:"type"`

	// Where filters trace events or table rows. All fields must match.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Table is the ledger table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Item is the work item id (used by comment_contains, status_updated).
	Item string `yaml:"item,omitempty"`

	// Text is the expected substring or title.
	Text string `yaml:"text,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`

	// Items is the expected audit order (used by trace_order).
	Items []string `yaml:"items,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains   = "trace_contains"
	AssertTraceOrder      = "trace_order"
	AssertTraceCount      = "trace_count"
	AssertFinalState      = "final_state"
	AssertCommentContains = "comment_contains"
	AssertStatusUpdated   = "status_updated"
	AssertNotified        = "notified"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// EngineJob converts j into an engine.Job, filling defaults.
func (j JobSpec) EngineJob() engine.Job {
	job := engine.Job{
		ID:               j.ID,
		Stages:           j.Stages,
		Cooldown:         engine.DefaultCooldown,
		CooldownByStatus: j.CooldownByStatus,
		VerifyPR:         j.VerifyPR,
		CommentThreshold: j.CommentThreshold,
		Completion: workitem.StatusUpdate{
			Status: j.CompleteStatus,
			Stage:  j.CompleteStage,
		},
	}
	if job.ID == "" {
		job.ID = "scenario"
	}
	if len(job.Stages) == 0 {
		job.Stages = []string{"in_review"}
	}
	if j.Cooldown != nil {
		job.Cooldown = *j.Cooldown
	}
	if job.Completion.Status == "" {
		job.Completion.Status = "completed"
	}
	return job
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Items))
	for i, item := range s.Items {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("items[%d]: id is required", i)
		}
		if seen[item.ID] {
			return fmt.Errorf("items[%d]: duplicate id %q", i, item.ID)
		}
		seen[item.ID] = true
		for j, c := range item.Children {
			if c.ID == "" {
				return fmt.Errorf("items[%d].children[%d]: id is required", i, j)
			}
		}
	}

	for id := range s.Transcripts {
		if !seen[id] {
			return fmt.Errorf("transcripts: unknown item %q", id)
		}
	}

	for i, step := range s.Flow {
		if step.Advance < 0 {
			return fmt.Errorf("flow[%d]: advance must be non-negative", i)
		}
		if step.Expect != nil && step.Expect.Outcome == "" {
			return fmt.Errorf("flow[%d].expect: outcome is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Items) == 0 {
			return fmt.Errorf("assertions[%d]: items list is required for trace_order", index)
		}
	case AssertTraceCount, AssertStatusUpdated:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
		if a.Type == AssertStatusUpdated && a.Item == "" {
			return fmt.Errorf("assertions[%d]: item is required for status_updated", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertCommentContains:
		if a.Item == "" || a.Text == "" {
			return fmt.Errorf("assertions[%d]: item and text are required for comment_contains", index)
		}
	case AssertNotified:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for notified", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

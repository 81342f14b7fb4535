package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/murmur/internal/engine"
	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/testutil"
)

// Scenario defines one reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Device is the device id of the client under test. Defaults to "d1".
	Device string `yaml:"device,omitempty"`

	// Mode is the initial ranking mode. Defaults to recent.
	Mode string `yaml:"mode,omitempty"`

	// Windows overrides the ranking windows.
	Windows *WindowSpec `yaml:"windows,omitempty"`

	// Seed is the backend state before the first step. Seeding publishes
	// no change notifications.
	Seed Seed `yaml:"seed"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// WindowSpec sets the ranking windows. Zero fields keep the defaults.
type WindowSpec struct {
	Recent        int `yaml:"recent,omitempty"`
	HotCandidates int `yaml:"hot_candidates,omitempty"`
	HotDisplay    int `yaml:"hot_display,omitempty"`
}

// Seed is the initial backend state.
type Seed struct {
	Cities   []SeedCity    `yaml:"cities"`
	Posts    []SeedPost    `yaml:"posts,omitempty"`
	Comments []SeedComment `yaml:"comments,omitempty"`
	Votes    []SeedVote    `yaml:"votes,omitempty"`
}

// SeedCity is a city row. Cities get ids 1, 2, ... in order.
type SeedCity struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
}

// SeedPost is a post row. City defaults to the first seeded city and At
// is seconds after testutil.Epoch.
type SeedPost struct {
	ID   string `yaml:"id"`
	City string `yaml:"city,omitempty"`
	Body string `yaml:"body"`
	At   int    `yaml:"at"`
}

// SeedComment is a comment row.
type SeedComment struct {
	ID   string `yaml:"id"`
	Post string `yaml:"post"`
	Body string `yaml:"body"`
	At   int    `yaml:"at"`
}

// SeedVote is a vote row. Value is up or down.
type SeedVote struct {
	Post   string `yaml:"post"`
	Device string `yaml:"device"`
	Value  string `yaml:"value"`
}

// Step is one scenario action. Exactly one action field is set.
type Step struct {
	// Intent is an intent kind such as create_post. City, Post, Comment,
	// Text, Value and Mode are its arguments.
	Intent  string `yaml:"intent,omitempty"`
	City    string `yaml:"city,omitempty"`
	Post    string `yaml:"post,omitempty"`
	Comment string `yaml:"comment,omitempty"`
	Text    string `yaml:"text,omitempty"`
	Value   string `yaml:"value,omitempty"`
	Mode    string `yaml:"mode,omitempty"`

	// Reject is the rejection code the intent must produce.
	Reject string `yaml:"reject,omitempty"`

	Settle       string      `yaml:"settle,omitempty"`
	Fail         string      `yaml:"fail,omitempty"`
	FailNext     string      `yaml:"fail_next,omitempty"`
	HoldChanges  bool        `yaml:"hold_changes,omitempty"`
	FlushChanges bool        `yaml:"flush_changes,omitempty"`
	Remote       *RemoteStep `yaml:"remote,omitempty"`
	Notify       *NotifyStep `yaml:"notify,omitempty"`
	Expect       []Assertion `yaml:"expect,omitempty"`
}

// RemoteStep is a write made by another device through the gateway. The
// write publishes its change notification like any other.
type RemoteStep struct {
	// Action is one of the Remote* constants.
	Action  string `yaml:"action"`
	City    string `yaml:"city,omitempty"`
	Post    string `yaml:"post,omitempty"`
	Comment string `yaml:"comment,omitempty"`
	Body    string `yaml:"body,omitempty"`
	Device  string `yaml:"device,omitempty"`
	Value   string `yaml:"value,omitempty"`
}

// Remote actions.
const (
	RemoteCreatePost    = "create_post"
	RemoteDeletePost    = "delete_post"
	RemoteVote          = "vote"
	RemoteUnvote        = "unvote"
	RemoteCreateComment = "create_comment"
	RemoteDeleteComment = "delete_comment"
)

// NotifyStep is a change notification delivered without touching the
// gateway tables, used to replay duplicates and stale events.
type NotifyStep struct {
	Table   string `yaml:"table"`
	Kind    string `yaml:"kind"`
	City    string `yaml:"city,omitempty"`
	Post    string `yaml:"post,omitempty"`
	Comment string `yaml:"comment,omitempty"`
	Body    string `yaml:"body,omitempty"`
	At      int    `yaml:"at,omitempty"`
	Device  string `yaml:"device,omitempty"`
	Value   string `yaml:"value,omitempty"`
	// Old is the previous vote value of an update.
	Old string `yaml:"old,omitempty"`
}

// Assertion checks the view or the parked calls.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Post    string   `yaml:"post,omitempty"`
	Comment string   `yaml:"comment,omitempty"`
	IDs     []string `yaml:"ids,omitempty"`
	Ops     []string `yaml:"ops,omitempty"`
	Ups     int      `yaml:"ups,omitempty"`
	Downs   int      `yaml:"downs,omitempty"`
	Status  string   `yaml:"status,omitempty"`
	Text    string   `yaml:"text,omitempty"`
	City    string   `yaml:"city,omitempty"`
	Mode    string   `yaml:"mode,omitempty"`
}

// Assertion types.
const (
	AssertPosts        = "posts"
	AssertAbsent       = "absent"
	AssertTally        = "tally"
	AssertStatus       = "status"
	AssertComments     = "comments"
	AssertOpenThreads  = "open_threads"
	AssertPendingCalls = "pending_calls"
	AssertCompose      = "compose"
	AssertCity         = "city"
	AssertMode         = "mode"
)

// Settle targets besides operation names.
const (
	SettleAny = "any"
	SettleAll = "all"
)

var operations = []string{
	gateway.OpResolveCity,
	gateway.OpListPosts,
	gateway.OpInsertPost,
	gateway.OpDeletePost,
	gateway.OpListComments,
	gateway.OpInsertComment,
	gateway.OpDeleteComment,
	gateway.OpListVotes,
	gateway.OpGetVote,
	gateway.OpInsertVote,
	gateway.OpUpdateVote,
	gateway.OpDeleteVote,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name. A
// non-empty filter keeps the scenarios whose name contains it.
func LoadDir(dir, filter string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	sort.Strings(paths)

	var out []*Scenario
	seen := make(map[string]string)
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("scenario %q defined in both %s and %s", s.Name, prev, path)
		}
		seen[s.Name] = path
		if filter != "" && !strings.Contains(s.Name, filter) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Mode != "" {
		if _, err := ir.ParseMode(s.Mode); err != nil {
			return err
		}
	}

	if err := validateSeed(&s.Seed); err != nil {
		return err
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(fmt.Sprintf("assertions[%d]", i), &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateSeed(seed *Seed) error {
	if len(seed.Cities) == 0 {
		return fmt.Errorf("seed.cities is required and must be non-empty")
	}
	cities := make(map[string]bool)
	for i, c := range seed.Cities {
		if c.Slug == "" {
			return fmt.Errorf("seed.cities[%d]: slug is required", i)
		}
		cities[c.Slug] = true
	}

	posts := make(map[string]bool)
	for i, p := range seed.Posts {
		if p.ID == "" {
			return fmt.Errorf("seed.posts[%d]: id is required", i)
		}
		if p.City != "" && !cities[p.City] {
			return fmt.Errorf("seed.posts[%d]: unknown city %q", i, p.City)
		}
		posts[p.ID] = true
	}
	for i, c := range seed.Comments {
		if c.ID == "" {
			return fmt.Errorf("seed.comments[%d]: id is required", i)
		}
		if !posts[c.Post] {
			return fmt.Errorf("seed.comments[%d]: unknown post %q", i, c.Post)
		}
	}
	for i, v := range seed.Votes {
		if !posts[v.Post] {
			return fmt.Errorf("seed.votes[%d]: unknown post %q", i, v.Post)
		}
		if v.Device == "" {
			return fmt.Errorf("seed.votes[%d]: device is required", i)
		}
		if _, err := ir.ParseVoteValue(v.Value); err != nil {
			return fmt.Errorf("seed.votes[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	actions := 0
	for _, set := range []bool{
		st.Intent != "",
		st.Settle != "",
		st.Fail != "",
		st.FailNext != "",
		st.HoldChanges,
		st.FlushChanges,
		st.Remote != nil,
		st.Notify != nil,
		len(st.Expect) > 0,
	} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, found %d", index, actions)
	}

	switch {
	case st.Intent != "":
		if _, err := st.intent(); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case st.Settle != "":
		if st.Settle != SettleAll && st.Settle != SettleAny && !isOperation(st.Settle) {
			return fmt.Errorf("steps[%d]: unknown operation %q", index, st.Settle)
		}
	case st.Fail != "":
		if st.Fail != SettleAny && !isOperation(st.Fail) {
			return fmt.Errorf("steps[%d]: unknown operation %q", index, st.Fail)
		}
	case st.FailNext != "":
		if !isOperation(st.FailNext) {
			return fmt.Errorf("steps[%d]: unknown operation %q", index, st.FailNext)
		}
	case st.Remote != nil:
		if err := validateRemote(st.Remote); err != nil {
			return fmt.Errorf("steps[%d].remote: %w", index, err)
		}
	case st.Notify != nil:
		if _, err := st.Notify.change(nil); err != nil {
			return fmt.Errorf("steps[%d].notify: %w", index, err)
		}
	case len(st.Expect) > 0:
		for i := range st.Expect {
			if err := validateAssertion(fmt.Sprintf("steps[%d].expect[%d]", index, i), &st.Expect[i]); err != nil {
				return err
			}
		}
	}

	if st.Reject != "" && st.Intent == "" {
		return fmt.Errorf("steps[%d]: reject is only valid on intents", index)
	}
	return nil
}

func validateRemote(r *RemoteStep) error {
	switch r.Action {
	case RemoteCreatePost:
		if r.Body == "" {
			return fmt.Errorf("body is required for %s", r.Action)
		}
	case RemoteDeletePost:
		if r.Post == "" {
			return fmt.Errorf("post is required for %s", r.Action)
		}
	case RemoteVote:
		if r.Post == "" {
			return fmt.Errorf("post is required for %s", r.Action)
		}
		if _, err := ir.ParseVoteValue(r.Value); err != nil {
			return err
		}
	case RemoteUnvote:
		if r.Post == "" {
			return fmt.Errorf("post is required for %s", r.Action)
		}
	case RemoteCreateComment:
		if r.Post == "" || r.Body == "" {
			return fmt.Errorf("post and body are required for %s", r.Action)
		}
	case RemoteDeleteComment:
		if r.Comment == "" {
			return fmt.Errorf("comment is required for %s", r.Action)
		}
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(where string, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("%s: type is required", where)
	case AssertPosts, AssertOpenThreads, AssertPendingCalls, AssertCompose, AssertCity:
	case AssertAbsent, AssertTally:
		if a.Post == "" {
			return fmt.Errorf("%s: post is required for %s", where, a.Type)
		}
	case AssertStatus:
		if a.Post == "" {
			return fmt.Errorf("%s: post is required for %s", where, a.Type)
		}
		if err := new(ir.Status).UnmarshalText([]byte(a.Status)); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
	case AssertComments:
		if a.Post == "" {
			return fmt.Errorf("%s: post is required for %s", where, a.Type)
		}
	case AssertMode:
		if _, err := ir.ParseMode(a.Mode); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
	default:
		return fmt.Errorf("%s: unknown assertion type %q", where, a.Type)
	}
	return nil
}

func isOperation(op string) bool {
	for _, o := range operations {
		if o == op {
			return true
		}
	}
	return false
}

// intent builds the engine intent of an intent step.
func (st *Step) intent() (engine.Intent, error) {
	kind, err := engine.ParseIntentKind(st.Intent)
	if err != nil {
		return engine.Intent{}, err
	}
	in := engine.Intent{
		Kind:      kind,
		City:      st.City,
		PostID:    st.Post,
		CommentID: st.Comment,
		Text:      st.Text,
	}
	if st.Value != "" {
		if in.Value, err = ir.ParseVoteValue(st.Value); err != nil {
			return engine.Intent{}, err
		}
	}
	if st.Mode != "" {
		if in.Mode, err = ir.ParseMode(st.Mode); err != nil {
			return engine.Intent{}, err
		}
	}
	return in, nil
}

// change builds the notification. cities maps slugs to seeded cities; a
// nil map only validates the shape.
func (n *NotifyStep) change(cities map[string]ir.City) (gateway.Change, error) {
	kind, err := ir.ParseChangeKind(n.Kind)
	if err != nil {
		return gateway.Change{}, err
	}

	var row, old ir.Row
	switch gateway.Table(n.Table) {
	case gateway.TablePosts:
		if n.Post == "" {
			return gateway.Change{}, fmt.Errorf("post is required for posts")
		}
		p := ir.Post{ID: n.Post, Body: n.Body, CreatedAt: testutil.At(n.At)}
		if cities != nil {
			c, ok := cities[n.City]
			if !ok {
				return gateway.Change{}, fmt.Errorf("unknown city %q", n.City)
			}
			p.CityID = c.ID
		}
		row, old = p, p
	case gateway.TableComments:
		if n.Comment == "" || n.Post == "" {
			return gateway.Change{}, fmt.Errorf("comment and post are required for comments")
		}
		c := ir.Comment{ID: n.Comment, PostID: n.Post, Body: n.Body, CreatedAt: testutil.At(n.At)}
		row, old = c, c
	case gateway.TableVotes:
		if n.Post == "" || n.Device == "" {
			return gateway.Change{}, fmt.Errorf("post and device are required for votes")
		}
		v := ir.Vote{PostID: n.Post, DeviceID: n.Device}
		if kind != ir.ChangeDelete || n.Value != "" {
			if v.Value, err = ir.ParseVoteValue(n.Value); err != nil {
				return gateway.Change{}, err
			}
		}
		row, old = v, v
		if kind == ir.ChangeUpdate {
			prev, err := ir.ParseVoteValue(n.Old)
			if err != nil {
				return gateway.Change{}, fmt.Errorf("old: %w", err)
			}
			old = ir.Vote{PostID: n.Post, DeviceID: n.Device, Value: prev}
		}
	default:
		return gateway.Change{}, fmt.Errorf("unknown table %q", n.Table)
	}

	c := gateway.Change{Table: gateway.Table(n.Table), Kind: kind}
	switch kind {
	case ir.ChangeInsert:
		c.New = row
	case ir.ChangeUpdate:
		c.Old, c.New = old, row
	case ir.ChangeDelete:
		c.Old = old
	}
	return c, nil
}

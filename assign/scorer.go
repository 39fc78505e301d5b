// Package assign implements the auto-assignment scorer: load- and
// specialization-aware placement of unassigned tasks onto agents. The
// scorer is a pure function of the snapshot it is handed, so placement
// decisions are reproducible for testing and audit.
package assign

import (
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/GoCodeAlone/overseer/agent"
	"github.com/GoCodeAlone/overseer/task"
)

// ErrNoEligibleAgent is returned when no agent survives filtering.
var ErrNoEligibleAgent = errors.New("no eligible agent")

// Config holds the scoring weights and the injectable keyword taxonomy.
type Config struct {
	LoadPenalty          float64       // subtracted per open task
	SpecializationWeight float64       // multiplies the keyword match count
	SpeedBonus           float64       // added when recent avg completion is fast
	UrgencyBonus         float64       // added for urgent tasks on fast agents
	FastAgentThreshold   time.Duration // avg completion below this counts as fast
	CompletionWindow     time.Duration // stats lookback
	Keywords             map[string][]string
}

// DefaultConfig returns the stock weights and keyword table.
func DefaultConfig() Config {
	return Config{
		LoadPenalty:          2.0,
		SpecializationWeight: 1.5,
		SpeedBonus:           1.0,
		UrgencyBonus:         3.0,
		FastAgentThreshold:   30 * time.Minute,
		CompletionWindow:     24 * time.Hour,
		Keywords:             DefaultKeywords(),
	}
}

// History summarizes an agent's recent completions, supplied by the
// caller from live task data.
type History struct {
	Completed     int
	AvgCompletion time.Duration
}

// Factors is the per-agent score breakdown returned with a placement.
type Factors struct {
	Velocity       float64 `json:"velocity"`
	LoadPenalty    float64 `json:"load_penalty"`
	Specialization float64 `json:"specialization"`
	Urgency        float64 `json:"urgency"`
}

// Result is a completed placement decision.
type Result struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
	Factors Factors `json:"factors"`
}

// Scorer ranks agents for a task.
type Scorer struct {
	cfg  Config
	fold cases.Caser
}

// NewScorer creates a Scorer. A nil keyword table falls back to the
// defaults.
func NewScorer(cfg Config) *Scorer {
	if cfg.Keywords == nil {
		cfg.Keywords = DefaultKeywords()
	}
	return &Scorer{cfg: cfg, fold: cases.Fold()}
}

// Pick returns the highest-scoring eligible agent for the task, or
// ErrNoEligibleAgent when none qualifies. Offline agents are excluded.
// Ties break on agent ID so identical snapshots yield identical picks.
func (s *Scorer) Pick(t *task.Task, agents []*agent.Agent, load map[string]int, history map[string]History) (*Result, error) {
	candidates := make([]*agent.Agent, 0, len(agents))
	for _, a := range agents {
		if a.Status == agent.StatusOffline {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil, ErrNoEligibleAgent
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	text := s.fold.String(t.Title + " " + t.Description)

	var best *Result
	for _, a := range candidates {
		r := s.score(t, a, text, load[a.ID], history[a.ID])
		if best == nil || r.Score > best.Score {
			best = r
		}
	}
	return best, nil
}

// score computes one agent's suitability for the task.
func (s *Scorer) score(t *task.Task, a *agent.Agent, foldedText string, open int, h History) *Result {
	fast := h.AvgCompletion > 0 && h.AvgCompletion < s.cfg.FastAgentThreshold

	velocity := float64(h.Completed)
	if fast {
		velocity += s.cfg.SpeedBonus
	}

	loadPenalty := float64(open) * s.cfg.LoadPenalty

	match := float64(s.matchCount(a.Role, foldedText))
	specialization := match * s.cfg.SpecializationWeight

	var urgency float64
	if t.Priority == task.PriorityUrgent && fast {
		urgency = s.cfg.UrgencyBonus
	}

	return &Result{
		AgentID: a.ID,
		Score:   velocity - loadPenalty + specialization + urgency,
		Factors: Factors{
			Velocity:       velocity,
			LoadPenalty:    loadPenalty,
			Specialization: specialization,
			Urgency:        urgency,
		},
	}
}

// matchCount counts the role's trigger terms present in the folded
// task text.
func (s *Scorer) matchCount(role, foldedText string) int {
	terms := s.cfg.Keywords[role]
	n := 0
	for _, term := range terms {
		folded := s.fold.String(term)
		if folded != "" && strings.Contains(foldedText, folded) {
			n++
		}
	}
	return n
}

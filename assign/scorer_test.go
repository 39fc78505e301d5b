package assign

import (
	"errors"
	"testing"
	"time"

	"github.com/GoCodeAlone/overseer/agent"
	"github.com/GoCodeAlone/overseer/task"
)

func testAgents() []*agent.Agent {
	return []*agent.Agent{
		{ID: "a-backend", Role: "backend", Status: agent.StatusStandby},
		{ID: "b-frontend", Role: "frontend", Status: agent.StatusStandby},
		{ID: "c-offline", Role: "backend", Status: agent.StatusOffline},
	}
}

func TestPickExcludesOffline(t *testing.T) {
	s := NewScorer(DefaultConfig())
	tk := &task.Task{Title: "fix the api endpoint"}

	got, err := s.Pick(tk, testAgents(), nil, nil)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got.AgentID == "c-offline" {
		t.Fatal("offline agent must never be selected")
	}
}

func TestPickNoEligibleAgent(t *testing.T) {
	s := NewScorer(DefaultConfig())
	agents := []*agent.Agent{{ID: "x", Status: agent.StatusOffline}}
	_, err := s.Pick(&task.Task{Title: "anything"}, agents, nil, nil)
	if !errors.Is(err, ErrNoEligibleAgent) {
		t.Fatalf("Pick error = %v, want ErrNoEligibleAgent", err)
	}
}

func TestPickSpecializationMatch(t *testing.T) {
	s := NewScorer(DefaultConfig())
	tk := &task.Task{Title: "Fix API endpoint", Description: "server returns 500 on bad query"}

	got, err := s.Pick(tk, testAgents(), nil, nil)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got.AgentID != "a-backend" {
		t.Fatalf("Pick = %s, want the backend specialist", got.AgentID)
	}
	if got.Factors.Specialization <= 0 {
		t.Errorf("Specialization = %v, want > 0", got.Factors.Specialization)
	}
}

func TestPickKeywordMatchIsCaseless(t *testing.T) {
	s := NewScorer(DefaultConfig())
	tk := &task.Task{Title: "UPDATE THE README"}

	got, err := s.Pick(tk, []*agent.Agent{
		{ID: "writer", Role: "docs", Status: agent.StatusStandby},
		{ID: "coder", Role: "backend", Status: agent.StatusStandby},
	}, nil, nil)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got.AgentID != "writer" {
		t.Fatalf("Pick = %s, want writer via case-folded keyword match", got.AgentID)
	}
}

func TestPickLoadPenalty(t *testing.T) {
	s := NewScorer(DefaultConfig())
	tk := &task.Task{Title: "routine chore"}
	agents := []*agent.Agent{
		{ID: "busy", Status: agent.StatusStandby},
		{ID: "idle", Status: agent.StatusStandby},
	}
	load := map[string]int{"busy": 4}

	got, err := s.Pick(tk, agents, load, nil)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got.AgentID != "idle" {
		t.Fatalf("Pick = %s, want the unloaded agent", got.AgentID)
	}
	if got.Factors.LoadPenalty != 0 {
		t.Errorf("LoadPenalty = %v, want 0 for idle agent", got.Factors.LoadPenalty)
	}
}

func TestPickUrgentPrefersFastIdleAgent(t *testing.T) {
	s := NewScorer(DefaultConfig())
	tk := &task.Task{Title: "production outage", Priority: task.PriorityUrgent}
	agents := []*agent.Agent{
		{ID: "slow-and-busy", Status: agent.StatusWorking},
		{ID: "fast-and-free", Status: agent.StatusStandby},
	}
	load := map[string]int{"slow-and-busy": 3}
	history := map[string]History{
		"slow-and-busy": {Completed: 5, AvgCompletion: 4 * time.Hour},
		"fast-and-free": {Completed: 3, AvgCompletion: 10 * time.Minute},
	}

	got, err := s.Pick(tk, agents, load, history)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got.AgentID != "fast-and-free" {
		t.Fatalf("Pick = %s, want the fast unloaded agent for urgent work", got.AgentID)
	}
	if got.Factors.Urgency == 0 {
		t.Error("Urgency bonus missing for a fast agent on an urgent task")
	}
}

func TestPickDeterministic(t *testing.T) {
	s := NewScorer(DefaultConfig())
	tk := &task.Task{Title: "tie between twins"}
	agents := []*agent.Agent{
		{ID: "b", Status: agent.StatusStandby},
		{ID: "a", Status: agent.StatusStandby},
	}

	first, err := s.Pick(tk, agents, nil, nil)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := s.Pick(tk, agents, nil, nil)
		if err != nil {
			t.Fatalf("Pick: %v", err)
		}
		if again.AgentID != first.AgentID || again.Score != first.Score {
			t.Fatalf("Pick not deterministic: got %s/%v then %s/%v",
				first.AgentID, first.Score, again.AgentID, again.Score)
		}
	}
	if first.AgentID != "a" {
		t.Errorf("tie-break = %s, want lowest agent ID", first.AgentID)
	}
}

package strategy

import "time"

// Phase is one ordered stage of the double-diamond discussion with its own
// time allocation and prompt guidance.
type Phase struct {
	Name      string
	Duration  time.Duration
	Objective string
}

type phaseSpec struct {
	name      string
	objective string
}

var phaseOrder = []phaseSpec{
	{"discover", "Explore the problem space, gather insights, and surface open questions."},
	{"define", "Synthesize findings into a clear problem statement and prioritize needs."},
	{"develop", "Generate solution concepts, stress test options, and refine promising ideas."},
	{"deliver", "Select a direction, outline execution steps, and call out success metrics."},
}

const minTotalSec = 120

// Phases splits the session time budget across the fixed phase list. With no
// weights the split is even (remainder seconds spread from the front). A
// weight map overrides the share per phase name; missing names get an even
// share of whatever weight is unassigned.
func Phases(totalTimeSec int, weights map[string]float64) []Phase {
	if totalTimeSec < minTotalSec {
		totalTimeSec = minTotalSec
	}

	if len(weights) > 0 {
		return weightedPhases(totalTimeSec, weights)
	}

	base := totalTimeSec / len(phaseOrder)
	remainder := totalTimeSec % len(phaseOrder)
	phases := make([]Phase, 0, len(phaseOrder))
	for idx, spec := range phaseOrder {
		duration := base
		if idx < remainder {
			duration++
		}
		phases = append(phases, Phase{
			Name:      spec.name,
			Duration:  time.Duration(duration) * time.Second,
			Objective: spec.objective,
		})
	}
	return phases
}

func weightedPhases(totalTimeSec int, weights map[string]float64) []Phase {
	// Weights are relative shares, normalized over their sum, so callers may
	// pass fractions, percentages or arbitrary ratios. Phases left out of the
	// map get an even share.
	defaultShare := 1.0 / float64(len(phaseOrder))
	shares := make([]float64, len(phaseOrder))
	total := 0.0
	for i, spec := range phaseOrder {
		share := defaultShare
		if w, ok := weights[spec.name]; ok && w > 0 {
			share = w
		}
		shares[i] = share
		total += share
	}

	phases := make([]Phase, 0, len(phaseOrder))
	for i, spec := range phaseOrder {
		duration := time.Duration(float64(totalTimeSec) * shares[i] / total * float64(time.Second))
		phases = append(phases, Phase{
			Name:      spec.name,
			Duration:  duration,
			Objective: spec.objective,
		})
	}
	return phases
}

// PhaseNames returns the ordered phase names.
func PhaseNames() []string {
	names := make([]string, len(phaseOrder))
	for i, spec := range phaseOrder {
		names[i] = spec.name
	}
	return names
}

// FirstPhase is the phase every session starts in.
func FirstPhase() string {
	return phaseOrder[0].name
}

// PhasePrompt returns the system guidance for a phase.
func PhasePrompt(phaseName string) string {
	prompts := map[string]string{
		"discover": "You are facilitating the DISCOVER phase. Focus on gathering observations, " +
			"user pains, and unmet needs. Encourage clarifying questions and avoid jumping " +
			"to solutions yet.",
		"define": "You are in the DEFINE phase. Summarize insights, frame the problem crisply, " +
			"and push the team toward a shared articulation of the target outcome.",
		"develop": "You are in the DEVELOP phase. Brainstorm solution approaches, compare trade-offs, " +
			"and combine ideas into stronger directions. Keep responses concise and purposeful.",
		"deliver": "You are in the DELIVER phase. Converge on an actionable plan, outline next steps, " +
			"and highlight metrics or validation steps. End with any risks or asks.",
	}
	if p, ok := prompts[phaseName]; ok {
		return p
	}
	return "Drive the conversation forward with clarity and focus. Respond succinctly."
}

package domain

// SeedCandidate is a short phrase used to prompt keyword expansion,
// ranked by embedding similarity to the pitch. Produced once by the
// seed ranker and consumed once by the orchestrator.
type SeedCandidate struct {
	Seed              string  `json:"seed"`
	SimilarityToPitch float64 `json:"similarity_to_pitch"`
}

// Facets are the optional structured inputs accompanying a pitch.
type Facets struct {
	Topics      []string `json:"topics,omitempty"`
	Personas    []string `json:"personas,omitempty"`
	PainPoints  []string `json:"pain_points,omitempty"`
	Features    []string `json:"features,omitempty"`
	Competitors []string `json:"competitors,omitempty"`
}

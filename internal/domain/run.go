package domain

import "time"

// ArticleState enumerates pipeline milestones for a single article.
type ArticleState string

const (
	StateAcquired    ArticleState = "acquired"
	StateAnalyzed    ArticleState = "analyzed"
	StateSummarized  ArticleState = "summarized"
	StateGenerated   ArticleState = "generated"
	StateDistributed ArticleState = "distributed"
	StateMonetized   ArticleState = "monetized"
	StateRecorded    ArticleState = "recorded"
	StateFailed      ArticleState = "failed"
)

// Stage names the step that moves an article into the next state.
type Stage string

const (
	StageAnalyze    Stage = "analyze"
	StageSummarize  Stage = "summarize"
	StageGenerate   Stage = "generate"
	StageDistribute Stage = "distribute"
	StageMonetize   Stage = "monetize"
	StageRecord     Stage = "record"
)

// Outcome captures what happened to one article during a run.
type Outcome struct {
	Article     Article
	State       ArticleState
	FailedStage Stage
	Err         error
	Analysis    AnalysisResult
	Summary     string
	Content     string
	Adapted     AdaptedContent
	Revenue     RevenueReport
}

// RunReport aggregates every article outcome of a single pipeline run.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome
	// Skipped counts duplicates dropped by the dedupe policy.
	Skipped int
	// Cancelled counts acquired articles that never started because the run was stopped.
	Cancelled      int
	SourcesFailed  int
	SourcesScanned int
}

// Recorded returns the number of articles that reached the Recorded state.
func (r RunReport) Recorded() int {
	return r.count(StateRecorded)
}

// Failed returns the number of articles that ended in the Failed state.
func (r RunReport) Failed() int {
	return r.count(StateFailed)
}

// TotalRevenue sums the revenue of every recorded article.
func (r RunReport) TotalRevenue() float64 {
	var total float64
	for _, o := range r.Outcomes {
		if o.State == StateRecorded {
			total += o.Revenue.Total
		}
	}
	return total
}

func (r RunReport) count(state ArticleState) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

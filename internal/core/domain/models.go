package domain

import "time"

// InputTable is the tabular username source loaded at the start of a run.
type InputTable struct {
	Header []string
	Rows   []InputRow
}

// InputRow is one row of the input table.
type InputRow struct {
	Index    int      // position in the source, header excluded
	Username string   // value of the username column
	Fields   []string // full row, written back verbatim for qualifying users
}

// VideoRecord is a past broadcast or upload owned by a user.
type VideoRecord struct {
	Owner string `json:"user_login"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ClipRecord is a clip taken from a broadcaster's channel.
type ClipRecord struct {
	BroadcasterName string `json:"broadcaster_name"`
	URL             string `json:"url"`
	GameID          string `json:"game_id"`
}

// ContentLink is one row of the clip/video URL output.
type ContentLink struct {
	Channel string
	URL     string
}

// MatchResult is the evaluation of a single user's content.
type MatchResult struct {
	Username  string
	Qualifies bool
	Clips     []ContentLink
	Videos    []ContentLink
}

// RunState is a step of the fetch pipeline.
type RunState string

const (
	StateInit     RunState = "INIT"
	StateAuth     RunState = "AUTH"
	StateDispatch RunState = "DISPATCH"
	StateDrain    RunState = "DRAIN"
	StateDone     RunState = "DONE"
	StateAborted  RunState = "ABORTED"
)

// RunResult holds the totals of a completed (or aborted) run.
type RunResult struct {
	RunID      string
	State      RunState
	InputRows  int
	Unique     int
	Dispatched int
	Resolved   int
	Qualifying int
	ClipLinks  int
	VideoLinks int
	Batches    int
	Failures   map[FailureReason]int
	StartedAt  time.Time
	FinishedAt time.Time
}

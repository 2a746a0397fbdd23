package procsim

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result-set caps shared by all execution engines.
const (
	// PreviewRowLimit is the maximum number of rows captured per result set.
	PreviewRowLimit = 50
	// TablePreviewRows is the number of sample rows captured per seeded table.
	TablePreviewRows = 3
	// LiveStatementTimeout bounds a single statement in live rollback mode.
	LiveStatementTimeout = 30 * time.Second
)

// EventType classifies a trace event.
type EventType string

const (
	EventStart       EventType = "start"
	EventSimulated   EventType = "simulated"
	EventBranch      EventType = "branch"
	EventResultSet   EventType = "resultset"
	EventDml         EventType = "dml"
	EventInfo        EventType = "info"
	EventError       EventType = "error"
	EventTxn         EventType = "txn"
	EventStatement   EventType = "statement"
	EventControlFlow EventType = "control-flow"
	EventComplete    EventType = "complete"
)

// TraceEvent is one entry in a run's event log. EventID values are assigned
// from a per-run monotonic counter starting at 0 and define the only ordering
// clients may rely on; timestamps are advisory.
type TraceEvent struct {
	EventID      int       `json:"eventId"`
	Timestamp    time.Time `json:"timestamp"`
	NodeID       string    `json:"nodeId,omitempty"`
	Type         EventType `json:"eventType"`
	SQL          string    `json:"sql,omitempty"`
	RowCount     *int64    `json:"rowCount,omitempty"`
	ErrorNumber  int       `json:"errorNumber,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Columns      []string  `json:"columns,omitempty"`
	Rows         [][]any   `json:"rows,omitempty"`
	BranchTaken  string    `json:"branchTaken,omitempty"`
	DurationMs   int64     `json:"durationMs"`
}

// RunSummary aggregates a completed run.
type RunSummary struct {
	TotalStatements   int    `json:"totalStatements"`
	TotalRowsAffected int64  `json:"totalRowsAffected"`
	TotalDurationMs   int64  `json:"totalDurationMs"`
	HadError          bool   `json:"hadError"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
	Mode              Mode   `json:"mode"`
}

// TablePreview is the first rows of one seeded sandbox table.
type TablePreview struct {
	Columns    []string `json:"columns"`
	SampleRows [][]any  `json:"sampleRows"`
	RowCount   int      `json:"rowCount"`
}

// SQLiteMetadata describes the schema the sandbox created and seeded.
type SQLiteMetadata struct {
	DataPreview        map[string]TablePreview `json:"dataPreview"`
	TablesCreated      []string                `json:"tablesCreated"`
	TotalRowsGenerated int                     `json:"totalRowsGenerated"`
}

// RunResult is the envelope every execution engine returns.
type RunResult struct {
	RunID          string          `json:"runId"`
	Summary        RunSummary      `json:"summary"`
	Trace          []TraceEvent    `json:"trace"`
	ExecutedNodes  []string        `json:"executedNodes"`
	ExecutedEdges  []string        `json:"executedEdges"`
	SQLiteMetadata *SQLiteMetadata `json:"sqliteMetadata,omitempty"`
}

// NewRunID returns a fresh 12-character hex run identifier.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// EdgeKey renders an executed edge as "<sourceId>-><targetId>".
func EdgeKey(sourceID, targetID string) string {
	return sourceID + "->" + targetID
}

// Recorder accumulates trace events for one run. It owns the monotonic event
// counter and the executed node/edge sets. Not safe for concurrent use; each
// run owns its recorder.
type Recorder struct {
	events    []TraceEvent
	nextID    int
	nodes     map[string]struct{}
	nodeOrder []string
	edges     map[string]struct{}
	edgeOrder []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		nodes: make(map[string]struct{}),
		edges: make(map[string]struct{}),
	}
}

// Append assigns the next event ID and timestamp, then stores the event.
// The returned pointer stays valid until the next Append.
func (r *Recorder) Append(ev TraceEvent) *TraceEvent {
	ev.EventID = r.nextID
	r.nextID++
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	r.events = append(r.events, ev)
	return &r.events[len(r.events)-1]
}

// MarkNode records a node as executed. Duplicates are ignored.
func (r *Recorder) MarkNode(nodeID string) {
	if nodeID == "" {
		return
	}
	if _, ok := r.nodes[nodeID]; ok {
		return
	}
	r.nodes[nodeID] = struct{}{}
	r.nodeOrder = append(r.nodeOrder, nodeID)
}

// MarkEdge records an edge as definitely taken. Duplicates are ignored.
func (r *Recorder) MarkEdge(sourceID, targetID string) {
	key := EdgeKey(sourceID, targetID)
	if _, ok := r.edges[key]; ok {
		return
	}
	r.edges[key] = struct{}{}
	r.edgeOrder = append(r.edgeOrder, key)
}

// NodeMarked reports whether a node has been recorded as executed.
func (r *Recorder) NodeMarked(nodeID string) bool {
	_, ok := r.nodes[nodeID]
	return ok
}

// Events returns the recorded events in append order.
func (r *Recorder) Events() []TraceEvent {
	return r.events
}

// ExecutedNodes returns node IDs in first-marked order.
func (r *Recorder) ExecutedNodes() []string {
	return r.nodeOrder
}

// ExecutedEdges returns edge keys in first-marked order.
func (r *Recorder) ExecutedEdges() []string {
	return r.edgeOrder
}

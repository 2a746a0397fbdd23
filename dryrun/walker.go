package dryrun

import (
	"fmt"
	"time"

	"github.com/procsim/procsim"
	"github.com/procsim/procsim/cfg"
)

// maxDepth bounds the traversal so malformed or highly nested graphs
// cannot recurse without end.
const maxDepth = 100

// Branch verdict tags carried by branch trace events.
const (
	TakenTrue          = "TRUE (predicted)"
	TakenFalse         = "FALSE (predicted)"
	TakenUnpredictable = "UNPREDICTABLE"
)

// Simulator walks a control flow graph without touching a database,
// predicting which nodes and edges a run with the given parameter values
// would execute. Edges are only recorded when the walk made a determinate
// choice; unpredictable branches walk both arms without claiming either.
type Simulator struct {
	graph  *cfg.Graph
	params map[string]any
	rec    *procsim.Recorder
}

// NewSimulator creates a simulator for one graph and parameter set.
func NewSimulator(graph *cfg.Graph, params map[string]any) *Simulator {
	return &Simulator{graph: graph, params: params, rec: procsim.NewRecorder()}
}

// Run performs the dry-run walk and returns the assembled result.
func (s *Simulator) Run() (*procsim.RunResult, error) {
	started := time.Now()

	start, ok := s.graph.Node(s.graph.StartNodeID)
	if !ok {
		return nil, fmt.Errorf("%w: start node %q", procsim.ErrNodeNotFound, s.graph.StartNodeID)
	}

	s.rec.Append(procsim.TraceEvent{
		NodeID: start.ID,
		Type:   procsim.EventStart,
	})
	s.rec.MarkNode(start.ID)

	if err := s.walk(start, 0); err != nil {
		return nil, err
	}

	summary := procsim.RunSummary{
		Mode:            procsim.ModeDryRun,
		TotalDurationMs: time.Since(started).Milliseconds(),
	}
	for _, ev := range s.rec.Events() {
		if ev.Type == procsim.EventSimulated {
			summary.TotalStatements++
		}
	}

	s.rec.Append(procsim.TraceEvent{
		NodeID: s.graph.EndNodeID,
		Type:   procsim.EventComplete,
	})

	return &procsim.RunResult{
		RunID:         procsim.NewRunID(),
		Summary:       summary,
		Trace:         s.rec.Events(),
		ExecutedNodes: s.rec.ExecutedNodes(),
		ExecutedEdges: s.rec.ExecutedEdges(),
	}, nil
}

func (s *Simulator) walk(node *cfg.Node, depth int) error {
	if depth > maxDepth {
		s.rec.Append(procsim.TraceEvent{
			NodeID:       node.ID,
			Type:         procsim.EventError,
			ErrorMessage: "traversal depth limit reached",
		})
		return nil
	}

	switch node.Kind {
	case cfg.KindEnd:
		return nil
	case cfg.KindBranch:
		return s.walkBranch(node, depth)
	case cfg.KindLoop:
		return s.walkLoop(node, depth)
	}

	s.emitNode(node)
	for _, edge := range node.Edges {
		if err := s.follow(node, edge, depth, true); err != nil {
			return err
		}
	}
	return nil
}

// walkBranch evaluates the branch condition. A decidable verdict prunes
// the untaken arm and records the chosen edge; an unpredictable one
// explores both arms but records neither edge as taken.
func (s *Simulator) walkBranch(node *cfg.Node, depth int) error {
	verdict := Evaluate(node.SqlSnippet, s.params)

	s.rec.Append(procsim.TraceEvent{
		NodeID:      node.ID,
		Type:        procsim.EventBranch,
		SQL:         node.SqlSnippet,
		BranchTaken: takenTag(verdict),
	})

	for _, edge := range node.Edges {
		var explore bool
		switch verdict {
		case True:
			explore = edge.Condition == cfg.CondTrue
		case False:
			explore = edge.Condition == cfg.CondFalse
		default:
			explore = true
		}
		if !explore {
			continue
		}
		if err := s.follow(node, edge, depth, verdict != Unknown); err != nil {
			return err
		}
	}
	return nil
}

// walkLoop simulates exactly one iteration: the body edge once, then the
// exit edge. The loop-back edge is never re-entered.
func (s *Simulator) walkLoop(node *cfg.Node, depth int) error {
	s.rec.Append(procsim.TraceEvent{
		NodeID:      node.ID,
		Type:        procsim.EventSimulated,
		SQL:         node.SqlSnippet,
		RowCount:    int64Ptr(0),
		BranchTaken: "simulated — 1 iteration",
	})

	for _, edge := range node.Edges {
		if edge.Condition != cfg.CondDone {
			if err := s.follow(node, edge, depth, true); err != nil {
				return err
			}
		}
	}
	for _, edge := range node.Edges {
		if edge.Condition == cfg.CondDone {
			if err := s.follow(node, edge, depth, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// follow marks the edge when determinate, then descends into the target
// unless it was already visited on this walk.
func (s *Simulator) follow(from *cfg.Node, edge cfg.Edge, depth int, determinate bool) error {
	target, ok := s.graph.Node(edge.TargetNodeID)
	if !ok {
		return fmt.Errorf("%w: edge %s -> %s", procsim.ErrDanglingEdge, from.ID, edge.TargetNodeID)
	}

	if determinate {
		s.rec.MarkEdge(from.ID, target.ID)
	}
	if s.rec.NodeMarked(target.ID) {
		return nil
	}
	s.rec.MarkNode(target.ID)
	return s.walk(target, depth+1)
}

func (s *Simulator) emitNode(node *cfg.Node) {
	switch node.Kind {
	case cfg.KindStart, cfg.KindBlock:
		return
	case cfg.KindStatement:
		if node.SqlSnippet == "" {
			return
		}
		s.simulated(node)
	case cfg.KindDynamicSql:
		s.rec.Append(procsim.TraceEvent{
			NodeID:       node.ID,
			Type:         procsim.EventInfo,
			SQL:          node.SqlSnippet,
			ErrorMessage: "dynamic SQL is not expanded during simulation",
		})
	case cfg.KindTransaction:
		s.rec.Append(procsim.TraceEvent{
			NodeID: node.ID,
			Type:   procsim.EventTxn,
			SQL:    node.SqlSnippet,
		})
	case cfg.KindTryCatch, cfg.KindCatchBlock:
		s.rec.Append(procsim.TraceEvent{
			NodeID: node.ID,
			Type:   procsim.EventControlFlow,
			SQL:    node.Label,
		})
	default:
		s.simulated(node)
	}
}

func (s *Simulator) simulated(node *cfg.Node) {
	s.rec.Append(procsim.TraceEvent{
		NodeID:   node.ID,
		Type:     procsim.EventSimulated,
		SQL:      node.SqlSnippet,
		RowCount: int64Ptr(0),
	})
}

func takenTag(verdict Verdict) string {
	switch verdict {
	case True:
		return TakenTrue
	case False:
		return TakenFalse
	default:
		return TakenUnpredictable
	}
}

func int64Ptr(v int64) *int64 { return &v }

package dryrun

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/procsim/procsim"
	"github.com/procsim/procsim/cfg"
	"github.com/procsim/procsim/parser"
)

func simulate(t *testing.T, sql string, params map[string]any) (*cfg.Graph, *procsim.RunResult) {
	t.Helper()
	proc, err := parser.Parse(sql)
	assert.NoError(t, err)
	graph, err := cfg.Build(proc)
	assert.NoError(t, err)
	result, err := NewSimulator(graph, params).Run()
	assert.NoError(t, err)
	return graph, result
}

func eventsOfType(result *procsim.RunResult, typ procsim.EventType) []procsim.TraceEvent {
	var out []procsim.TraceEvent
	for _, ev := range result.Trace {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func branchNode(g *cfg.Graph) *cfg.Node {
	for _, node := range g.Nodes {
		if node.Kind == cfg.KindBranch {
			return node
		}
	}
	return nil
}

func edgeTaken(result *procsim.RunResult, key string) bool {
	for _, k := range result.ExecutedEdges {
		if k == key {
			return true
		}
	}
	return false
}

func TestSimulateLinear(t *testing.T) {
	_, result := simulate(t, "SELECT * FROM Products WHERE Id = @Id", nil)

	assert.Equal(t, procsim.EventStart, result.Trace[0].Type)
	assert.Equal(t, procsim.EventComplete, result.Trace[len(result.Trace)-1].Type)
	assert.Equal(t, 1, len(eventsOfType(result, procsim.EventSimulated)))
	assert.Equal(t, 1, result.Summary.TotalStatements)
	assert.Equal(t, procsim.ModeDryRun, result.Summary.Mode)
}

func TestSimulateEventIDsMonotonic(t *testing.T) {
	_, result := simulate(t, "SELECT 1\nSELECT 2\nSELECT 3", nil)

	for i, ev := range result.Trace {
		assert.Equal(t, i, ev.EventID)
	}
}

func TestSimulateDecidableBranchTrue(t *testing.T) {
	graph, result := simulate(t,
		"IF @X > 0 BEGIN SELECT 'positive'; END ELSE BEGIN SELECT 'negative'; END",
		map[string]any{"@X": 5})

	branches := eventsOfType(result, procsim.EventBranch)
	assert.Equal(t, 1, len(branches))
	assert.Equal(t, "TRUE (predicted)", branches[0].BranchTaken)

	simulated := eventsOfType(result, procsim.EventSimulated)
	assert.Equal(t, 1, len(simulated))
	assert.True(t, strings.Contains(simulated[0].SQL, "'positive'"))

	branch := branchNode(graph)
	var trueTarget, falseTarget string
	for _, edge := range branch.Edges {
		switch edge.Condition {
		case cfg.CondTrue:
			trueTarget = edge.TargetNodeID
		case cfg.CondFalse:
			falseTarget = edge.TargetNodeID
		}
	}
	assert.True(t, edgeTaken(result, procsim.EdgeKey(branch.ID, trueTarget)))
	assert.False(t, edgeTaken(result, procsim.EdgeKey(branch.ID, falseTarget)))
}

func TestSimulateDecidableBranchFalse(t *testing.T) {
	_, result := simulate(t,
		"IF @X > 0 BEGIN SELECT 'positive'; END ELSE BEGIN SELECT 'negative'; END",
		map[string]any{"@X": -1})

	branches := eventsOfType(result, procsim.EventBranch)
	assert.Equal(t, "FALSE (predicted)", branches[0].BranchTaken)

	simulated := eventsOfType(result, procsim.EventSimulated)
	assert.Equal(t, 1, len(simulated))
	assert.True(t, strings.Contains(simulated[0].SQL, "'negative'"))
}

func TestSimulateUnpredictableBranch(t *testing.T) {
	graph, result := simulate(t,
		"IF @X > 0 BEGIN SELECT 'positive'; END ELSE BEGIN SELECT 'negative'; END",
		map[string]any{"@X": "some string"})

	branches := eventsOfType(result, procsim.EventBranch)
	assert.Equal(t, "UNPREDICTABLE", branches[0].BranchTaken)

	// both arms walked
	assert.Equal(t, 2, len(eventsOfType(result, procsim.EventSimulated)))

	// but neither branch edge claimed as taken
	branch := branchNode(graph)
	for _, edge := range branch.Edges {
		assert.False(t, edgeTaken(result, procsim.EdgeKey(branch.ID, edge.TargetNodeID)))
	}
}

func TestSimulateLoopOneIteration(t *testing.T) {
	_, result := simulate(t,
		"WHILE @I < 10 BEGIN SET @I = @I + 1; SELECT @I; END\nSELECT 'after'",
		nil)

	simulated := eventsOfType(result, procsim.EventSimulated)

	var loopEvents, bodyCount, afterCount int
	for _, ev := range simulated {
		switch {
		case ev.BranchTaken == "simulated — 1 iteration":
			loopEvents++
		case strings.Contains(ev.SQL, "SELECT @I"):
			bodyCount++
		case strings.Contains(ev.SQL, "'after'"):
			afterCount++
		}
	}
	assert.Equal(t, 1, loopEvents)
	assert.Equal(t, 1, bodyCount)
	assert.Equal(t, 1, afterCount)
}

func TestSimulateLoopEdgesMarked(t *testing.T) {
	graph, result := simulate(t, "WHILE @I < 10 BEGIN SET @I = @I + 1; END", nil)

	var loop *cfg.Node
	for _, node := range graph.Nodes {
		if node.Kind == cfg.KindLoop {
			loop = node
		}
	}
	assert.NotZero(t, loop)
	for _, edge := range loop.Edges {
		assert.True(t, edgeTaken(result, procsim.EdgeKey(loop.ID, edge.TargetNodeID)))
	}
}

func TestSimulateDynamicSqlInfo(t *testing.T) {
	_, result := simulate(t, "EXEC sp_executesql @stmt", nil)

	infos := eventsOfType(result, procsim.EventInfo)
	assert.Equal(t, 1, len(infos))
	assert.True(t, strings.Contains(infos[0].ErrorMessage, "dynamic SQL"))
}

func TestSimulateTransactionEvents(t *testing.T) {
	_, result := simulate(t, "BEGIN TRAN\nUPDATE Orders SET Status = 'paid'\nCOMMIT TRAN", nil)

	assert.Equal(t, 2, len(eventsOfType(result, procsim.EventTxn)))
	assert.Equal(t, 1, len(eventsOfType(result, procsim.EventSimulated)))
}

func TestSimulateExecutedNodesAndEdges(t *testing.T) {
	graph, result := simulate(t, "SELECT 1", nil)

	assert.True(t, len(result.ExecutedNodes) >= 3)
	for _, id := range result.ExecutedNodes {
		_, ok := graph.Node(id)
		assert.True(t, ok)
	}
	for _, key := range result.ExecutedEdges {
		parts := strings.Split(key, "->")
		assert.Equal(t, 2, len(parts))
		assert.True(t, graph.HasEdge(parts[0], parts[1]))
	}
}

func TestSimulateRunIDFormat(t *testing.T) {
	_, result := simulate(t, "SELECT 1", nil)
	assert.Equal(t, 12, len(result.RunID))
}

func TestSimulateReturnStopsPath(t *testing.T) {
	_, result := simulate(t,
		"IF @Id IS NULL BEGIN RETURN; END\nSELECT * FROM Orders WHERE Id = @Id",
		map[string]any{"@Id": nil})

	branches := eventsOfType(result, procsim.EventBranch)
	assert.Equal(t, "TRUE (predicted)", branches[0].BranchTaken)

	// the trailing SELECT must not execute
	for _, ev := range eventsOfType(result, procsim.EventSimulated) {
		assert.False(t, strings.Contains(ev.SQL, "FROM Orders"))
	}
}

func TestSimulateTryCatchControlFlow(t *testing.T) {
	_, result := simulate(t,
		"BEGIN TRY SELECT 1; END TRY BEGIN CATCH SELECT ERROR_MESSAGE(); END CATCH",
		nil)

	flows := eventsOfType(result, procsim.EventControlFlow)
	assert.Equal(t, 2, len(flows))
	assert.Equal(t, 2, len(eventsOfType(result, procsim.EventSimulated)))
}

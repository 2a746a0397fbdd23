package cfg

import (
	"fmt"
	"strings"

	"github.com/procsim/procsim"
	"github.com/procsim/procsim/parser"
)

const labelLimit = 50

// Build lowers a parsed procedure body into a control flow graph. The
// resulting graph always validates: a single Start and End, merge nodes
// after every branch and try/catch, and loop-exit nodes after every loop.
func Build(proc *parser.Procedure) (*Graph, error) {
	if proc == nil || len(proc.Body) == 0 {
		return nil, fmt.Errorf("%w: procedure has no body", procsim.ErrEmptyProcedure)
	}

	b := &builder{graph: NewGraph()}

	start := b.newNode(KindStart, "START", 0, 0)
	end := b.newNode(KindEnd, "END", 0, 0)
	b.graph.StartNodeID = start.ID
	b.graph.EndNodeID = end.ID
	b.end = end

	tail, terminated := b.lowerStatements(proc.Body, start, "")
	if !terminated && tail != nil && !b.hasEdgeTo(tail, end.ID) {
		b.link(tail, end.ID, "")
	}

	if err := b.graph.Validate(); err != nil {
		return nil, err
	}
	return b.graph, nil
}

type builder struct {
	graph   *Graph
	counter int
	end     *Node
}

func (b *builder) newNode(kind NodeKind, label string, startLine, endLine int) *Node {
	node := &Node{
		ID:        fmt.Sprintf("N%d", b.counter),
		Kind:      kind,
		Label:     label,
		StartLine: startLine,
		EndLine:   endLine,
	}
	b.counter++
	b.graph.Add(node)
	return node
}

func (b *builder) link(from *Node, targetID, condition string) {
	from.Edges = append(from.Edges, Edge{TargetNodeID: targetID, Condition: condition})
}

func (b *builder) hasEdgeTo(from *Node, targetID string) bool {
	for _, edge := range from.Edges {
		if edge.TargetNodeID == targetID {
			return true
		}
	}
	return false
}

// lowerStatements lowers a statement list, linking the first lowered node
// from tail with firstCond as the edge condition. It returns the new tail
// and whether control flow terminated (reached End via RETURN or THROW).
func (b *builder) lowerStatements(stmts []parser.Statement, tail *Node, firstCond string) (*Node, bool) {
	cond := firstCond
	for _, stmt := range stmts {
		next, terminated := b.lowerStatement(stmt, tail, cond)
		cond = ""
		if terminated {
			return next, true
		}
		tail = next
	}
	return tail, false
}

func (b *builder) lowerStatement(stmt parser.Statement, tail *Node, cond string) (*Node, bool) {
	switch s := stmt.(type) {
	case *parser.IfStmt:
		return b.lowerIf(s, tail, cond), false
	case *parser.WhileStmt:
		return b.lowerWhile(s, tail, cond), false
	case *parser.TryCatchStmt:
		return b.lowerTryCatch(s, tail, cond), false
	case *parser.BlockStmt:
		return b.lowerStatements(s.Statements, tail, cond)
	default:
		return b.lowerSimple(stmt, tail, cond)
	}
}

func (b *builder) lowerSimple(stmt parser.Statement, tail *Node, cond string) (*Node, bool) {
	frag := stmt.Fragment()
	kind := statementKind(stmt)
	node := b.newNode(kind, collapseLabel(frag.Text), frag.StartLine, frag.EndLine)
	node.SqlSnippet = frag.Text
	b.link(tail, node.ID, cond)

	if raw, ok := stmt.(*parser.RawStmt); ok {
		if raw.Verb == "RETURN" || raw.Verb == "THROW" {
			b.link(node, b.end.ID, "")
			return node, true
		}
	}
	return node, false
}

func (b *builder) lowerIf(s *parser.IfStmt, tail *Node, cond string) *Node {
	branch := b.newNode(KindBranch, collapseLabel("IF "+s.Cond.Text), s.Frag.StartLine, s.Frag.EndLine)
	branch.SqlSnippet = s.Cond.Text
	b.link(tail, branch.ID, cond)

	merge := b.newNode(KindStatement, "(merge)", s.Frag.EndLine, s.Frag.EndLine)

	b.lowerArm(s.Then, s.ThenBlock, "then", branch, CondTrue, merge)
	b.lowerArm(s.Else, s.ElseBlock, "else", branch, CondFalse, merge)

	return merge
}

// lowerArm lowers one arm of a branch. An empty arm produces a direct edge
// from the branch to the merge carrying the arm's condition. A BEGIN..END
// arm gets a Block node so the grouping stays visible in the graph.
func (b *builder) lowerArm(stmts []parser.Statement, isBlock bool, blockLabel string, branch *Node, armCond string, merge *Node) {
	if len(stmts) == 0 {
		b.link(branch, merge.ID, armCond)
		return
	}

	tail := branch
	cond := armCond
	if isBlock {
		startLine, endLine := stmtsSpan(stmts)
		block := b.newNode(KindBlock, blockLabel, startLine, endLine)
		b.link(branch, block.ID, armCond)
		tail = block
		cond = ""
	}

	armTail, terminated := b.lowerStatements(stmts, tail, cond)
	if !terminated {
		b.link(armTail, merge.ID, "")
	}
}

func (b *builder) lowerWhile(s *parser.WhileStmt, tail *Node, cond string) *Node {
	loop := b.newNode(KindLoop, collapseLabel("WHILE "+s.Cond.Text), s.Frag.StartLine, s.Frag.EndLine)
	loop.SqlSnippet = s.Cond.Text
	b.link(tail, loop.ID, cond)

	if len(s.Body) > 0 {
		bodyTail, terminated := b.lowerStatements(s.Body, loop, CondTrue)
		if !terminated {
			b.link(bodyTail, loop.ID, CondLoopBack)
		}
	}

	exit := b.newNode(KindStatement, "(loop exit)", s.Frag.EndLine, s.Frag.EndLine)
	b.link(loop, exit.ID, CondDone)
	return exit
}

func (b *builder) lowerTryCatch(s *parser.TryCatchStmt, tail *Node, cond string) *Node {
	try := b.newNode(KindTryCatch, "TRY", s.Frag.StartLine, s.Frag.EndLine)
	b.link(tail, try.ID, cond)

	merge := b.newNode(KindStatement, "(merge)", s.Frag.EndLine, s.Frag.EndLine)

	tryTail, tryTerminated := b.lowerStatements(s.Try, try, "")
	if !tryTerminated {
		b.link(tryTail, merge.ID, CondSuccess)
	}

	catchStart, catchEnd := stmtsSpan(s.Catch)
	catch := b.newNode(KindCatchBlock, "CATCH", catchStart, catchEnd)
	b.link(try, catch.ID, CondError)

	if len(s.Catch) == 0 {
		b.link(catch, merge.ID, CondHandled)
		return merge
	}

	catchTail, catchTerminated := b.lowerStatements(s.Catch, catch, "")
	if !catchTerminated {
		b.link(catchTail, merge.ID, CondHandled)
	}
	return merge
}

func statementKind(stmt parser.Statement) NodeKind {
	switch s := stmt.(type) {
	case *parser.SqlStmt:
		switch s.Verb {
		case "SELECT", "WITH":
			return KindSelect
		default:
			return KindDml
		}
	case *parser.ExecStmt:
		if s.Dynamic {
			return KindDynamicSql
		}
		return KindCall
	case *parser.TransactionStmt:
		return KindTransaction
	default:
		return KindStatement
	}
}

func stmtsSpan(stmts []parser.Statement) (int, int) {
	if len(stmts) == 0 {
		return 0, 0
	}
	first := stmts[0].Fragment()
	last := stmts[len(stmts)-1].Fragment()
	return first.StartLine, last.EndLine
}

// collapseLabel flattens whitespace and truncates for display.
func collapseLabel(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if len(collapsed) > labelLimit {
		collapsed = collapsed[:labelLimit-3] + "..."
	}
	return collapsed
}

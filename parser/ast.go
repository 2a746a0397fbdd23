package parser

// Fragment is a verbatim, whitespace-trimmed slice of the original source
// together with its location. Byte offsets index the untrimmed source.
type Fragment struct {
	Text        string
	StartLine   int
	EndLine     int
	StartOffset int
	EndOffset   int
}

// Parameter describes one procedure parameter from the header.
type Parameter struct {
	Name       string // with leading @
	Type       string // SQL type text, e.g. NVARCHAR(100)
	Output     bool
	HasDefault bool
	Default    string // literal text when HasDefault
}

// Procedure is the parse result: a procedure header (possibly absent in batch
// mode) and the body statement list.
type Procedure struct {
	Name       string // empty in batch mode
	Parameters []Parameter
	Body       []Statement
}

// Statement is a node of the procedure body AST.
type Statement interface {
	Fragment() Fragment
}

// RawStmt is a statement the control-flow lowering treats as opaque:
// DECLARE, SET, RETURN, PRINT, RAISERROR, THROW, BREAK, CONTINUE, and
// similar single statements.
type RawStmt struct {
	Frag Fragment
	Verb string // upper-cased leading keyword
}

func (s *RawStmt) Fragment() Fragment { return s.Frag }

// SqlStmt is a data statement: SELECT, INSERT, UPDATE, DELETE, MERGE,
// TRUNCATE, CREATE, DROP, or a WITH-prefixed statement.
type SqlStmt struct {
	Frag Fragment
	Verb string
}

func (s *SqlStmt) Fragment() Fragment { return s.Frag }

// ExecStmt is an EXEC/EXECUTE statement. Dynamic marks execution of a
// variable operand or sp_executesql.
type ExecStmt struct {
	Frag    Fragment
	Dynamic bool
}

func (s *ExecStmt) Fragment() Fragment { return s.Frag }

// TransactionStmt is BEGIN/COMMIT/ROLLBACK/SAVE TRANSACTION.
type TransactionStmt struct {
	Frag   Fragment
	Action string // BEGIN, COMMIT, ROLLBACK, SAVE
}

func (s *TransactionStmt) Fragment() Fragment { return s.Frag }

// BlockStmt is a bare BEGIN ... END grouping.
type BlockStmt struct {
	Frag       Fragment
	Statements []Statement
}

func (s *BlockStmt) Fragment() Fragment { return s.Frag }

// IfStmt is IF <cond> <then> [ELSE <else>]. ThenBlock/ElseBlock record
// whether the arm was written as a BEGIN ... END block.
type IfStmt struct {
	Frag      Fragment
	Cond      Fragment
	Then      []Statement
	ThenBlock bool
	Else      []Statement
	ElseBlock bool
}

func (s *IfStmt) Fragment() Fragment { return s.Frag }

// WhileStmt is WHILE <cond> <body>.
type WhileStmt struct {
	Frag      Fragment
	Cond      Fragment
	Body      []Statement
	BodyBlock bool
}

func (s *WhileStmt) Fragment() Fragment { return s.Frag }

// TryCatchStmt is BEGIN TRY ... END TRY BEGIN CATCH ... END CATCH.
type TryCatchStmt struct {
	Frag  Fragment
	Try   []Statement
	Catch []Statement
}

func (s *TryCatchStmt) Fragment() Fragment { return s.Frag }

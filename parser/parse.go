package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/procsim/procsim"
	"github.com/procsim/procsim/tokenizer"
)

// Sentinel errors
var (
	ErrUnexpectedToken = errors.New("unexpected token")
	ErrUnexpectedEOF   = errors.New("unexpected end of input")
	ErrMissingCatch    = errors.New("BEGIN TRY without matching BEGIN CATCH")
)

// statement-opening keywords; a statement without an explicit terminator ends
// when one of these appears at parenthesis depth zero
var statementStarters = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"MERGE": true, "DECLARE": true, "SET": true, "IF": true, "ELSE": true,
	"WHILE": true, "BEGIN": true, "END": true, "EXEC": true, "EXECUTE": true,
	"RETURN": true, "PRINT": true, "RAISERROR": true, "THROW": true,
	"COMMIT": true, "ROLLBACK": true, "SAVE": true, "BREAK": true,
	"CONTINUE": true, "GOTO": true, "WAITFOR": true, "CREATE": true,
	"DROP": true, "TRUNCATE": true, "WITH": true, "ALTER": true,
}

// Parse tokenises and parses a stored procedure (or a bare statement batch)
// into a Procedure AST. All failures wrap procsim.ErrBadInput.
func Parse(source string) (*Procedure, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: %w", procsim.ErrBadInput, procsim.ErrEmptyProcedure)
	}

	tokens, err := tokenizer.NewSqlTokenizer(source, tokenizer.TokenizerOptions{
		SkipWhitespace: true,
		SkipComments:   true,
	}).AllTokens()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", procsim.ErrBadInput, err)
	}

	p := &parser{source: source, tokens: tokens}
	proc := &Procedure{}

	if p.cur().IsKeyword("CREATE") || p.cur().IsKeyword("ALTER") {
		name, params, ok, err := p.parseHeader()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", procsim.ErrBadInput, err)
		}
		if ok {
			proc.Name = name
			proc.Parameters = params
		}
	}

	body, err := p.parseStatementsUntil(func() bool { return false })
	if err != nil {
		return nil, fmt.Errorf("%w: %w", procsim.ErrBadInput, err)
	}
	proc.Body = body

	return proc, nil
}

type parser struct {
	source string
	tokens []tokenizer.Token
	pos    int
}

func (p *parser) cur() tokenizer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF sentinel
	}
	return p.tokens[p.pos]
}

func (p *parser) peek(n int) tokenizer.Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *parser) advance() tokenizer.Token {
	tok := p.cur()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// fragment extracts the verbatim source text spanned by the inclusive token
// range, trimmed of surrounding whitespace.
func (p *parser) fragment(startIdx, endIdx int) Fragment {
	if endIdx < startIdx {
		tok := p.tokens[startIdx]
		return Fragment{
			StartLine:   tok.Position.Line,
			EndLine:     tok.Position.Line,
			StartOffset: tok.Position.Offset,
			EndOffset:   tok.Position.Offset,
		}
	}
	start := p.tokens[startIdx]
	end := p.tokens[endIdx]
	return Fragment{
		Text:        strings.TrimSpace(p.source[start.Position.Offset:end.End()]),
		StartLine:   start.Position.Line,
		EndLine:     end.Position.Line,
		StartOffset: start.Position.Offset,
		EndOffset:   end.End(),
	}
}

func (p *parser) parseStatementsUntil(stop func() bool) ([]Statement, error) {
	var stmts []Statement
	for {
		tok := p.cur()
		if tok.Type == tokenizer.EOF {
			break
		}
		if tok.Type == tokenizer.SEMICOLON || tok.IsKeyword("GO") {
			p.advance()
			continue
		}
		if stop() {
			break
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (p *parser) parseStatement() (Statement, error) {
	tok := p.cur()

	if tok.Type == tokenizer.WORD {
		switch tok.Upper() {
		case "BEGIN":
			next := p.peek(1)
			switch {
			case next.IsKeyword("TRY"):
				return p.parseTryCatch()
			case next.IsKeyword("TRAN"), next.IsKeyword("TRANSACTION"), next.IsKeyword("DISTRIBUTED"):
				return p.parseTransaction("BEGIN")
			default:
				return p.parseBlock()
			}
		case "IF":
			return p.parseIf()
		case "WHILE":
			return p.parseWhile()
		case "COMMIT", "ROLLBACK", "SAVE":
			return p.parseTransaction(tok.Upper())
		case "EXEC", "EXECUTE":
			return p.parseExec()
		case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE", "TRUNCATE", "CREATE", "DROP", "WITH":
			return p.parseSql(tok.Upper())
		case "ELSE", "END":
			return nil, fmt.Errorf("%w: %s at line %d", ErrUnexpectedToken, tok.Value, tok.Position.Line)
		}
	}

	return p.parseRaw()
}

// parseRaw consumes one opaque statement: DECLARE, SET, RETURN, PRINT and
// anything else without control-flow structure.
func (p *parser) parseRaw() (Statement, error) {
	start := p.pos
	verb := strings.ToUpper(p.tokens[start].Value)
	last := p.scanStatement()
	return &RawStmt{Frag: p.fragment(start, last), Verb: verb}, nil
}

func (p *parser) parseSql(verb string) (Statement, error) {
	start := p.pos
	last := p.scanStatement()
	return &SqlStmt{Frag: p.fragment(start, last), Verb: verb}, nil
}

func (p *parser) parseTransaction(action string) (Statement, error) {
	start := p.pos
	last := p.scanStatement()
	return &TransactionStmt{Frag: p.fragment(start, last), Action: action}, nil
}

func (p *parser) parseExec() (Statement, error) {
	start := p.pos
	last := p.scanStatement()

	dynamic := false
	for i := start; i <= last; i++ {
		if p.tokens[i].IsKeyword("sp_executesql") {
			dynamic = true
		}
	}
	if !dynamic && start+1 <= last {
		operand := p.tokens[start+1]
		switch {
		case operand.Type == tokenizer.OPENED_PARENS:
			dynamic = true
		case operand.Type == tokenizer.VARIABLE:
			// EXEC @ret = proc assigns a return code; EXEC @sql runs dynamic SQL
			if start+2 > last || p.tokens[start+2].Type != tokenizer.EQUAL {
				dynamic = true
			} else if start+3 <= last && p.tokens[start+3].Type == tokenizer.VARIABLE {
				dynamic = true
			}
		}
	}

	return &ExecStmt{Frag: p.fragment(start, last), Dynamic: dynamic}, nil
}

// scanStatement advances past one statement and returns the index of its last
// token. A trailing semicolon is consumed but excluded from the returned
// range. CASE ... END pairs are tracked so END never closes a block early.
func (p *parser) scanStatement() int {
	start := p.pos
	verb := strings.ToUpper(p.tokens[start].Value)
	depth := 0
	caseDepth := 0
	// INSERT ... SELECT and WITH cte AS (...) SELECT keep one chained verb
	allowChain := verb == "WITH" || verb == "INSERT" || verb == "CREATE"
	last := start

	for {
		tok := p.cur()
		if tok.Type == tokenizer.EOF {
			break
		}
		switch tok.Type {
		case tokenizer.OPENED_PARENS:
			depth++
		case tokenizer.CLOSED_PARENS:
			if depth > 0 {
				depth--
			}
		case tokenizer.SEMICOLON:
			if depth == 0 {
				p.advance()
				return last
			}
		case tokenizer.WORD:
			upper := tok.Upper()
			if upper == "CASE" {
				caseDepth++
				break
			}
			if upper == "END" && caseDepth > 0 {
				caseDepth--
				break
			}
			if depth == 0 && caseDepth == 0 && p.pos > start && statementStarters[upper] {
				if upper == "SET" && verb == "UPDATE" {
					break // UPDATE t SET ...
				}
				if isChainedVerb(upper) && (allowChain || p.continuesStatement()) {
					if allowChain {
						allowChain = false
					}
					break
				}
				return last
			}
		}
		last = p.pos
		p.advance()
	}
	return last
}

func isChainedVerb(upper string) bool {
	switch upper {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE":
		return true
	}
	return false
}

// continuesStatement reports whether the previous token means the upcoming
// verb belongs to the current statement (UNION SELECT, ( SELECT, IN ( ... )).
func (p *parser) continuesStatement() bool {
	if p.pos == 0 {
		return false
	}
	prev := p.tokens[p.pos-1]
	if prev.Type == tokenizer.OPENED_PARENS {
		return true
	}
	switch strings.ToUpper(prev.Value) {
	case "UNION", "ALL", "AS", "IN", "EXISTS", "THEN":
		return prev.Type == tokenizer.WORD
	}
	return false
}

// scanCondition consumes a Boolean predicate after IF or WHILE, stopping at
// the first token that can only begin the construct's body.
func (p *parser) scanCondition() Fragment {
	start := p.pos
	depth := 0
	caseDepth := 0
	last := start - 1

	for {
		tok := p.cur()
		if tok.Type == tokenizer.EOF {
			break
		}
		if tok.Type == tokenizer.OPENED_PARENS {
			depth++
		}
		if tok.Type == tokenizer.CLOSED_PARENS {
			if depth == 0 {
				break
			}
			depth--
		}
		if tok.Type == tokenizer.SEMICOLON && depth == 0 {
			break
		}
		if tok.Type == tokenizer.WORD {
			upper := tok.Upper()
			if upper == "CASE" {
				caseDepth++
			} else if upper == "END" && caseDepth > 0 {
				caseDepth--
			} else if depth == 0 && caseDepth == 0 && statementStarters[upper] && p.pos > start {
				break
			}
		}
		last = p.pos
		p.advance()
	}
	return p.fragment(start, last)
}

// parseArm parses the then/else arm of an IF or the body of a WHILE. It
// returns the arm statements and whether the arm was a BEGIN ... END block.
// An empty arm (nothing before ELSE/END) is legal and yields no statements.
func (p *parser) parseArm() ([]Statement, bool, error) {
	tok := p.cur()
	if tok.Type == tokenizer.EOF || tok.IsKeyword("ELSE") || tok.IsKeyword("END") {
		return nil, false, nil
	}
	if tok.Type == tokenizer.SEMICOLON {
		p.advance()
		return nil, false, nil
	}
	if tok.IsKeyword("BEGIN") {
		next := p.peek(1)
		if !next.IsKeyword("TRY") && !next.IsKeyword("TRAN") && !next.IsKeyword("TRANSACTION") && !next.IsKeyword("DISTRIBUTED") {
			block, err := p.parseBlock()
			if err != nil {
				return nil, false, err
			}
			return block.(*BlockStmt).Statements, true, nil
		}
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, false, err
	}
	return []Statement{stmt}, false, nil
}

func (p *parser) parseIf() (Statement, error) {
	start := p.pos
	p.advance() // IF
	cond := p.scanCondition()

	thenStmts, thenBlock, err := p.parseArm()
	if err != nil {
		return nil, err
	}

	stmt := &IfStmt{
		Cond:      cond,
		Then:      thenStmts,
		ThenBlock: thenBlock,
	}

	if p.cur().IsKeyword("ELSE") {
		p.advance()
		if p.cur().IsKeyword("IF") {
			nested, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			stmt.Else = []Statement{nested}
		} else {
			elseStmts, elseBlock, err := p.parseArm()
			if err != nil {
				return nil, err
			}
			stmt.Else = elseStmts
			stmt.ElseBlock = elseBlock
		}
	}

	stmt.Frag = p.fragment(start, p.lastConsumed(start))
	return stmt, nil
}

func (p *parser) parseWhile() (Statement, error) {
	start := p.pos
	p.advance() // WHILE
	cond := p.scanCondition()

	body, bodyBlock, err := p.parseArm()
	if err != nil {
		return nil, err
	}

	return &WhileStmt{
		Frag:      p.fragment(start, p.lastConsumed(start)),
		Cond:      cond,
		Body:      body,
		BodyBlock: bodyBlock,
	}, nil
}

func (p *parser) parseBlock() (Statement, error) {
	start := p.pos
	p.advance() // BEGIN

	stmts, err := p.parseStatementsUntil(func() bool { return p.cur().IsKeyword("END") })
	if err != nil {
		return nil, err
	}
	if !p.cur().IsKeyword("END") {
		return nil, fmt.Errorf("%w: BEGIN at line %d has no matching END", ErrUnexpectedEOF, p.tokens[start].Position.Line)
	}
	endIdx := p.pos
	p.advance()

	return &BlockStmt{Frag: p.fragment(start, endIdx), Statements: stmts}, nil
}

func (p *parser) parseTryCatch() (Statement, error) {
	start := p.pos
	p.advance() // BEGIN
	p.advance() // TRY

	tryStmts, err := p.parseStatementsUntil(func() bool { return p.cur().IsKeyword("END") })
	if err != nil {
		return nil, err
	}
	if !p.cur().IsKeyword("END") || !p.peek(1).IsKeyword("TRY") {
		return nil, fmt.Errorf("%w: BEGIN TRY at line %d has no matching END TRY", ErrUnexpectedEOF, p.tokens[start].Position.Line)
	}
	p.advance() // END
	p.advance() // TRY

	if !p.cur().IsKeyword("BEGIN") || !p.peek(1).IsKeyword("CATCH") {
		return nil, fmt.Errorf("%w: at line %d", ErrMissingCatch, p.cur().Position.Line)
	}
	p.advance() // BEGIN
	p.advance() // CATCH

	catchStmts, err := p.parseStatementsUntil(func() bool { return p.cur().IsKeyword("END") })
	if err != nil {
		return nil, err
	}
	if !p.cur().IsKeyword("END") || !p.peek(1).IsKeyword("CATCH") {
		return nil, fmt.Errorf("%w: BEGIN CATCH has no matching END CATCH at line %d", ErrUnexpectedEOF, p.cur().Position.Line)
	}
	p.advance() // END
	endIdx := p.pos
	p.advance() // CATCH

	return &TryCatchStmt{
		Frag:  p.fragment(start, endIdx),
		Try:   tryStmts,
		Catch: catchStmts,
	}, nil
}

// lastConsumed returns the index of the last consumed token, never before
// the given start.
func (p *parser) lastConsumed(start int) int {
	last := p.pos - 1
	if last < start {
		return start
	}
	if last >= len(p.tokens) {
		last = len(p.tokens) - 1
	}
	return last
}

// parseHeader consumes CREATE [OR ALTER] PROC[EDURE] <name> <params> AS.
// Returns ok=false without consuming anything when the leading CREATE/ALTER
// does not introduce a procedure (batch mode).
func (p *parser) parseHeader() (string, []Parameter, bool, error) {
	i := p.pos + 1
	if p.peekAt(i).IsKeyword("OR") && p.peekAt(i+1).IsKeyword("ALTER") {
		i += 2
	}
	if !p.peekAt(i).IsKeyword("PROC") && !p.peekAt(i).IsKeyword("PROCEDURE") {
		return "", nil, false, nil
	}
	p.pos = i + 1

	name, err := p.parseQualifiedName()
	if err != nil {
		return "", nil, false, err
	}

	parens := false
	if p.cur().Type == tokenizer.OPENED_PARENS && p.peek(1).Type == tokenizer.VARIABLE {
		parens = true
		p.advance()
	}

	var params []Parameter
	for {
		tok := p.cur()
		if tok.Type == tokenizer.EOF {
			return "", nil, false, fmt.Errorf("%w: procedure %s has no AS keyword", ErrUnexpectedEOF, name)
		}
		if tok.IsKeyword("AS") {
			p.advance()
			break
		}
		if tok.Type == tokenizer.COMMA || (parens && tok.Type == tokenizer.CLOSED_PARENS) {
			p.advance()
			continue
		}
		if tok.Type != tokenizer.VARIABLE {
			return "", nil, false, fmt.Errorf("%w: %s in parameter list at line %d", ErrUnexpectedToken, tok.Value, tok.Position.Line)
		}

		param, err := p.parseParameter()
		if err != nil {
			return "", nil, false, err
		}
		params = append(params, param)
	}

	return name, params, true, nil
}

func (p *parser) parseParameter() (Parameter, error) {
	param := Parameter{Name: p.advance().Value}

	if p.cur().Type == tokenizer.WORD {
		typeName := p.advance().Value
		if p.cur().Type == tokenizer.DOT {
			p.advance()
			typeName += "." + p.advance().Value
		}
		if p.cur().Type == tokenizer.OPENED_PARENS {
			p.advance()
			typeName += "("
			for p.cur().Type != tokenizer.CLOSED_PARENS && p.cur().Type != tokenizer.EOF {
				typeName += p.advance().Value
			}
			p.advance()
			typeName += ")"
		}
		param.Type = typeName
	}

	if p.cur().Type == tokenizer.EQUAL {
		p.advance()
		param.HasDefault = true
		literal := ""
		if p.cur().Type == tokenizer.MINUS {
			literal = "-"
			p.advance()
		}
		literal += p.cur().Value
		param.Default = literal
		p.advance()
	}

	for p.cur().IsKeyword("OUTPUT") || p.cur().IsKeyword("OUT") || p.cur().IsKeyword("READONLY") {
		if !p.cur().IsKeyword("READONLY") {
			param.Output = true
		}
		p.advance()
	}

	return param, nil
}

func (p *parser) parseQualifiedName() (string, error) {
	tok := p.cur()
	if tok.Type != tokenizer.WORD && tok.Type != tokenizer.BRACKETED {
		return "", fmt.Errorf("%w: expected procedure name, got %q at line %d", ErrUnexpectedToken, tok.Value, tok.Position.Line)
	}
	name := p.advance().Value
	for p.cur().Type == tokenizer.DOT {
		p.advance()
		part := p.cur()
		if part.Type != tokenizer.WORD && part.Type != tokenizer.BRACKETED {
			break
		}
		name += "." + p.advance().Value
	}
	return name, nil
}

func (p *parser) peekAt(idx int) tokenizer.Token {
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

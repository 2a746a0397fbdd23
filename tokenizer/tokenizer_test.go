package tokenizer

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestTokenIterator(t *testing.T) {
	sql := "SELECT Id, Name FROM Products WHERE Id = @Id;"
	tokenizer := NewSqlTokenizer(sql)

	expectedTypes := []TokenType{
		WORD, WHITESPACE, WORD, COMMA, WHITESPACE, WORD, WHITESPACE,
		WORD, WHITESPACE, WORD, WHITESPACE, WORD, WHITESPACE, WORD,
		WHITESPACE, EQUAL, WHITESPACE, VARIABLE, SEMICOLON, EOF,
	}

	var actualTypes []TokenType
	for token, err := range tokenizer.Tokens() {
		assert.NoError(t, err)

		actualTypes = append(actualTypes, token.Type)

		if token.Type == EOF {
			break
		}
	}

	assert.Equal(t, expectedTypes, actualTypes)
}

func TestTokenIteratorWithOptions(t *testing.T) {
	sql := "SELECT Id FROM Orders -- comment\nWHERE Total > 10.5;"
	tokenizer := NewSqlTokenizer(sql, TokenizerOptions{
		SkipWhitespace: true,
		SkipComments:   true,
	})

	expectedTypes := []TokenType{
		WORD, WORD, WORD, WORD, WORD, WORD, GREATER_THAN, NUMBER, SEMICOLON, EOF,
	}

	var actualTypes []TokenType
	for token, err := range tokenizer.Tokens() {
		assert.NoError(t, err)

		actualTypes = append(actualTypes, token.Type)

		if token.Type == EOF {
			break
		}
	}

	assert.Equal(t, expectedTypes, actualTypes)
}

func TestVariableTokens(t *testing.T) {
	tokens, err := NewSqlTokenizer("@UserId @@ROWCOUNT @p1", TokenizerOptions{SkipWhitespace: true}).AllTokens()
	assert.NoError(t, err)
	assert.Equal(t, 4, len(tokens))
	assert.Equal(t, VARIABLE, tokens[0].Type)
	assert.Equal(t, "@UserId", tokens[0].Value)
	assert.Equal(t, "@@ROWCOUNT", tokens[1].Value)
	assert.Equal(t, "@p1", tokens[2].Value)
	assert.Equal(t, EOF, tokens[3].Type)
}

func TestStringLiterals(t *testing.T) {
	tokens, err := NewSqlTokenizer("'it''s' N'unicode'", TokenizerOptions{SkipWhitespace: true}).AllTokens()
	assert.NoError(t, err)
	assert.Equal(t, QUOTE, tokens[0].Type)
	assert.Equal(t, "'it''s'", tokens[0].Value)
	assert.Equal(t, QUOTE, tokens[1].Type)
	assert.Equal(t, "N'unicode'", tokens[1].Value)
}

func TestBracketedIdentifier(t *testing.T) {
	tokens, err := NewSqlTokenizer("[Order Details].[Unit Price]", TokenizerOptions{SkipWhitespace: true}).AllTokens()
	assert.NoError(t, err)
	assert.Equal(t, BRACKETED, tokens[0].Type)
	assert.Equal(t, "[Order Details]", tokens[0].Value)
	assert.Equal(t, DOT, tokens[1].Type)
	assert.Equal(t, "[Unit Price]", tokens[2].Value)
}

func TestOperators(t *testing.T) {
	tokens, err := NewSqlTokenizer("<> != <= >= < > = + - * / %", TokenizerOptions{SkipWhitespace: true}).AllTokens()
	assert.NoError(t, err)

	expected := []TokenType{
		NOT_EQUAL, NOT_EQUAL, LESS_EQUAL, GREATER_EQUAL, LESS_THAN, GREATER_THAN,
		EQUAL, PLUS, MINUS, MULTIPLY, DIVIDE, MODULO, EOF,
	}
	var actual []TokenType
	for _, token := range tokens {
		actual = append(actual, token.Type)
	}
	assert.Equal(t, expected, actual)
}

func TestPositionTracking(t *testing.T) {
	sql := "IF @X > 0\nSELECT 1"
	tokens, err := NewSqlTokenizer(sql, TokenizerOptions{SkipWhitespace: true}).AllTokens()
	assert.NoError(t, err)

	assert.Equal(t, 1, tokens[0].Position.Line) // IF
	assert.Equal(t, 0, tokens[0].Position.Offset)
	assert.Equal(t, 2, tokens[4].Position.Line) // SELECT
	assert.Equal(t, "SELECT", sql[tokens[4].Position.Offset:tokens[4].End()])
}

func TestUnterminatedString(t *testing.T) {
	_, err := NewSqlTokenizer("'never closed").AllTokens()
	assert.IsError(t, err, ErrUnterminatedString)
}

func TestTempTableWord(t *testing.T) {
	tokens, err := NewSqlTokenizer("SELECT * FROM #staging", TokenizerOptions{SkipWhitespace: true}).AllTokens()
	assert.NoError(t, err)
	assert.Equal(t, "#staging", tokens[3].Value)
	assert.Equal(t, WORD, tokens[3].Type)
}

func TestBlockComment(t *testing.T) {
	tokens, err := NewSqlTokenizer("/* note */ SELECT 1").AllTokens()
	assert.NoError(t, err)
	assert.Equal(t, BLOCK_COMMENT, tokens[0].Type)
	assert.Equal(t, "/* note */", tokens[0].Value)
}

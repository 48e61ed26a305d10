// Package sqlscan provides best-effort lexical analysis of author-supplied
// SQL text.
//
// The scanner is a heuristic tokenizer, not a SQL grammar. It recognizes
// enough structure to count and rewrite `?` placeholders and to pull
// candidate table and column names out of straightforward SELECT statements.
// Subqueries, CTEs, and unusual formatting can make it under- or over-match;
// callers must treat extraction results as advisory.
package sqlscan

import (
	"strconv"
	"strings"
)

// Extraction holds the names and placeholder count lexically scanned from
// one SQL statement. Table and column names are lowercased with quoting and
// qualification prefixes stripped.
type Extraction struct {
	Tables       []string `json:"tables"`
	Columns      []string `json:"columns"`
	Placeholders int      `json:"placeholders"`
}

// CountPlaceholders returns the number of `?` placeholders in sql, ignoring
// question marks inside string literals, quoted identifiers, and comments.
func CountPlaceholders(sql string) int {
	n := 0
	for i := 0; i < len(sql); {
		j, isPlaceholder := nextToken(sql, i)
		if isPlaceholder {
			n++
		}
		i = j
	}
	return n
}

// Rewrite converts `?` placeholders to PostgreSQL's positional `$1..$n`
// form, numbering left to right. Literals and comments pass through
// untouched.
func Rewrite(sql string) string {
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	for i := 0; i < len(sql); {
		j, isPlaceholder := nextToken(sql, i)
		if isPlaceholder {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteString(sql[i:j])
		}
		i = j
	}
	return b.String()
}

// nextToken advances from position i past one lexical unit: a string
// literal, a quoted identifier, a comment, a placeholder, or a single byte.
// It reports whether the unit was a `?` placeholder.
func nextToken(sql string, i int) (next int, placeholder bool) {
	switch c := sql[i]; {
	case c == '\'':
		return skipQuoted(sql, i, '\''), false
	case c == '"':
		return skipQuoted(sql, i, '"'), false
	case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
		return skipLineComment(sql, i), false
	case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
		return skipBlockComment(sql, i), false
	case c == '?':
		return i + 1, true
	default:
		return i + 1, false
	}
}

// skipQuoted returns the index just past the closing quote, honoring the
// SQL doubled-quote escape ('' or "").
func skipQuoted(sql string, i int, quote byte) int {
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != quote {
			continue
		}
		if j+1 < len(sql) && sql[j+1] == quote {
			j++ // escaped quote
			continue
		}
		return j + 1
	}
	return len(sql)
}

func skipLineComment(sql string, i int) int {
	for j := i + 2; j < len(sql); j++ {
		if sql[j] == '\n' {
			return j + 1
		}
	}
	return len(sql)
}

func skipBlockComment(sql string, i int) int {
	for j := i + 2; j+1 < len(sql); j++ {
		if sql[j] == '*' && sql[j+1] == '/' {
			return j + 2
		}
	}
	return len(sql)
}

// blankNonCode replaces string literals, quoted identifiers, and comments
// with spaces so positional structure survives but their contents cannot be
// mistaken for names.
func blankNonCode(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	for i := 0; i < len(sql); {
		j, _ := nextToken(sql, i)
		if j-i > 1 {
			for k := i; k < j; k++ {
				b.WriteByte(' ')
			}
		} else {
			b.WriteByte(sql[i])
		}
		i = j
	}
	return b.String()
}

type token struct {
	text  string
	depth int // parenthesis nesting at token start
}

func tokenize(sql string) []token {
	var toks []token
	depth := 0
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == '(':
			toks = append(toks, token{"(", depth})
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			toks = append(toks, token{")", depth})
			i++
		case isIdentByte(c):
			j := i
			for j < len(sql) && (isIdentByte(sql[j]) || sql[j] == '.') {
				j++
			}
			toks = append(toks, token{sql[i:j], depth})
			i = j
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			// operators and punctuation, longest-match for two-byte forms
			if i+1 < len(sql) {
				two := sql[i : i+2]
				if two == ">=" || two == "<=" || two == "<>" || two == "!=" {
					toks = append(toks, token{two, depth})
					i += 2
					continue
				}
			}
			toks = append(toks, token{string(c), depth})
			i++
		}
	}
	return toks
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// isIdentifier reports whether tok looks like a plain (possibly dotted)
// identifier rather than a keyword, number, or punctuation.
func isIdentifier(tok string) bool {
	if tok == "" || tok == "*" {
		return false
	}
	c := tok[0]
	if c >= '0' && c <= '9' {
		return false
	}
	if !isIdentByte(c) {
		return false
	}
	return !sqlKeywords[strings.ToUpper(tok)]
}

// baseName strips a table-qualification prefix: "t.symbol" -> "symbol".
func baseName(tok string) string {
	if idx := strings.LastIndexByte(tok, '.'); idx >= 0 {
		return tok[idx+1:]
	}
	return tok
}

var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "JOIN": true, "INNER": true,
	"LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true, "CROSS": true,
	"ON": true, "AND": true, "OR": true, "NOT": true, "IN": true, "IS": true,
	"NULL": true, "LIKE": true, "ILIKE": true, "BETWEEN": true, "AS": true,
	"ORDER": true, "GROUP": true, "BY": true, "HAVING": true, "LIMIT": true,
	"OFFSET": true, "DISTINCT": true, "UNION": true, "ALL": true, "CASE": true,
	"WHEN": true, "THEN": true, "ELSE": true, "END": true, "ASC": true,
	"DESC": true, "TRUE": true, "FALSE": true, "EXISTS": true, "CAST": true,
	"INSERT": true, "UPDATE": true, "DELETE": true, "INTO": true, "VALUES": true,
	"SET": true, "RETURNING": true, "WITH": true, "NULLS": true, "FIRST": true,
	"LAST": true, "USING": true, "INTERVAL": true,
}

var comparisonOps = map[string]bool{
	"=": true, ">": true, "<": true, ">=": true, "<=": true, "<>": true,
	"!=": true, "LIKE": true, "ILIKE": true, "IN": true, "IS": true,
	"BETWEEN": true,
}

// Extract scans sql and returns candidate table names (tokens following FROM
// and JOIN), candidate column names (SELECT list and WHERE-clause
// comparisons, with aliases, qualification prefixes, and function wrappers
// stripped), and the `?` placeholder count.
func Extract(sql string) Extraction {
	clean := blankNonCode(sql)
	toks := tokenize(clean)

	ext := Extraction{Placeholders: CountPlaceholders(sql)}
	seenTable := map[string]bool{}
	seenCol := map[string]bool{}

	addTable := func(tok string) {
		name := strings.ToLower(baseName(tok))
		if !seenTable[name] {
			seenTable[name] = true
			ext.Tables = append(ext.Tables, name)
		}
	}
	addColumn := func(tok string) {
		name := strings.ToLower(baseName(tok))
		if !seenCol[name] {
			seenCol[name] = true
			ext.Columns = append(ext.Columns, name)
		}
	}

	for i := 0; i < len(toks); i++ {
		up := strings.ToUpper(toks[i].text)
		switch up {
		case "FROM", "JOIN":
			// take the next identifier; a "(" means a subquery we do not
			// descend into
			if i+1 < len(toks) && isIdentifier(toks[i+1].text) {
				addTable(toks[i+1].text)
			}
		case "SELECT":
			i = scanSelectList(toks, i, addColumn)
		case "WHERE":
			scanWhereColumns(toks, i, addColumn)
		}
	}
	return ext
}

// scanSelectList walks the select list starting after toks[start] (a SELECT
// token) up to the matching FROM, collecting column candidates. It returns
// the index of the FROM token (or the last token) so the caller can resume.
func scanSelectList(toks []token, start int, add func(string)) int {
	depth := toks[start].depth
	itemHasFunc := false
	var itemIdents []string
	var lastBeforeAS string

	flush := func() {
		switch {
		case lastBeforeAS != "":
			add(lastBeforeAS)
		case itemHasFunc:
			// function call: keep identifier arguments that look like columns
			for _, id := range itemIdents {
				add(id)
			}
		case len(itemIdents) > 0:
			add(itemIdents[len(itemIdents)-1])
		}
		itemHasFunc = false
		itemIdents = nil
		lastBeforeAS = ""
	}

	i := start + 1
	for ; i < len(toks); i++ {
		t := toks[i]
		up := strings.ToUpper(t.text)
		if t.depth == depth && up == "FROM" {
			break
		}
		if t.depth == depth && t.text == "," {
			flush()
			continue
		}
		switch {
		case up == "AS" && t.depth == depth:
			if len(itemIdents) > 0 {
				lastBeforeAS = itemIdents[len(itemIdents)-1]
			}
			// the alias itself is not a column; skip to the next item
			for i+1 < len(toks) && toks[i+1].depth >= depth && toks[i+1].text != "," {
				if toks[i+1].depth == depth && strings.ToUpper(toks[i+1].text) == "FROM" {
					break
				}
				i++
			}
		case t.text == "(":
			itemHasFunc = len(itemIdents) > 0
			if itemHasFunc {
				// drop the function name collected just before "("
				itemIdents = itemIdents[:len(itemIdents)-1]
			}
		case isIdentifier(t.text):
			itemIdents = append(itemIdents, t.text)
		}
	}
	flush()
	if i < len(toks) {
		return i - 1 // re-process FROM in the caller loop
	}
	return len(toks) - 1
}

// scanWhereColumns collects identifiers that sit immediately left of a
// comparison operator between WHERE and the next clause keyword.
func scanWhereColumns(toks []token, start int, add func(string)) {
	depth := toks[start].depth
	for i := start + 1; i < len(toks)-1; i++ {
		up := strings.ToUpper(toks[i].text)
		if toks[i].depth == depth && (up == "ORDER" || up == "GROUP" || up == "LIMIT" || up == "OFFSET" || up == "HAVING") {
			return
		}
		next := strings.ToUpper(toks[i+1].text)
		if isIdentifier(toks[i].text) && comparisonOps[next] {
			add(toks[i].text)
		}
	}
}

package protection

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Config is the protection checker's own config type.
type Config struct {
	AllowInsert      bool
	AllowCreate      bool
	AllowCopy        bool
	AllowSet         bool
	AllowCall        bool
	AllowAttach      bool
	AllowTransaction bool
	AllowMaintenance bool
	AllowExtensions  bool
}

// Verdict is the classification result for a single SQL string.
// When Allowed is false, Reason explains the block in a message safe to
// surface to the calling agent.
type Verdict struct {
	Allowed   bool
	Operation string
	Reason    string
}

// BlockedError is returned by Check when a statement is not allowed.
type BlockedError struct {
	Operation string
	Reason    string
}

func (e *BlockedError) Error() string {
	return e.Reason
}

// Checker validates SQL statements against protection rules.
type Checker struct {
	config Config
}

// NewChecker creates a new Checker with the given config.
func NewChecker(config Config) *Checker {
	return &Checker{config: config}
}

// Check classifies SQL and returns nil if allowed, or a *BlockedError
// describing why the statement is blocked.
func (c *Checker) Check(sql string) error {
	verdict := c.Classify(sql)
	if verdict.Allowed {
		return nil
	}
	return &BlockedError{Operation: verdict.Operation, Reason: verdict.Reason}
}

// Classify tokenizes SQL and classifies it by its leading statement keyword.
// Statements are blocked by default: only keywords known to be read-only
// (or explicitly permitted by config) pass. String literals, quoted
// identifiers, comments, and dollar-quoted bodies never influence the
// classification.
func (c *Checker) Classify(sql string) Verdict {
	stmts := splitStatements(tokenize(sql))
	if len(stmts) == 0 {
		return blocked("", "query is empty")
	}
	if len(stmts) > 1 {
		return blocked("", fmt.Sprintf("multi-statement queries are not allowed: found %d statements", len(stmts)))
	}
	return c.classifyStatement(stmts[0])
}

// classifyStatement dispatches on the first keyword of a single statement.
func (c *Checker) classifyStatement(tokens []token) Verdict {
	// A query expression may be wrapped in parentheses: (SELECT 1).
	for len(tokens) > 0 && tokens[0].kind == punctTok && tokens[0].text == "(" {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return blocked("", "query is empty")
	}
	first := tokens[0]
	if first.kind != wordTok {
		return blocked("", fmt.Sprintf("query must start with a statement keyword, got %q", first.text))
	}
	op := strings.ToUpper(first.text)

	switch first.text {
	case "select", "values", "table", "from", "describe", "desc", "show", "summarize":
		return Verdict{Allowed: true, Operation: op}

	case "with":
		return c.classifyWith(tokens)

	case "explain":
		return c.classifyExplain(tokens)

	case "pragma":
		return c.classifyPragma(tokens)

	case "set", "reset":
		if !c.config.AllowSet {
			if name := settingName(tokens); name != "" {
				return blocked(op, fmt.Sprintf("%s statements are not allowed: %s %s", op, op, name))
			}
			return blocked(op, fmt.Sprintf("%s statements are not allowed", op))
		}
		return Verdict{Allowed: true, Operation: op}

	case "insert":
		if !c.config.AllowInsert {
			return blocked(op, "INSERT statements are not allowed")
		}
		return Verdict{Allowed: true, Operation: op}

	case "create":
		if !c.config.AllowCreate {
			return blocked(op, "CREATE statements are not allowed: DDL operations are blocked")
		}
		return Verdict{Allowed: true, Operation: op}

	case "copy":
		if !c.config.AllowCopy {
			return blocked(op, "COPY statements are not allowed: COPY can read and write files outside the database")
		}
		return Verdict{Allowed: true, Operation: op}

	case "call":
		if !c.config.AllowCall {
			return blocked(op, "CALL statements are not allowed: table functions can read files and modify engine state")
		}
		return Verdict{Allowed: true, Operation: op}

	case "attach":
		if !c.config.AllowAttach {
			return blocked(op, "ATTACH is not allowed: can open additional database files")
		}
		return Verdict{Allowed: true, Operation: op}

	case "detach":
		if !c.config.AllowAttach {
			return blocked(op, "DETACH is not allowed: can disconnect attached databases")
		}
		return Verdict{Allowed: true, Operation: op}

	case "use":
		if !c.config.AllowAttach {
			return blocked(op, "USE is not allowed: can switch the active database")
		}
		return Verdict{Allowed: true, Operation: op}

	case "begin", "commit", "rollback", "abort", "start", "end":
		if !c.config.AllowTransaction {
			return blocked(op, "transaction control statements are not allowed: each query runs as a single autocommit statement")
		}
		return Verdict{Allowed: true, Operation: op}

	case "vacuum":
		if !c.config.AllowMaintenance {
			return blocked(op, "VACUUM is not allowed: maintenance commands can rewrite storage and cause significant I/O load")
		}
		return Verdict{Allowed: true, Operation: op}

	case "analyze":
		if !c.config.AllowMaintenance {
			return blocked(op, "ANALYZE is not allowed: maintenance commands can cause significant I/O load")
		}
		return Verdict{Allowed: true, Operation: op}

	case "checkpoint":
		if !c.config.AllowMaintenance {
			return blocked(op, "CHECKPOINT is not allowed: forces a WAL flush and can cause significant I/O load")
		}
		return Verdict{Allowed: true, Operation: op}

	case "install":
		if !c.config.AllowExtensions {
			return blocked(op, "INSTALL is not allowed: extensions load arbitrary code into the engine")
		}
		return Verdict{Allowed: true, Operation: op}

	case "load":
		if !c.config.AllowExtensions {
			return blocked(op, "LOAD is not allowed: extensions load arbitrary code into the engine")
		}
		return Verdict{Allowed: true, Operation: op}

	case "force":
		return c.classifyForce(tokens)

	case "delete":
		return blocked(op, "DELETE statements are not allowed")

	case "update":
		return blocked(op, "UPDATE statements are not allowed")

	case "drop":
		return blocked(op, "DROP statements are not allowed")

	case "truncate":
		return blocked(op, "TRUNCATE statements are not allowed")

	case "alter":
		return blocked(op, "ALTER statements are not allowed: DDL operations are blocked")

	case "merge":
		return blocked(op, "MERGE statements are not allowed: MERGE can perform INSERT, UPDATE, and DELETE operations bypassing individual DML protection rules")

	case "export":
		return blocked(op, "EXPORT DATABASE is not allowed: can write database contents to disk")

	case "import":
		return blocked(op, "IMPORT DATABASE is not allowed: can overwrite database contents from disk")

	case "grant":
		return blocked(op, "GRANT statements are not allowed: can modify database permissions")

	case "revoke":
		return blocked(op, "REVOKE statements are not allowed: can modify database permissions")

	case "comment":
		return blocked(op, "COMMENT ON is not allowed: modifies database object metadata")

	case "prepare":
		return blocked(op, "PREPARE statements are not allowed: prepared statements can be executed later bypassing protection checks")

	case "execute":
		return blocked(op, "EXECUTE statements are not allowed: can run previously prepared statements bypassing protection checks")

	case "deallocate":
		return blocked(op, "DEALLOCATE statements are not allowed")
	}

	return blocked(op, fmt.Sprintf("unrecognized statement %q", first.text))
}

// classifyWith scans past the CTE definitions and classifies the main
// statement. Each CTE body (the parenthesized group after AS) is classified
// too, so WITH cannot smuggle a blocked statement.
func (c *Checker) classifyWith(tokens []token) Verdict {
	depth := 0
	prevWord := ""
	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.kind == punctTok {
			switch tok.text {
			case "(":
				if depth == 0 && (prevWord == "as" || prevWord == "materialized") {
					end := matchParen(tokens, i)
					inner := c.classifyStatement(tokens[i+1 : end])
					if !inner.Allowed {
						return blocked(inner.Operation, inner.Reason)
					}
					i = end
					prevWord = ""
					continue
				}
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
			}
			continue
		}
		if tok.kind == wordTok && depth == 0 {
			if isMainVerb(tok.text) {
				return c.classifyStatement(tokens[i:])
			}
			prevWord = tok.text
		}
	}
	return blocked("WITH", "WITH clause is missing a main statement")
}

// classifyExplain classifies the wrapped statement. EXPLAIN ANALYZE executes
// the statement for real, so the inner verdict always applies.
func (c *Checker) classifyExplain(tokens []token) Verdict {
	i := 1
	if i < len(tokens) && tokens[i].kind == wordTok && tokens[i].text == "analyze" {
		i++
	}
	if i >= len(tokens) {
		return blocked("EXPLAIN", "EXPLAIN requires a statement")
	}
	inner := c.classifyStatement(tokens[i:])
	if !inner.Allowed {
		return blocked("EXPLAIN", "EXPLAIN wraps a blocked statement: "+inner.Reason)
	}
	return Verdict{Allowed: true, Operation: "EXPLAIN"}
}

// classifyPragma allows read forms (PRAGMA database_list,
// PRAGMA table_info('t')) and treats the assignment form as a SET.
func (c *Checker) classifyPragma(tokens []token) Verdict {
	depth := 0
	for _, tok := range tokens[1:] {
		if tok.kind != punctTok {
			continue
		}
		switch tok.text {
		case "(":
			depth++
		case ")":
			if depth > 0 {
				depth--
			}
		case "=":
			if depth == 0 && !c.config.AllowSet {
				return blocked("PRAGMA", "PRAGMA assignment is not allowed: PRAGMA name=value modifies engine settings")
			}
		}
	}
	return Verdict{Allowed: true, Operation: "PRAGMA"}
}

// classifyForce resolves FORCE CHECKPOINT and FORCE INSTALL by their target.
func (c *Checker) classifyForce(tokens []token) Verdict {
	if len(tokens) > 1 && tokens[1].kind == wordTok {
		switch tokens[1].text {
		case "checkpoint":
			if !c.config.AllowMaintenance {
				return blocked("CHECKPOINT", "CHECKPOINT is not allowed: forces a WAL flush and can cause significant I/O load")
			}
			return Verdict{Allowed: true, Operation: "CHECKPOINT"}
		case "install":
			if !c.config.AllowExtensions {
				return blocked("INSTALL", "INSTALL is not allowed: extensions load arbitrary code into the engine")
			}
			return Verdict{Allowed: true, Operation: "INSTALL"}
		}
	}
	return blocked("FORCE", "unrecognized statement \"force\"")
}

// settingName extracts the setting being touched by SET/RESET, skipping
// scope modifiers.
func settingName(tokens []token) string {
	for _, tok := range tokens[1:] {
		if tok.kind != wordTok {
			return ""
		}
		switch tok.text {
		case "global", "session", "local", "variable":
			continue
		}
		return tok.text
	}
	return ""
}

func isMainVerb(word string) bool {
	switch word {
	case "select", "values", "table", "from", "insert", "update", "delete", "merge":
		return true
	}
	return false
}

// matchParen returns the index of the ")" closing the "(" at open, or
// len(tokens) when unbalanced.
func matchParen(tokens []token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		if tokens[i].kind != punctTok {
			continue
		}
		switch tokens[i].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(tokens)
}

func blocked(operation, reason string) Verdict {
	return Verdict{Operation: operation, Reason: reason}
}

type tokenKind int

const (
	wordTok tokenKind = iota
	identTok
	stringTok
	numberTok
	punctTok
)

// token is a lexical unit of the SQL text. Word tokens are lowercased;
// string, identifier, and number tokens keep their raw text.
type token struct {
	kind tokenKind
	text string
}

// tokenize scans SQL bytes into tokens, discarding whitespace, line
// comments, and nested block comments. Statement text inside single
// quotes, double quotes, and dollar quotes is captured as opaque tokens
// so it can never be mistaken for a keyword or separator.
func tokenize(sql string) []token {
	var tokens []token
	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			i++

		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && sql[i+1] == '*':
			depth := 1
			i += 2
			for i < n && depth > 0 {
				if sql[i] == '/' && i+1 < n && sql[i+1] == '*' {
					depth++
					i += 2
				} else if sql[i] == '*' && i+1 < n && sql[i+1] == '/' {
					depth--
					i += 2
				} else {
					i++
				}
			}

		case c == '\'':
			start := i
			i = scanQuoted(sql, i, '\'')
			tokens = append(tokens, token{stringTok, sql[start:i]})

		case c == '"':
			start := i
			i = scanQuoted(sql, i, '"')
			tokens = append(tokens, token{identTok, sql[start:i]})

		case c == '$':
			if end, ok := scanDollarQuote(sql, i); ok {
				tokens = append(tokens, token{stringTok, sql[i:end]})
				i = end
			} else {
				tokens = append(tokens, token{punctTok, "$"})
				i++
			}

		case isWordStart(c):
			start := i
			for i < n && isWordChar(sql[i]) {
				i++
			}
			tokens = append(tokens, token{wordTok, strings.ToLower(sql[start:i])})

		case c >= '0' && c <= '9':
			start := i
			for i < n && (isWordChar(sql[i]) || sql[i] == '.') {
				i++
			}
			tokens = append(tokens, token{numberTok, sql[start:i]})

		default:
			tokens = append(tokens, token{punctTok, string(c)})
			i++
		}
	}
	return tokens
}

// scanQuoted consumes a quoted run starting at start, honoring the SQL
// doubled-quote escape. Returns the index just past the closing quote,
// or len(sql) when unterminated.
func scanQuoted(sql string, start int, quote byte) int {
	i := start + 1
	for i < len(sql) {
		if sql[i] == quote {
			if i+1 < len(sql) && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(sql)
}

// scanDollarQuote consumes a $tag$...$tag$ string starting at start.
// Returns false when the text at start is not a dollar-quote opener
// (for example a $1 positional parameter).
func scanDollarQuote(sql string, start int) (int, bool) {
	i := start + 1
	for i < len(sql) && isWordChar(sql[i]) {
		i++
	}
	if i >= len(sql) || sql[i] != '$' {
		return 0, false
	}
	if i > start+1 && sql[start+1] >= '0' && sql[start+1] <= '9' {
		return 0, false
	}
	delim := sql[start : i+1]
	rest := strings.Index(sql[i+1:], delim)
	if rest < 0 {
		return len(sql), true
	}
	return i + 1 + rest + len(delim), true
}

// splitStatements groups tokens by top-level semicolons, dropping empty
// groups so a trailing semicolon does not count as a second statement.
func splitStatements(tokens []token) [][]token {
	var stmts [][]token
	var cur []token
	for _, tok := range tokens {
		if tok.kind == punctTok && tok.text == ";" {
			if len(cur) > 0 {
				stmts = append(stmts, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, tok)
	}
	if len(cur) > 0 {
		stmts = append(stmts, cur)
	}
	return stmts
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isWordChar(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}

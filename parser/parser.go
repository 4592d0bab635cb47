package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// QueryType represents the type of SQL query
type QueryType int

const (
	QueryUnknown QueryType = iota
	QuerySelect
	QueryInsert
	QueryUpdate
	QueryDelete
)

// String returns the lowercase label used in logs and metrics
func (t QueryType) String() string {
	switch t {
	case QuerySelect:
		return "select"
	case QueryInsert:
		return "insert"
	case QueryUpdate:
		return "update"
	case QueryDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParsedQuery contains extracted information from a SQL query
type ParsedQuery struct {
	Type      QueryType
	File      string // Source file from hint
	Line      int    // Source line from hint
	Returning bool   // Statement has an output clause (RETURNING / OUTPUT)
	Query     string // Query with hint comments removed
}

var (
	// Match /* file:user.go line:42 */ or /*file:user.go*/
	hintRegex = regexp.MustCompile(`/\*\s*(file:(\S+))?\s*(line:(\d+))?\s*\*/`)
	// Match query type (allows comments before keyword)
	queryTypeRegex = regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE)\b`)
	// Match string literals
	stringLiteralRegex = regexp.MustCompile(`'[^']*'|"[^"]*"`)
	// Match output clauses: PostgreSQL/SQLite RETURNING, SQL Server OUTPUT INSERTED/DELETED
	returningRegex = regexp.MustCompile(`(?i)\bRETURNING\b|\bOUTPUT\s+(INSERTED|DELETED)\.`)
)

// Parse extracts metadata from a SQL query
func Parse(query string) *ParsedQuery {
	p := &ParsedQuery{
		Query: query,
		Type:  QueryUnknown,
	}

	// Determine query type
	if matches := queryTypeRegex.FindStringSubmatch(query); matches != nil {
		switch strings.ToUpper(matches[1]) {
		case "SELECT":
			p.Type = QuerySelect
		case "INSERT":
			p.Type = QueryInsert
		case "UPDATE":
			p.Type = QueryUpdate
		case "DELETE":
			p.Type = QueryDelete
		}
	}

	// Extract hints from comments
	if matches := hintRegex.FindStringSubmatch(query); matches != nil {
		if matches[2] != "" {
			p.File = matches[2]
		}
		if matches[4] != "" {
			p.Line, _ = strconv.Atoi(matches[4])
		}
		// Remove the hint comment from the query
		p.Query = hintRegex.ReplaceAllString(query, "")
		p.Query = strings.TrimSpace(p.Query)
	}

	// Literals may contain the keyword
	p.Returning = returningRegex.MatchString(stringLiteralRegex.ReplaceAllString(p.Query, "''"))

	return p
}

// IsWritable returns true if query is a write operation (INSERT, UPDATE, DELETE)
func (p *ParsedQuery) IsWritable() bool {
	return p.Type == QueryInsert ||
		p.Type == QueryUpdate ||
		p.Type == QueryDelete
}

// IsBatchable returns true if the write can join a batch whose result is a
// plain affected-row count. Writes with an output clause return rows.
func (p *ParsedQuery) IsBatchable() bool {
	return p.IsWritable() && !p.Returning
}

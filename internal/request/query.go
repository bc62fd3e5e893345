package request

// AccessQuery hands a connector-specific query to the workspace.
type AccessQuery struct {
	Base
	Workspace string
	Query     string
	Limit     int

	Columns []string
	Tuples  [][]any
}

func (*AccessQuery) Kind() string     { return "access-query" }
func (*AccessQuery) IsReadOnly() bool { return true }

// FullTextSearch hands a search expression to the workspace.
type FullTextSearch struct {
	Base
	Workspace  string
	Expression string
	Limit      int

	Columns []string
	Tuples  [][]any
}

func (*FullTextSearch) Kind() string     { return "full-text-search" }
func (*FullTextSearch) IsReadOnly() bool { return true }

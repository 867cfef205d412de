// Package tools defines the data model shared by the router layers:
// tool descriptors, tool-call requests and results, and the error
// classification used to normalize transport and tool failures.
package tools

// Package main provides the entry point of accessgate, a role and context
// aware authorization engine. The start command serves the engine over a
// JSON HTTP API built on Fiber, with dynamic grants, a two tier decision
// cache and a risk scored audit trail kept in memory. The check command
// evaluates a single request from the command line.
package main

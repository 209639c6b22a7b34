// Package main hosts the tally CLI entrypoint and command graph.
//
// The Cobra-based command tree maps each pipeline stage to a command (fetch,
// parse, link, create-transactions) and chains them in run for cron use. The
// shared commandContext resolves configuration, logging and the opened stores
// once per invocation so subcommands only sequence calls into the internal
// packages and render their summaries.
package main

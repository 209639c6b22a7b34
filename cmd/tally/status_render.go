package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"tally/internal/preflight"
	"tally/internal/receipts"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	labelWidth = 22
	lineIndent = "  "
)

var kindLabels = map[statusKind]string{
	statusInfo:  "INFO",
	statusOK:    "OK",
	statusWarn:  "WARN",
	statusError: "FAIL",
}

var kindColors = map[statusKind]string{
	statusInfo:  ansiBlue,
	statusOK:    ansiGreen,
	statusWarn:  ansiYellow,
	statusError: ansiRed,
}

// renderStatusLine formats "  label: [KIND] message", colored when writing to a terminal.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + kindLabels[kind] + "]"
	if message != "" {
		tag += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", lineIndent, labelWidth, label+":", tag)
	if colorize {
		return kindColors[kind] + line + ansiReset
	}
	return line
}

// renderCheck formats one doctor result.
func renderCheck(result preflight.Result, colorize bool) string {
	kind := statusOK
	if !result.Passed {
		kind = statusError
	}
	return renderStatusLine(result.Name, kind, result.Detail, colorize)
}

// documentStatusKind maps a document status onto a display severity.
func documentStatusKind(status receipts.Status, count int) statusKind {
	if count == 0 {
		return statusInfo
	}
	switch status {
	case receipts.StatusSuccess:
		return statusOK
	case receipts.StatusNeedsReview, receipts.StatusPending:
		return statusWarn
	case receipts.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package parser turns raw document text into Task records.
//
// Two document shapes are supported: plain text with checklist lines, and
// node-graph (canvas) documents whose text nodes are concatenated and run
// through the same text parser. Two additional extraction modes derive
// synthetic tasks from a document's structured metadata (see filetasks.go).
//
// The parser has no knowledge of indexing or caching. It fails soft: a
// malformed document yields zero tasks and an error for the caller to log,
// never a panic or a batch abort.
package parser

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/taskweave/taskweave/internal/task"
)

var tracer = otel.Tracer("taskweave.parser")

// Termination bounds for adversarial input.
const (
	// maxNesting caps parent/child depth; deeper items attach to the
	// deepest tracked ancestor.
	maxNesting = 16

	// maxIterations caps the number of processed lines per document.
	maxIterations = 200000
)

// checklistRe matches ordered/unordered list markers with a bracketed
// status character: "- [ ] text", "* [x] text", "3. [/] text".
var checklistRe = regexp.MustCompile(`^(\s*)(?:[-*+]|\d+\.)\s+\[(.)\]\s+(.*)$`)

// headingRe matches ATX headings.
var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// Inline metadata notations.
var (
	// dataviewFieldRe matches bracketed "[key:: value]" fields.
	dataviewFieldRe = regexp.MustCompile(`\[([A-Za-z][\w-]*)::\s*([^\]]*)\]`)

	// dataviewBareRe matches a trailing bare "key:: value" field.
	dataviewBareRe = regexp.MustCompile(`(?:^|\s)([A-Za-z][\w-]*)::\s+(.+?)\s*$`)

	// tagRe matches "#tag" tokens (unicode letters allowed).
	tagRe = regexp.MustCompile(`#[\p{L}\p{N}_][\p{L}\p{N}_\-/]*`)

	// contextRe matches "@context" tokens.
	contextRe = regexp.MustCompile(`@([\p{L}\p{N}_\-]+)`)

	// emojiDateRe captures a date following a marker emoji.
	emojiDateRe = regexp.MustCompile(`(📅|🛫|⏳|✅|❌|➕)\s*(\d{4}[-/]\d{2}[-/]\d{2}(?:[ T]\d{2}:\d{2}(?::\d{2})?)?)`)

	// emojiTokenRe captures non-date marker emoji with their argument.
	emojiTokenRe = regexp.MustCompile(`(🔁|🆔|⛔|🏁)\s*([^📅🛫⏳✅❌➕🔁🆔⛔🏁🔺⏫🔼🔽⏬#@]*)`)

	// emojiPriorityRe matches priority glyphs.
	emojiPriorityRe = regexp.MustCompile(`(🔺|⏫|🔼|🔽|⏬)`)

	// spaceRuns collapses whitespace left behind by token removal.
	spaceRuns = regexp.MustCompile(`[ \t]{2,}`)
)

// emojiDateTargets maps marker emoji to metadata date fields.
var emojiDateTargets = map[string]string{
	"📅": "due",
	"🛫": "start",
	"⏳": "scheduled",
	"✅": "completed",
	"❌": "cancelled",
	"➕": "created",
}

// Config controls the text parser.
//
// Both metadata notations are independently configurable; when both are
// enabled and disagree on a field, the compact emoji notation wins.
type Config struct {
	// EmojiEnabled turns on the compact emoji notation.
	EmojiEnabled bool `yaml:"emojiEnabled" json:"emojiEnabled"`

	// DataviewEnabled turns on the "key:: value" notation.
	DataviewEnabled bool `yaml:"dataviewEnabled" json:"dataviewEnabled"`

	// IgnoreHeadings drops tasks under headings matching any of the
	// comma-separated, case-insensitive substrings.
	IgnoreHeadings string `yaml:"ignoreHeadings" json:"ignoreHeadings"`

	// FocusHeadings keeps only tasks under headings matching any of the
	// comma-separated, case-insensitive substrings.
	FocusHeadings string `yaml:"focusHeadings" json:"focusHeadings"`

	// ProjectTagPrefix overrides the tag prefix recognized as a project
	// marker. Default "project".
	ProjectTagPrefix string `yaml:"projectTagPrefix" json:"projectTagPrefix"`

	// ContextTagPrefix overrides the tag prefix recognized as a context
	// marker (in addition to "@..." tokens). Default "context".
	ContextTagPrefix string `yaml:"contextTagPrefix" json:"contextTagPrefix"`

	// DailyNoteFormat, when non-empty, is the time layout used to read a
	// calendar date from a daily note's basename. Undated tasks in such a
	// note inherit that date as their due date.
	DailyNoteFormat string `yaml:"dailyNoteFormat" json:"dailyNoteFormat"`

	// CanvasSeparator joins canvas text nodes before parsing.
	// Default "\n\n".
	CanvasSeparator string `yaml:"canvasSeparator" json:"canvasSeparator"`

	// FileTasks configures metadata/tag task extraction (filetasks.go).
	FileTasks FileTaskConfig `yaml:"fileTasks" json:"fileTasks"`
}

// DefaultConfig returns the parser defaults: both notations on, no
// heading filters.
func DefaultConfig() Config {
	return Config{
		EmojiEnabled:     true,
		DataviewEnabled:  true,
		ProjectTagPrefix: "project",
		ContextTagPrefix: "context",
		CanvasSeparator:  "\n\n",
	}
}

// Input is one document to parse.
type Input struct {
	// Content is the raw document body.
	Content string

	// FilePath is the normalized path of the document.
	FilePath string

	// FileMeta is the document's structured metadata (frontmatter), used
	// by metadata/tag task extraction and date inheritance. May be nil.
	FileMeta map[string]any

	// ProjectData is the enhanced metadata from the project resolver,
	// folded into Extra on every task. May be nil.
	ProjectData map[string]any

	// TgProject is the resolved project descriptor to attach. May be nil.
	TgProject *task.TgProject
}

// Parser extracts tasks from documents.
//
// Thread Safety: Safe for concurrent use; all state is per-call.
type Parser struct {
	cfg Config
}

// New creates a parser with the given configuration.
func New(cfg Config) *Parser {
	if cfg.CanvasSeparator == "" {
		cfg.CanvasSeparator = "\n\n"
	}
	if cfg.ProjectTagPrefix == "" {
		cfg.ProjectTagPrefix = "project"
	}
	if cfg.ContextTagPrefix == "" {
		cfg.ContextTagPrefix = "context"
	}
	return &Parser{cfg: cfg}
}

// Parse extracts tasks from a plain text document.
//
// Description:
//
//	Recognizes checklist lines, extracts both metadata notations, builds
//	the parent/child hierarchy from indentation, applies heading scope
//	filters, and appends any metadata/tag derived tasks.
//
// Outputs:
//
//	[]task.Task - Extracted tasks; empty (never nil) on failure.
//	error - Non-nil when parsing was degraded (iteration budget). The
//	        returned tasks are still usable.
func (p *Parser) Parse(ctx context.Context, in Input) ([]task.Task, error) {
	_, span := tracer.Start(ctx, "parser.Parse")
	defer span.End()
	span.SetAttributes(attribute.String("file_path", in.FilePath))

	tasks, err := p.parseText(in)

	if extra := p.extractFileTasks(in); len(extra) > 0 {
		tasks = append(tasks, extra...)
	}

	span.SetAttributes(attribute.Int("tasks", len(tasks)))
	return tasks, err
}

// nestEntry tracks one open ancestor while building the hierarchy.
type nestEntry struct {
	indent int
	taskAt int // index into the result slice
}

func (p *Parser) parseText(in Input) ([]task.Task, error) {
	tasks := make([]task.Task, 0, 8)

	var headings []headingEntry
	var stack []nestEntry
	var budgetErr error

	inherited := p.inheritedDate(in)

	lines := strings.Split(in.Content, "\n")
	for i, line := range lines {
		if i >= maxIterations {
			budgetErr = ErrIterationBudget
			break
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			headings = pushHeading(headings, len(m[1]), strings.TrimSpace(m[2]))
			stack = stack[:0]
			continue
		}

		m := checklistRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		indent := indentWidth(m[1])
		status := m[2]
		body := m[3]

		tk := p.buildTask(in, i, status, body, line)
		tk.Metadata.Heading = headingTitles(headings)

		if inherited != 0 && tk.Metadata.DueDate == 0 &&
			tk.Metadata.ScheduledDate == 0 && tk.Metadata.StartDate == 0 {
			tk.Metadata.DueDate = inherited
		}

		// Pop ancestors at equal or deeper indentation.
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := &tasks[stack[len(stack)-1].taskAt]
			tk.Metadata.Parent = parent.ID
			parent.Metadata.Children = append(parent.Metadata.Children, tk.ID)
		}
		if len(stack) < maxNesting {
			stack = append(stack, nestEntry{indent: indent, taskAt: len(tasks)})
		}

		tasks = append(tasks, tk)
	}

	tasks = p.applyHeadingFilters(tasks)
	return tasks, budgetErr
}

// buildTask parses one checklist body into a Task.
func (p *Parser) buildTask(in Input, line int, status, body, raw string) task.Task {
	src := task.MarkdownSource{Line: line}
	tk := task.Task{
		ID:           src.TaskID(in.FilePath),
		FilePath:     in.FilePath,
		Line:         line,
		Status:       status,
		Completed:    status == "x" || status == "X",
		OriginalText: raw,
		Source:       src,
	}

	content := body

	if p.cfg.DataviewEnabled {
		content = p.extractDataview(content, &tk.Metadata)
	}
	if p.cfg.EmojiEnabled {
		content = p.extractEmoji(content, &tk.Metadata)
	}
	content = p.extractTags(content, &tk.Metadata)

	tk.Content = strings.TrimSpace(spaceRuns.ReplaceAllString(content, " "))
	tk.Metadata.TgProject = in.TgProject
	if len(in.ProjectData) > 0 {
		if tk.Metadata.Extra == nil {
			tk.Metadata.Extra = make(map[string]any, len(in.ProjectData))
		}
		for k, v := range in.ProjectData {
			if _, exists := tk.Metadata.Extra[k]; !exists {
				tk.Metadata.Extra[k] = v
			}
		}
	}
	return tk
}

// extractDataview pulls "key:: value" fields out of the content.
func (p *Parser) extractDataview(content string, md *task.Metadata) string {
	apply := func(key, value string) {
		p.applyField(strings.ToLower(key), strings.TrimSpace(value), md)
	}

	content = dataviewFieldRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := dataviewFieldRe.FindStringSubmatch(m)
		apply(sub[1], sub[2])
		return ""
	})

	if sub := dataviewBareRe.FindStringSubmatch(content); sub != nil {
		apply(sub[1], sub[2])
		content = strings.TrimSuffix(content, sub[0])
	}
	return content
}

// extractEmoji pulls compact-notation tokens out of the content. Emoji
// wins field-level ties against dataview, so it runs second and
// overwrites unconditionally.
func (p *Parser) extractEmoji(content string, md *task.Metadata) string {
	content = emojiDateRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := emojiDateRe.FindStringSubmatch(m)
		if ms, ok := ParseDate(sub[2]); ok {
			setDate(md, emojiDateTargets[sub[1]], ms, true)
		}
		return ""
	})

	content = emojiTokenRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := emojiTokenRe.FindStringSubmatch(m)
		arg := strings.TrimSpace(sub[2])
		if arg == "" {
			return m
		}
		switch sub[1] {
		case "🔁":
			md.Recurrence = arg
		case "🆔":
			md.ID = arg
		case "⛔":
			md.DependsOn = splitList(arg)
		case "🏁":
			md.OnCompletion = arg
		}
		return ""
	})

	content = emojiPriorityRe.ReplaceAllStringFunc(content, func(m string) string {
		if pr, ok := ParsePriority(m); ok {
			md.Priority = pr
		}
		return ""
	})

	return content
}

// extractTags collects "#tag" and "@context" tokens. Tags stay in the
// content (they are part of the display text by convention); context
// and project prefix tags are also folded into their dedicated fields.
func (p *Parser) extractTags(content string, md *task.Metadata) string {
	projectPrefix := "#" + p.cfg.ProjectTagPrefix + "/"
	contextPrefix := "#" + p.cfg.ContextTagPrefix + "/"

	for _, tag := range tagRe.FindAllString(content, -1) {
		md.Tags = appendUnique(md.Tags, tag)
		switch {
		case strings.HasPrefix(tag, projectPrefix):
			if md.Project == "" {
				md.Project = strings.TrimPrefix(tag, projectPrefix)
			}
		case strings.HasPrefix(tag, contextPrefix):
			if md.Context == "" {
				md.Context = strings.TrimPrefix(tag, contextPrefix)
			}
		}
	}

	content = contextRe.ReplaceAllStringFunc(content, func(m string) string {
		if md.Context == "" {
			md.Context = strings.TrimPrefix(m, "@")
		}
		return ""
	})

	return content
}

// applyField maps a dataview key to the matching metadata field.
func (p *Parser) applyField(key, value string, md *task.Metadata) {
	switch key {
	case "due", "duedate", "deadline":
		if ms, ok := ParseDate(value); ok {
			setDate(md, "due", ms, false)
		}
	case "start", "startdate":
		if ms, ok := ParseDate(value); ok {
			setDate(md, "start", ms, false)
		}
	case "scheduled", "scheduleddate":
		if ms, ok := ParseDate(value); ok {
			setDate(md, "scheduled", ms, false)
		}
	case "completion", "completed", "done":
		if ms, ok := ParseDate(value); ok {
			setDate(md, "completed", ms, false)
		}
	case "cancelled", "canceled":
		if ms, ok := ParseDate(value); ok {
			setDate(md, "cancelled", ms, false)
		}
	case "created", "createddate":
		if ms, ok := ParseDate(value); ok {
			setDate(md, "created", ms, false)
		}
	case "priority":
		if pr, ok := ParsePriority(value); ok && md.Priority == 0 {
			md.Priority = pr
		}
	case "project":
		if md.Project == "" {
			md.Project = value
		}
	case "context":
		if md.Context == "" {
			md.Context = value
		}
	case "repeat", "recurrence":
		if md.Recurrence == "" {
			md.Recurrence = value
		}
	case "id":
		if md.ID == "" {
			md.ID = value
		}
	case "dependson", "depends":
		if len(md.DependsOn) == 0 {
			md.DependsOn = splitList(value)
		}
	case "oncompletion":
		if md.OnCompletion == "" {
			md.OnCompletion = value
		}
	default:
		if md.Extra == nil {
			md.Extra = make(map[string]any)
		}
		md.Extra[key] = value
	}
}

// setDate writes one of the date fields. overwrite selects emoji-wins
// semantics; dataview only fills empty fields.
func setDate(md *task.Metadata, field string, ms int64, overwrite bool) {
	target := map[string]*int64{
		"due":       &md.DueDate,
		"start":     &md.StartDate,
		"scheduled": &md.ScheduledDate,
		"completed": &md.CompletedDate,
		"cancelled": &md.CancelledDate,
		"created":   &md.CreatedDate,
	}[field]
	if target == nil {
		return
	}
	if overwrite || *target == 0 {
		*target = ms
	}
}

// inheritedDate reads a calendar date from a daily note's basename
// using the configured layout.
func (p *Parser) inheritedDate(in Input) int64 {
	if p.cfg.DailyNoteFormat == "" {
		return 0
	}
	base := in.FilePath
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	t, err := time.ParseInLocation(p.cfg.DailyNoteFormat, base, time.UTC)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

func indentWidth(s string) int {
	width := 0
	for _, r := range s {
		if r == '\t' {
			width += 4
		} else {
			width++
		}
	}
	return width
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

package core

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const EventSchemaVersion = 2

type ErrorObject struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

type Event struct {
	V     int          `json:"version"`
	TS    string       `json:"timestamp"`
	Cmd   string       `json:"command"`
	Type  string       `json:"type"`
	Level string       `json:"level,omitempty"`
	Code  string       `json:"code,omitempty"`
	Msg   string       `json:"message,omitempty"`
	Data  any          `json:"data,omitempty"`
	Err   *ErrorObject `json:"error,omitempty"`
}

func NowTS() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// Emitter receives pipeline events. Implementations must be safe for
// concurrent use: conversion workers emit from their own goroutines.
type Emitter interface {
	Emit(ev Event)
}

type NDJSONEmitter struct {
	mu      sync.Mutex
	w       io.Writer
	version int
}

func NewNDJSONEmitter(w io.Writer, version int) *NDJSONEmitter {
	if version <= 0 {
		version = EventSchemaVersion
	}
	return &NDJSONEmitter{w: w, version: version}
}

func (e *NDJSONEmitter) Emit(ev Event) {
	if ev.V == 0 {
		ev.V = e.version
	}
	if ev.TS == "" {
		ev.TS = NowTS()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := json.Marshal(ev)
	if err != nil {
		// Last resort: emit a minimal JSON line.
		fmt.Fprintf(e.w, "{\"version\":%d,\"timestamp\":\"%s\",\"command\":\"%s\",\"type\":\"error\",\"message\":\"failed to encode event: %v\"}\n", e.version, NowTS(), ev.Cmd, err)
		return
	}
	e.w.Write(b)
	e.w.Write([]byte("\n"))
}

type TextEmitter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	levels  map[string]lipgloss.Style
}

// NewTextEmitter writes human readable lines. Plain log events are only
// printed when verbose is set; status, warnings and errors always are.
func NewTextEmitter(w io.Writer, verbose bool) *TextEmitter {
	r := lipgloss.NewRenderer(w)
	return &TextEmitter{
		w:       w,
		verbose: verbose,
		levels: map[string]lipgloss.Style{
			"info":  r.NewStyle().Foreground(lipgloss.Color("6")),
			"warn":  r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
			"error": r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		},
	}
}

func (e *TextEmitter) Emit(ev Event) {
	if ev.Type == "log" && !e.verbose {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.Err != nil {
		fmt.Fprintf(e.w, "%s %s\n", e.prefix("error"), ev.Err.Message)
		if ev.Err.Detail != "" {
			fmt.Fprintf(e.w, "  detail: %s\n", ev.Err.Detail)
		}
		if ev.Err.Suggestion != "" {
			fmt.Fprintf(e.w, "  hint: %s\n", ev.Err.Suggestion)
		}
		return
	}
	if ev.Msg == "" {
		return
	}
	if ev.Level != "" {
		fmt.Fprintf(e.w, "%s %s\n", e.prefix(ev.Level), ev.Msg)
		return
	}
	fmt.Fprintln(e.w, ev.Msg)
}

func (e *TextEmitter) prefix(level string) string {
	tag := "[" + level + "]"
	if st, ok := e.levels[level]; ok {
		return st.Render(tag)
	}
	return tag
}

// DiscardEmitter drops every event.
type DiscardEmitter struct{}

func (DiscardEmitter) Emit(Event) {}

// EmitMaybe sends ev to e unless e is nil.
func EmitMaybe(e Emitter, ev Event) {
	if e != nil {
		e.Emit(ev)
	}
}

func Status(cmd, msg string, data any) Event {
	return Event{V: EventSchemaVersion, TS: NowTS(), Cmd: cmd, Type: "status", Level: "info", Msg: msg, Data: data}
}

func Log(cmd, msg string) Event {
	return Event{V: EventSchemaVersion, TS: NowTS(), Cmd: cmd, Type: "log", Level: "info", Msg: msg}
}

func Warn(cmd, msg string) Event {
	return Event{V: EventSchemaVersion, TS: NowTS(), Cmd: cmd, Type: "warning", Level: "warn", Msg: msg}
}

func Err(cmd string, eo ErrorObject) Event {
	return Event{V: EventSchemaVersion, TS: NowTS(), Cmd: cmd, Type: "error", Level: "error", Err: &eo, Msg: eo.Message}
}

func Result(cmd string, ok bool, data any) Event {
	status := "success"
	if !ok {
		status = "failure"
	}
	return Event{V: EventSchemaVersion, TS: NowTS(), Cmd: cmd, Type: "result", Level: "info", Data: map[string]any{"status": status, "data": data}}
}

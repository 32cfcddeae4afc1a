// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package telemetry defines the event reporting surface for the login
// flows. The concrete uploader is host-owned; the default reporter writes
// events to the process log.
package telemetry

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys attached to login events. Values must be sanitized before
// reporting: only classifications, never raw error text or identity data.
const (
	TriggerKey    = attribute.Key("login.trigger")
	PathKey       = attribute.Key("login.path")
	OutcomeKey    = attribute.Key("login.outcome")
	ErrorClassKey = attribute.Key("login.error_class")
	MessageKey    = attribute.Key("login.message")
)

// Outcomes of a reported operation.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeFailure  = "failure"
	OutcomeCanceled = "canceled"
)

// Reporter receives telemetry events.
type Reporter interface {
	ReportEvent(name string, attributes ...attribute.KeyValue)
}

type logReporter struct {
	sessionID string
}

// NewLogReporter returns a Reporter that writes events to the standard
// logger, tagged with a per-process session id.
func NewLogReporter() Reporter {
	return &logReporter{sessionID: uuid.NewString()}
}

func (r *logReporter) ReportEvent(name string, attributes ...attribute.KeyValue) {
	parts := make([]string, 0, len(attributes))
	for _, attr := range attributes {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value.Emit()))
	}

	log.Printf("telemetry[%s] %s %s", r.sessionID, name, strings.Join(parts, " "))
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) ReportEvent(name string, attributes ...attribute.KeyValue) {}

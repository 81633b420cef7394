// ABOUTME: Payload, MetricGroup and Entry models for Health Auto Export data.
// ABOUTME: Decodes both the {"data": {...}} envelope and the bare form.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidPayload is returned when a payload cannot be decoded or lacks
// required structure.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload is one export submission: named metric groups plus workouts.
type Payload struct {
	Metrics  []MetricGroup `json:"metrics"`
	Workouts []Entry       `json:"workouts,omitempty"`
}

// MetricGroup is a named, unit-tagged list of homogeneous data entries.
type MetricGroup struct {
	Name  string  `json:"name"`
	Units string  `json:"units,omitempty"`
	Data  []Entry `json:"data"`
}

type envelope struct {
	Data     *Payload      `json:"data"`
	Metrics  []MetricGroup `json:"metrics"`
	Workouts []Entry       `json:"workouts"`
}

// DecodePayload reads a payload from r. Numbers are kept as json.Number so
// fingerprints do not depend on float formatting.
func DecodePayload(r io.Reader) (*Payload, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	p := env.Data
	if p == nil {
		p = &Payload{Metrics: env.Metrics, Workouts: env.Workouts}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the structural requirements the ingest engine relies on.
// Field-level problems inside entries are left to the per-type mappers.
func (p *Payload) Validate() error {
	if len(p.Metrics) == 0 && len(p.Workouts) == 0 {
		return fmt.Errorf("%w: no metrics or workouts", ErrInvalidPayload)
	}
	for i, m := range p.Metrics {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: metric %d has no name", ErrInvalidPayload, i)
		}
	}
	return nil
}

// MetricCount returns the number of metric groups.
func (p *Payload) MetricCount() int {
	return len(p.Metrics)
}

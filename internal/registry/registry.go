// ABOUTME: Entity registry mapping metric types to storage descriptors.
// ABOUTME: Single source of tables, natural keys and conflict update sets.
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/harperreed/health-ingest/internal/models"
)

var (
	// ErrMalformed marks an entry that cannot be mapped to its shape.
	ErrMalformed = errors.New("malformed record")
	// ErrUnknownType is returned when no descriptor, generic included, applies.
	ErrUnknownType = errors.New("no registry entry")
)

// Shape is the storage lifecycle of a descriptor.
type Shape int

const (
	ShapeGeneric Shape = iota
	ShapeSpecialized
	ShapeOwned
)

func (s Shape) String() string {
	switch s {
	case ShapeGeneric:
		return "generic"
	case ShapeSpecialized:
		return "specialized"
	default:
		return "owned"
	}
}

// ColumnType is a portable column type; storage maps it per dialect.
type ColumnType int

const (
	TypeUUID ColumnType = iota
	TypeText
	TypeFloat
	TypeInt
	TypeBool
	TypeTime
	TypeJSON
)

// Column is one data column. Non-nullable text columns default to ''.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Row is one record keyed by column name.
type Row map[string]any

// Mapper converts a raw entry to a row. Errors wrap ErrMalformed.
type Mapper func(models.Entry) (Row, error)

// Descriptor defines an entity's table, natural key and update set.
type Descriptor struct {
	Type        string
	Aliases     []string
	Shape       Shape
	Table       string
	Parent      string
	OwnerColumn string
	Columns     []Column
	NaturalKey  []string
	Updatable   []string
	Map         Mapper
}

// ColumnNames returns id, the owner column when present, then data columns.
// Every bound record carries exactly these columns.
func (d *Descriptor) ColumnNames() []string {
	names := []string{"id"}
	if d.OwnerColumn != "" {
		names = append(names, d.OwnerColumn)
	}
	for _, c := range d.Columns {
		names = append(names, c.Name)
	}
	return names
}

// FieldsPerRecord is the number of bound parameters one record consumes.
func (d *Descriptor) FieldsPerRecord() int {
	return len(d.ColumnNames())
}

// Registry is an immutable lookup from metric type to descriptor.
type Registry struct {
	generic *Descriptor
	byType  map[models.MetricType]*Descriptor
	tables  []*Descriptor
}

// Lookup returns the descriptor for a metric type, case-insensitively.
// Types without a specialized shape use the generic descriptor.
func (r *Registry) Lookup(metricType string) (*Descriptor, error) {
	if d, ok := r.byType[models.NormalizeMetricType(metricType)]; ok {
		return d, nil
	}
	if r.generic == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, metricType)
	}
	return r.generic, nil
}

// Tables returns every distinct descriptor with parents before children.
func (r *Registry) Tables() []*Descriptor {
	return slices.Clone(r.tables)
}

// Validate checks that every key and update column is declared and that
// update sets never overlap natural keys.
func (r *Registry) Validate() error {
	seen := make(map[string]bool)
	for _, d := range r.tables {
		if seen[d.Table] {
			return fmt.Errorf("table %s registered twice", d.Table)
		}
		seen[d.Table] = true
		if d.Parent != "" && !seen[d.Parent] {
			return fmt.Errorf("table %s: parent %s must be registered first", d.Table, d.Parent)
		}
		if len(d.NaturalKey) == 0 {
			return fmt.Errorf("table %s: empty natural key", d.Table)
		}
		cols := d.ColumnNames()
		for _, k := range d.NaturalKey {
			if !slices.Contains(cols, k) {
				return fmt.Errorf("table %s: natural key column %s not declared", d.Table, k)
			}
		}
		for _, u := range d.Updatable {
			if !slices.Contains(cols, u) {
				return fmt.Errorf("table %s: updatable column %s not declared", d.Table, u)
			}
			if slices.Contains(d.NaturalKey, u) || u == "id" {
				return fmt.Errorf("table %s: updatable column %s is part of the key", d.Table, u)
			}
		}
		if d.Shape != ShapeOwned && d.Map == nil {
			return fmt.Errorf("table %s: no mapper", d.Table)
		}
	}
	return nil
}

func newRegistry(generic *Descriptor, specialized []*Descriptor) *Registry {
	r := &Registry{
		generic: generic,
		byType:  make(map[models.MetricType]*Descriptor),
	}
	r.tables = append(r.tables, Payloads, Metrics, Workouts, WorkoutValues, WorkoutPoints, RoutePoints, generic)

	for _, d := range specialized {
		r.byType[models.NormalizeMetricType(d.Type)] = d
		for _, alias := range d.Aliases {
			r.byType[models.NormalizeMetricType(alias)] = d
		}
		r.tables = append(r.tables, d)
	}
	return r
}

var defaultRegistry = newRegistry(Generic, specialized)

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

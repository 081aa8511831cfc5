package domain

import (
	"fmt"
	"strings"
)

// FieldMapping associates one source field with a target column.
type FieldMapping struct {
	SourceField  string   `json:"source_field" yaml:"source_field" validate:"required"`
	TargetTable  string   `json:"target_table" yaml:"target_table" validate:"required"`
	TargetColumn string   `json:"target_column" yaml:"target_column" validate:"required"`
	Confidence   *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// MappingSet is an immutable list of field mappings resolved against the schema registry.
type MappingSet struct {
	mappings []FieldMapping
	tables   []TargetTable
}

// NewMappingSet resolves every mapping's table. A table outside the registry is a
// configuration error.
func NewMappingSet(mappings []FieldMapping) (MappingSet, error) {
	set := MappingSet{
		mappings: make([]FieldMapping, len(mappings)),
		tables:   make([]TargetTable, len(mappings)),
	}
	for i, m := range mappings {
		table, err := ParseTargetTable(m.TargetTable)
		if err != nil {
			return MappingSet{}, fmt.Errorf("mapping %d (%s): %w", i, m.SourceField, err)
		}
		set.mappings[i] = m
		set.tables[i] = table
	}
	return set, nil
}

// Mappings returns a copy of the underlying field mappings.
func (s MappingSet) Mappings() []FieldMapping {
	out := make([]FieldMapping, len(s.mappings))
	copy(out, s.mappings)
	return out
}

// Len reports the number of mappings.
func (s MappingSet) Len() int {
	return len(s.mappings)
}

// Each visits every mapping with its resolved table in declaration order.
func (s MappingSet) Each(fn func(table TargetTable, mapping FieldMapping)) {
	for i, m := range s.mappings {
		fn(s.tables[i], m)
	}
}

// SourceFieldFor returns the source field mapped onto table.column, if any.
func (s MappingSet) SourceFieldFor(table TargetTable, column string) (string, bool) {
	for i, m := range s.mappings {
		if s.tables[i] == table && strings.EqualFold(m.TargetColumn, column) {
			return m.SourceField, true
		}
	}
	return "", false
}

// MappingProposal is the mapper's answer for a set of source columns. Available is
// false when the model produced nothing usable; callers must not read an unavailable
// proposal as "nothing needs mapping".
type MappingProposal struct {
	Available      bool           `json:"mapping_available"`
	Mappings       []FieldMapping `json:"mappings"`
	UnmappedFields []string       `json:"unmapped_fields"`
	Reason         string         `json:"reason,omitempty"`
}

// MappingUnavailable builds the distinguished no-mapping result.
func MappingUnavailable(reason string) MappingProposal {
	return MappingProposal{
		Available:      false,
		Mappings:       []FieldMapping{},
		UnmappedFields: []string{},
		Reason:         reason,
	}
}

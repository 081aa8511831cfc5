package processing

import (
	"fmt"
	"strings"

	"github.com/rpattn/invoiceflow/internal/domain"
)

// ValidateMappingSet checks every mapping against the schema registry. Unknown
// tables are rejected when the set is built, so this catches unknown columns.
func ValidateMappingSet(set domain.MappingSet) error {
	var err error
	set.Each(func(table domain.TargetTable, m domain.FieldMapping) {
		if err != nil {
			return
		}
		schema, ok := domain.SchemaFor(table)
		if !ok {
			err = fmt.Errorf("%w: unknown target table %q", domain.ErrConfiguration, m.TargetTable)
			return
		}
		if _, ok := schema.Column(columnKey(m.TargetColumn)); !ok {
			err = fmt.Errorf("%w: unknown column %q on table %s (source field %q)",
				domain.ErrConfiguration, m.TargetColumn, table, m.SourceField)
		}
	})
	return err
}

// Transform groups a raw record by target table. Mapped source fields missing
// from the record are left out; values are copied without coercion.
func Transform(record domain.SourceRecord, set domain.MappingSet) (domain.GroupedPayload, error) {
	grouped := domain.NewGroupedPayload()
	var err error
	set.Each(func(table domain.TargetTable, m domain.FieldMapping) {
		if err != nil {
			return
		}
		group, groupErr := grouped.Group(table)
		if groupErr != nil {
			err = groupErr
			return
		}
		if value, ok := record.Get(m.SourceField); ok {
			group[columnKey(m.TargetColumn)] = value
		}
	})
	if err != nil {
		return domain.GroupedPayload{}, err
	}
	return grouped, nil
}

func columnKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

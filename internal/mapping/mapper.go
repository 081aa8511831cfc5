package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rpattn/invoiceflow/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Mapper proposes field mappings through a Generator and validates its output.
type Mapper struct {
	generator Generator
	validate  *validator.Validate
	logger    logrus.FieldLogger
}

// NewMapper wraps generator.
func NewMapper(generator Generator, logger logrus.FieldLogger) *Mapper {
	return &Mapper{
		generator: generator,
		validate:  validator.New(),
		logger:    logger,
	}
}

type rawProposal struct {
	Mappings       []domain.FieldMapping `json:"mappings" validate:"required,min=1,dive"`
	UnmappedFields []string              `json:"unmapped_fields"`
}

// ProposeMapping asks the generator for a mapping of columns onto the schema
// registry. It never fails: any problem with the call or its output yields a
// mapping-unavailable proposal carrying the reason.
func (m *Mapper) ProposeMapping(ctx context.Context, columns []string, sample []domain.SourceRecord) domain.MappingProposal {
	if len(columns) == 0 {
		return domain.MappingUnavailable("no source columns to map")
	}

	prompt, err := BuildPrompt(columns, sample)
	if err != nil {
		return m.unavailable(err.Error())
	}

	text, err := m.generator.Generate(ctx, prompt, MappingResponseHint())
	if err != nil {
		return m.unavailable(fmt.Sprintf("generator error: %v", err))
	}

	proposal, err := m.parse(text, columns)
	if err != nil {
		m.logger.WithField("response", truncate(text, 1024)).Debug("rejected mapping response")
		return m.unavailable(err.Error())
	}
	return proposal
}

func (m *Mapper) unavailable(reason string) domain.MappingProposal {
	m.logger.WithField("reason", reason).Warn("mapping unavailable")
	return domain.MappingUnavailable(reason)
}

var (
	codeFence  = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	typeSuffix = regexp.MustCompile(`\s*\(.*\)\s*$`)
)

// parse validates text against the proposal shape and the schema registry.
func (m *Mapper) parse(text string, columns []string) (domain.MappingProposal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.MappingProposal{}, fmt.Errorf("empty response")
	}
	if match := codeFence.FindStringSubmatch(text); match != nil {
		text = match[1]
	}
	raw, err := m.decodeProposal(text)
	if err != nil {
		return domain.MappingProposal{}, err
	}

	known := make(map[string]bool, len(columns))
	for _, col := range columns {
		known[col] = true
	}

	mapped := make(map[string]bool, len(raw.Mappings))
	mappings := make([]domain.FieldMapping, 0, len(raw.Mappings))
	for i, fm := range raw.Mappings {
		resolved, err := resolveMapping(fm, known)
		if err != nil {
			return domain.MappingProposal{}, fmt.Errorf("mapping %d: %w", i, err)
		}
		mapped[resolved.SourceField] = true
		mappings = append(mappings, resolved)
	}

	return domain.MappingProposal{
		Available:      true,
		Mappings:       mappings,
		UnmappedFields: unmappedFields(columns, raw.UnmappedFields, known, mapped),
	}, nil
}

// decodeProposal tries every '{' in text as the start of the proposal object so
// braces in surrounding prose do not hide it. The first candidate's error is
// reported when none validates.
func (m *Mapper) decodeProposal(text string) (rawProposal, error) {
	var first error
	for offset := 0; offset < len(text); offset++ {
		idx := strings.IndexByte(text[offset:], '{')
		if idx < 0 {
			break
		}
		offset += idx

		decoder := json.NewDecoder(strings.NewReader(text[offset:]))
		decoder.DisallowUnknownFields()
		var raw rawProposal
		err := decoder.Decode(&raw)
		if err != nil {
			err = fmt.Errorf("malformed mapping JSON: %w", err)
		} else if verr := m.validate.Struct(raw); verr != nil {
			err = fmt.Errorf("invalid mapping response: %w", verr)
		}
		if err == nil {
			return raw, nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		return rawProposal{}, fmt.Errorf("response contains no JSON object")
	}
	return rawProposal{}, first
}

// resolveMapping canonicalizes table names and drops "(type)" annotations the
// model sometimes appends to column names.
func resolveMapping(fm domain.FieldMapping, known map[string]bool) (domain.FieldMapping, error) {
	source := strings.TrimSpace(fm.SourceField)
	if !known[source] {
		stripped := typeSuffix.ReplaceAllString(source, "")
		if !known[stripped] {
			return domain.FieldMapping{}, fmt.Errorf("unknown source field %q", fm.SourceField)
		}
		source = stripped
	}

	table, err := domain.ParseTargetTable(fm.TargetTable)
	if err != nil {
		return domain.FieldMapping{}, err
	}
	schema, _ := domain.SchemaFor(table)

	column := strings.ToLower(typeSuffix.ReplaceAllString(strings.TrimSpace(fm.TargetColumn), ""))
	if _, ok := schema.Column(column); !ok {
		return domain.FieldMapping{}, fmt.Errorf("unknown column %q on table %s", fm.TargetColumn, table)
	}

	return domain.FieldMapping{
		SourceField:  source,
		TargetTable:  string(table),
		TargetColumn: column,
		Confidence:   fm.Confidence,
	}, nil
}

// unmappedFields keeps the model's order for the columns it reported and appends
// any column it neither mapped nor reported.
func unmappedFields(columns []string, reported []string, known, mapped map[string]bool) []string {
	out := []string{}
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if !known[name] || mapped[name] || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, name := range reported {
		add(name)
	}
	for _, col := range columns {
		add(col)
	}
	return out
}

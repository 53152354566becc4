package eir

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"eirbridge/internal/models"
)

// Serialize encodes a canonical document as deterministic YAML: fixed key
// order, string scalars always double-quoted, other scalars plain, nested
// sequences and mappings in block form on indented lines, and empty
// collections as single-line [] / {} markers. Identical documents always
// produce byte-identical output, and scalar values round-trip losslessly.
func Serialize(doc *models.CanonicalDocument) (string, error) {
	root := documentNode(doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to finish encoding: %w", err)
	}
	return buf.String(), nil
}

func documentNode(doc *models.CanonicalDocument) *yaml.Node {
	entries := make([]*yaml.Node, len(doc.Entries))
	for i, rec := range doc.Entries {
		entries[i] = recordNode(rec)
	}

	return mapping(
		"metadata", metadataNode(doc.Metadata),
		"entries", sequence(entries),
	)
}

func metadataNode(m models.DocumentMetadata) *yaml.Node {
	return mapping(
		"format_version", str(m.FormatVersion),
		"created_at", str(m.CreatedAt),
		"source", str(m.Source),
		"patient", mapping(
			"name", str(m.Patient.Name),
			"birth_date", optStr(m.Patient.BirthDate),
			"personal_number", optStr(m.Patient.PersonalNumber),
		),
		"export_info", mapping(
			"total_entries", intScalar(m.ExportInfo.TotalEntries),
			"date_range", mapping(
				"start", str(m.ExportInfo.DateRange.Start),
				"end", str(m.ExportInfo.DateRange.End),
			),
			"healthcare_providers", stringSequence(m.ExportInfo.HealthcareProviders),
		),
	)
}

func recordNode(rec models.CanonicalRecord) *yaml.Node {
	return mapping(
		"id", str(rec.ID),
		"date", str(rec.Date),
		"time", str(rec.Time),
		"category", str(rec.Category),
		"type", str(rec.Type),
		"provider", mapping(
			"name", str(rec.Provider.Name),
			"region", str(rec.Provider.Region),
			"location", str(rec.Provider.Location),
		),
		"status", str(rec.Status),
		"responsible_person", mapping(
			"name", str(rec.ResponsiblePerson.Name),
			"role", str(rec.ResponsiblePerson.Role),
		),
		"content", mapping(
			"summary", str(rec.Content.Summary),
			"details", str(rec.Content.Details),
			"notes", stringSequence(rec.Content.Notes),
		),
		"attachments", stringSequence(rec.Attachments),
		"tags", stringSequence(rec.Tags),
	)
}

// str builds a double-quoted string scalar. Quoting every string keeps the
// output unambiguous regardless of content (dates, numbers-as-text, Swedish
// characters).
func str(v string) *yaml.Node {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!str",
		Style: yaml.DoubleQuotedStyle,
		Value: v,
	}
}

func intScalar(v int) *yaml.Node {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!int",
		Value: fmt.Sprintf("%d", v),
	}
}

func nullScalar() *yaml.Node {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!null",
		Value: "null",
	}
}

func optStr(v *string) *yaml.Node {
	if v == nil {
		return nullScalar()
	}
	return str(*v)
}

// mapping builds a block-style mapping from alternating key/value arguments.
// An empty mapping renders inline as {}.
func mapping(pairs ...any) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if len(pairs) == 0 {
		node.Style = yaml.FlowStyle
		return node
	}
	for i := 0; i < len(pairs); i += 2 {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: pairs[i].(string)}
		node.Content = append(node.Content, key, pairs[i+1].(*yaml.Node))
	}
	return node
}

// sequence builds a block-style sequence. An empty sequence renders inline
// as [].
func sequence(items []*yaml.Node) *yaml.Node {
	node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	if len(items) == 0 {
		node.Style = yaml.FlowStyle
		return node
	}
	node.Content = items
	return node
}

func stringSequence(values []string) *yaml.Node {
	items := make([]*yaml.Node, len(values))
	for i, v := range values {
		items[i] = str(v)
	}
	return sequence(items)
}

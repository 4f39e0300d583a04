package mindmap

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a document serialisation format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatDOT  Format = "dot"
)

// FormatFromPath picks a format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".dot", ".gv":
		return FormatDOT
	default:
		return FormatJSON
	}
}

// ParseJSON parses a document from JSON.
func ParseJSON(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("mindmap: decode json: %w", err)
	}
	return &d, nil
}

// ToJSON serialises a document to JSON.
func ToJSON(d *Document, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(d, "", "  ")
	}
	return json.Marshal(d)
}

// ParseYAML parses a document from YAML.
func ParseYAML(data []byte) (*Document, error) {
	var d Document
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("mindmap: decode yaml: %w", err)
	}
	return &d, nil
}

// ToYAML serialises a document to YAML.
func ToYAML(d *Document) ([]byte, error) {
	return yaml.Marshal(d)
}

// Parse decodes data in the given format. DOT is export-only.
func Parse(data []byte, f Format) (*Document, error) {
	switch f {
	case FormatYAML:
		return ParseYAML(data)
	case FormatJSON:
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("mindmap: cannot parse %s", f)
	}
}

// Encode serialises d in the given format.
func Encode(d *Document, f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		return ToYAML(d)
	case FormatDOT:
		return []byte(GenerateDOT(d)), nil
	case FormatJSON:
		return ToJSON(d, true)
	default:
		return nil, fmt.Errorf("mindmap: unknown format %q", f)
	}
}

// GenerateDOT converts the concept tree to Graphviz DOT format.
func GenerateDOT(d *Document) string {
	var sb strings.Builder

	sb.WriteString("digraph ConceptMap {\n")
	sb.WriteString("    rankdir=LR;\n")
	sb.WriteString("    node [shape=box, style=rounded, fontname=\"Helvetica\", fontsize=11];\n")
	sb.WriteString("\n")

	if d.Title != "" {
		sb.WriteString("    labelloc=\"t\";\n")
		sb.WriteString(fmt.Sprintf("    label=\"%s\";\n", escapeDOT(d.Title)))
		sb.WriteString("\n")
	}

	var edges []string
	for i := range d.Nodes {
		Walk(&d.Nodes[i], 0, func(n *NodeDoc, _ int) bool {
			attrs := []string{fmt.Sprintf("label=\"%s\"", escapeDOT(n.Title))}
			if n.Source == SourceAIGenerated {
				attrs = append(attrs, "style=\"rounded,dashed\"")
			}
			if n.Priority > 0 {
				attrs = append(attrs, fmt.Sprintf("penwidth=%d", 1+n.Priority/2))
			}
			sb.WriteString(fmt.Sprintf("    \"%s\" [%s];\n", escapeDOT(n.ID), strings.Join(attrs, ", ")))
			for _, c := range n.Children {
				edges = append(edges, fmt.Sprintf("    \"%s\" -> \"%s\";\n", escapeDOT(n.ID), escapeDOT(c.ID)))
			}
			return true
		})
	}

	if len(edges) > 0 {
		sb.WriteString("\n")
		for _, e := range edges {
			sb.WriteString(e)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func escapeDOT(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "<", "\\<")
	s = strings.ReplaceAll(s, ">", "\\>")
	return s
}

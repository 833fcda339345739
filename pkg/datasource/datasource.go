// Package datasource implements the default RowLoader: a CSV reader
// producing DataRows, plus a YAML-based ColumnMapping loader. Both are
// external collaborators per §1 ("Loading and parsing of ... tabular
// data (a CollectionLoader and RowLoader are assumed to yield
// already-parsed structures)"); stdlib encoding/csv is sufficient for
// the first-row-as-header shape this system needs, so no third-party
// CSV library is pulled in for this concern.
package datasource

import (
	"encoding/csv"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

// RowLoader is the external collaborator named in §1.
type RowLoader interface {
	Load(path string) ([]model.DataRow, error)
}

// CSVLoader reads a CSV file whose first row is the header.
type CSVLoader struct{}

// Load parses path into DataRows keyed by header name (§3 DataRow).
func (CSVLoader) Load(path string) ([]model.DataRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening data source %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing data source %q: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("data source %q has no rows", path)
	}

	header := records[0]
	rows := make([]model.DataRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(model.DataRow, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("data source %q has a header but no data rows", path)
	}
	return rows, nil
}

// MappingLoader loads a ColumnMapping from a YAML document.
type MappingLoader struct{}

type mappingDoc struct {
	Columns []columnDoc `yaml:"columns"`
	Globals []globalDoc `yaml:"globals,omitempty"`
}

type columnDoc struct {
	CSVColumn       string `yaml:"csv_column"`
	PlaceholderName string `yaml:"placeholder_name"`
	DataType        string `yaml:"data_type,omitempty"`
	Encoding        string `yaml:"encoding,omitempty"`
}

type globalDoc struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Load reads path into a ColumnMapping (§3 ColumnMapping, §6
// "ColumnMappingPath").
func (MappingLoader) Load(path string) (model.ColumnMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ColumnMapping{}, fmt.Errorf("reading column mapping %q: %w", path, err)
	}

	var doc mappingDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return model.ColumnMapping{}, fmt.Errorf("parsing column mapping %q: %w", path, err)
	}

	mapping := model.ColumnMapping{
		Columns: make([]model.ColumnSpec, len(doc.Columns)),
		Globals: make([]model.GlobalVariable, len(doc.Globals)),
	}
	for i, c := range doc.Columns {
		dt := model.DataType(c.DataType)
		if dt == "" {
			dt = model.TypeString
		}
		enc := model.Encoding(c.Encoding)
		if enc == "" {
			enc = model.EncodingNone
		}
		mapping.Columns[i] = model.ColumnSpec{
			CSVColumn:       c.CSVColumn,
			PlaceholderName: c.PlaceholderName,
			DataType:        dt,
			Encoding:        enc,
		}
	}
	for i, g := range doc.Globals {
		mapping.Globals[i] = model.GlobalVariable{Name: g.Name, Value: g.Value}
	}
	return mapping, nil
}

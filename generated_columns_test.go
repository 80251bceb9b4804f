package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectGeneratedColumnWarnings(t *testing.T) {
	table := &Table{
		Spec: TableSpec{Name: "certificate_batches", PrimaryKey: "id"},
		Columns: []ColumnMeta{
			{Name: "id", SourceType: "int8", Identity: true},
			{Name: "total", SourceType: "int4", Generated: "(issued + pending)"},
			{Name: "seq", SourceType: "int4", Identity: true},
			{Name: "name", SourceType: "text"},
		},
	}

	assert.Equal(t, []string{
		"generated column certificate_batches.total ((issued + pending)) will be materialized as plain data; generation expression is not recreated",
		"identity column certificate_batches.seq is not the primary key; it becomes a plain column without AUTO_INCREMENT",
	}, collectGeneratedColumnWarnings(table))
	assert.Empty(t, collectGeneratedColumnWarnings(nil))
}

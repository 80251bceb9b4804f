package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCharsetCollation(t *testing.T) {
	tests := []struct {
		charset, collation string
		wantErr            bool
	}{
		{"utf8mb4", "utf8mb4_unicode_ci", false},
		{"UTF8MB4", "", false},
		{"utf8mb4", "utf8mb4_0900_bin", false},
		{"latin1", "latin1_swedish_ci", false},
		{"binary", "binary", false},
		{"binary", "utf8mb4_bin", true},
		{"utf8mb4", "latin1_swedish_ci", true},
		{"koi8r", "", true},
		{"", "utf8mb4_bin", true},
	}
	for _, tt := range tests {
		err := validateCharsetCollation(tt.charset, tt.collation)
		assert.Equal(t, tt.wantErr, err != nil, "%s/%s: %v", tt.charset, tt.collation, err)
	}
}

func TestCollectCollationWarnings(t *testing.T) {
	table := &Table{
		Spec: TableSpec{Name: "users", PrimaryKey: "id"},
		Columns: []ColumnMeta{
			{Name: "id", SourceType: "int4"},
			{Name: "email", SourceType: "varchar"},
			{Name: "name", SourceType: "text"},
			{Name: "handle", SourceType: "citext"},
		},
		Constraints: []Constraint{
			{Name: "users_email_key", Kind: "UNIQUE", Columns: []string{"email"}},
			{Name: "users_handle_key", Kind: "UNIQUE", Columns: []string{"handle"}},
		},
	}

	assert.Equal(t, []string{
		"2 unique text column(s) will compare case-insensitively under utf8mb4_unicode_ci: users.email, users.handle",
	}, collectCollationWarnings(table, "utf8mb4_unicode_ci"))
	assert.Empty(t, collectCollationWarnings(table, "utf8mb4_bin"))
	assert.Empty(t, collectCollationWarnings(nil, "utf8mb4_unicode_ci"))
}

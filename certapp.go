package main

// defaultCertAppTables is the certificate application's table list in load
// order. Later tables reference rows of earlier ones, so the order matters
// once constraints are preserved.
func defaultCertAppTables() []TableSpec {
	names := []string{
		"users",
		"categories",
		"templates",
		"template_fields",
		"fonts",
		"cards",
		"certificates",
		"certificate_batches",
		"certificate_batch_items",
		"settings",
		"auth_settings",
		"seo",
		"layers",
		"user_logos",
		"user_signatures",
		"template_logos",
		"display_settings",
		"user_preferences",
	}
	tables := make([]TableSpec, 0, len(names)+1)
	for _, n := range names {
		tables = append(tables, TableSpec{Name: n, PrimaryKey: "id"})
	}
	return append(tables, TableSpec{Name: "session", PrimaryKey: "sid"})
}

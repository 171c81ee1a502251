package migrations

import (
	_ "embed"
)

//go:embed 0001_create_scenario_sets.sql
var createScenarioSetsSQL string

func init() {
	Migrations.MustRegister(
		execSQL(createScenarioSetsSQL),
		execSQL(`DROP TABLE IF EXISTS scenario_sets`),
	)
}

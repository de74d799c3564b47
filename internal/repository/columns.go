package repository

import (
	"encoding/json"
)

var versionedTables = []string{
	"hla_fact_rows",
	"hla_allele_names",
	"hla_allele_groups",
	"hla_group_p_groups",
	"hla_serology_alleles",
}

func encodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	encoded, _ := json.Marshal(values)
	return string(encoded)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullablePayload(payload json.RawMessage) interface{} {
	if len(payload) == 0 {
		return nil
	}
	return string(payload)
}

func nullableString(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

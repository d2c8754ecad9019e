package service

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Request fingerprints are the canonical serialization of an operation's
// semantic inputs. They are stored as the audit record's request_data and
// compared on request_id collisions to tell a genuine replay (same inputs)
// from a client mistake (same request id, different inputs).
//
// encoding/json marshals map keys in sorted order, which makes the output
// deterministic for identical inputs.

func issueFingerprint(operator, denomination string) string {
	return mustMarshal(map[string]any{
		"operator":     operator,
		"denomination": denomination,
	})
}

func importFingerprint(contentMD5 string) string {
	return mustMarshal(map[string]any{
		"content_md5": contentMD5,
	})
}

func exportFingerprint(count *int, operators, denominations []string) string {
	return mustMarshal(map[string]any{
		"count":         count,
		"operators":     sortedOrNil(operators),
		"denominations": sortedOrNil(denominations),
	})
}

// sortedOrNil returns a sorted copy, treating an empty filter as absent so
// `"operators": []` and a missing field fingerprint identically.
func sortedOrNil(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}

func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Maps of strings and ints cannot fail to marshal.
		panic(fmt.Sprintf("marshal fingerprint: %v", err))
	}
	return string(data)
}

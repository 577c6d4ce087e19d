package store

import (
	"encoding/json"
	"sort"
	"strings"
)

// SortRecords orders records ascending by the orderBy field like the realtime
// database does: missing values first, ties broken by key. "$key" or an empty
// orderBy sorts by key only.
func SortRecords(records []Record, orderBy string) {
	values := make(map[string]interface{}, len(records))
	if orderBy != "" && orderBy != "$key" {
		for _, r := range records {
			var doc map[string]interface{}
			if err := json.Unmarshal(r.Value, &doc); err == nil {
				values[r.Key] = doc[orderBy]
			}
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := values[records[i].Key], values[records[j].Key]
		if c := compare(a, b); c != 0 {
			return c < 0
		}
		return records[i].Key < records[j].Key
	})
}

// compare orders nil < bool < number < string, like the realtime database does
func compare(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}

	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

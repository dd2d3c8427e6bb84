package hydra

import (
	"fmt"
	"net/url"
	"strconv"
)

// filterOperators is the fixed operator vocabulary recognized by API Platform
// filters. An operator sub-key is serialized in bracket form (key[op]) even
// when it could also be read as a nested path segment.
var filterOperators = map[string]struct{}{
	"after":           {},
	"before":          {},
	"strictly_after":  {},
	"strictly_before": {},
	"lt":              {},
	"gt":              {},
	"lte":             {},
	"gte":             {},
	"between":         {},
}

// CompileFilter serializes a nested filter structure into query parameters.
//
// Sequences emit one parameter per element using key[index] naming, scalars
// emit key=value, and keyed structures recurse per sub-key: bracket form for
// the operator vocabulary (and below an `exists` key), dot form for everything
// else.
func CompileFilter(filter map[string]any, query url.Values) {
	for key, value := range filter {
		compileFilterValue(key, value, query)
	}
}

func compileFilterValue(rootKey string, value any, query url.Values) {
	switch v := value.(type) {
	case []any:
		for i, item := range v {
			query.Add(fmt.Sprintf("%s[%d]", rootKey, i), queryValue(item))
		}
	case []string:
		for i, item := range v {
			query.Add(fmt.Sprintf("%s[%d]", rootKey, i), item)
		}
	case map[string]any:
		for subKey, subValue := range v {
			if rootKey == "exists" || isFilterOperator(subKey) {
				compileFilterValue(fmt.Sprintf("%s[%s]", rootKey, subKey), subValue, query)
				continue
			}
			compileFilterValue(rootKey+"."+subKey, subValue, query)
		}
	default:
		query.Add(rootKey, queryValue(v))
	}
}

func isFilterOperator(key string) bool {
	_, ok := filterOperators[key]
	return ok
}

// queryValue renders a scalar filter value the way a query string expects it.
func queryValue(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case bool:
		return strconv.FormatBool(tv)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case int:
		return strconv.Itoa(tv)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", tv)
	}
}

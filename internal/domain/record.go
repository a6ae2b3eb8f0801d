package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is a loosely typed upstream object. The finance endpoints do not
// agree on field names, so every read goes through an alias chain.
type Record map[string]interface{}

// RawPayment is a payment entry as returned by the finance feed.
type RawPayment = Record

// RawWithdrawal is a withdrawal request as returned by the finance feed.
type RawWithdrawal = Record

// FinanceFeed is the combined payments and withdrawals payload.
type FinanceFeed struct {
	Payments  []RawPayment
	Withdraws []RawWithdrawal
}

// Get resolves a dotted path such as "order.total_amount". Missing
// segments and non-object intermediates yield nil.
func (r Record) Get(path string) interface{} {
	if r == nil {
		return nil
	}
	var current interface{} = map[string]interface{}(r)
	for _, segment := range strings.Split(path, ".") {
		obj, ok := asObject(current)
		if !ok {
			return nil
		}
		current, ok = obj[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// First returns the first defined value along the given alias chain.
func (r Record) First(paths ...string) interface{} {
	for _, p := range paths {
		if v := r.Get(p); isDefined(v) {
			return v
		}
	}
	return nil
}

// Number reads the alias chain and coerces the result with ToSafeNumber.
func (r Record) Number(paths ...string) float64 {
	return ToSafeNumber(r.First(paths...))
}

// String reads the alias chain as trimmed text. Numeric ids are
// rendered without exponent or trailing zeros.
func (r Record) String(paths ...string) string {
	return stringify(r.First(paths...))
}

// Object returns the first alias that holds a nested object.
func (r Record) Object(paths ...string) Record {
	for _, p := range paths {
		if obj, ok := asObject(r.Get(p)); ok {
			return Record(obj)
		}
	}
	return nil
}

// List returns the first alias that holds an array, keeping only the
// object elements.
func (r Record) List(paths ...string) []Record {
	for _, p := range paths {
		items, ok := r.Get(p).([]interface{})
		if !ok {
			continue
		}
		out := make([]Record, 0, len(items))
		for _, item := range items {
			if obj, ok := asObject(item); ok {
				out = append(out, Record(obj))
			}
		}
		return out
	}
	return nil
}

// FirstDefined returns the first candidate that is neither nil nor a
// blank string.
func FirstDefined(candidates ...interface{}) interface{} {
	for _, c := range candidates {
		if isDefined(c) {
			return c
		}
	}
	return nil
}

// RecordsFrom converts a decoded JSON array into records, dropping
// anything that is not an object.
func RecordsFrom(v interface{}) []Record {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if obj, ok := asObject(item); ok {
			out = append(out, Record(obj))
		}
	}
	return out
}

func isDefined(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return true
	}
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case Record:
		return t, true
	default:
		return nil, false
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

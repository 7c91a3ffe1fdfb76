package protocol

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	qerr "ts3query/internal/errors"
)

// Record is one decoded entity: a set of unique keys with their
// unescaped values.  Flag-style tokens (no '=') map to "".
type Record map[string]string

// ParseRecord decodes a single "key=value key2=value2 flag" line.  It
// returns nil for an empty line.
func ParseRecord(line string) Record {
	if line == "" {
		return nil
	}
	rec := make(Record)
	for _, tok := range strings.Split(line, " ") {
		if tok == "" {
			continue
		}
		key, value, found := strings.Cut(tok, "=")
		if !found {
			rec[tok] = ""
			continue
		}
		rec[key] = Decode(value)
	}
	return rec
}

// ParseRecordList splits body on the record separator '|' and parses
// each segment.  Server order is preserved.  It returns nil for an
// empty body.
func ParseRecordList(body string) []Record {
	if body == "" {
		return nil
	}
	segments := strings.Split(body, "|")
	out := make([]Record, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		out = append(out, ParseRecord(seg))
	}
	return out
}

// Has reports whether key is present, including as a bare flag.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Int returns the value of key as an int.
func (r Record) Int(key string) (int, error) {
	v, ok := r[key]
	if !ok {
		return 0, &qerr.ParseError{Op: "record", Field: key, Err: fmt.Errorf("missing")}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &qerr.ParseError{Op: "record", Field: key, Value: v, Err: err}
	}
	return n, nil
}

// Int64 returns the value of key as an int64.
func (r Record) Int64(key string) (int64, error) {
	v, ok := r[key]
	if !ok {
		return 0, &qerr.ParseError{Op: "record", Field: key, Err: fmt.Errorf("missing")}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &qerr.ParseError{Op: "record", Field: key, Value: v, Err: err}
	}
	return n, nil
}

// Bool reports whether key holds "1".  Missing keys are false.
func (r Record) Bool(key string) bool {
	return r[key] == "1"
}

// String re-encodes the record as a wire line with keys in sorted
// order.  Mainly useful for logging and raw output.
func (r Record) String() string {
	keys := r.Keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := r[k]; v != "" {
			parts = append(parts, k+"="+Encode(v))
		} else {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, " ")
}

// Keys returns the record's keys sorted alphabetically.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

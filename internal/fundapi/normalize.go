package fundapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/nt-accruals/internal/domain"
)

// field and object keep JSON objects in document order so that columns come
// out in the order the API sends them.
type field struct {
	key   string
	value interface{}
}

type object []field

// Normalize flattens a JSON response into a table. A top-level object becomes
// one row and an array of objects one row per element. Nested objects are
// flattened into dotted column names, arrays are kept as JSON text and nulls
// become empty cells. Columns appear in first-seen order; a row missing a
// column gets an empty cell. A literal dotted key and a nested path that
// flatten to the same name share one column, and the value that comes later
// in the record wins.
func Normalize(data []byte) (*domain.Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("Normalize: decoding response: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("Normalize: decoding response: trailing data after JSON value")
	}

	var records []object
	switch v := root.(type) {
	case object:
		records = []object{v}
	case []interface{}:
		for i, item := range v {
			obj, ok := item.(object)
			if !ok {
				return nil, fmt.Errorf("Normalize: element %d is %s, want object", i, kindOf(item))
			}
			records = append(records, obj)
		}
	default:
		return nil, fmt.Errorf("Normalize: response is %s, want object or array", kindOf(root))
	}

	table := &domain.Table{}
	index := make(map[string]int)
	flat := make([]map[string]string, 0, len(records))

	for _, rec := range records {
		row := make(map[string]string)
		flatten("", rec, row, func(col string) {
			if _, ok := index[col]; !ok {
				index[col] = len(table.Columns)
				table.Columns = append(table.Columns, col)
			}
		})
		flat = append(flat, row)
	}

	for _, row := range flat {
		cells := make([]string, len(table.Columns))
		for col, v := range row {
			cells[index[col]] = v
		}
		table.Rows = append(table.Rows, cells)
	}

	return table, nil
}

func flatten(prefix string, obj object, row map[string]string, seen func(string)) {
	for _, f := range obj {
		key := f.key
		if prefix != "" {
			key = prefix + "." + f.key
		}
		if nested, ok := f.value.(object); ok {
			flatten(key, nested, row, seen)
			continue
		}
		seen(key)
		row[key] = cellText(f.value)
	}
}

func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		var sb strings.Builder
		writeJSON(&sb, val)
		return sb.String()
	}
}

// writeJSON re-encodes a decoded value, keeping object key order.
func writeJSON(sb *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case object:
		sb.WriteByte('{')
		for i, f := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSON(sb, f.key)
			sb.WriteByte(':')
			writeJSON(sb, f.value)
		}
		sb.WriteByte('}')
	case []interface{}:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSON(sb, item)
		}
		sb.WriteByte(']')
	case nil:
		sb.WriteString("null")
	case json.Number:
		sb.WriteString(val.String())
	default:
		b, _ := json.Marshal(val)
		sb.Write(b)
	}
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := object{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T", keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, field{key: key, value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []interface{}{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

func kindOf(v interface{}) string {
	switch v.(type) {
	case object:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

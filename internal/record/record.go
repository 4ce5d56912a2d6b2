// Package record renders inventory reports into record store commands.
//
// A save command is "agent <id> <entity> save", the scan id separated by a space, then every schema field
// separated by a pipe. Absent values are rendered as NULL.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/ubuntu/insights-inventory/internal/constants"
	"github.com/ubuntu/insights-inventory/internal/inventory"
)

const (
	verbSave   = "save"
	verbDelete = "del"
)

// Encode renders a save command of entity for the endpoint.
//
// fields values are looked up by schema field name. Missing or nil values are rendered as NULL.
func Encode(entity Entity, endpointID string, scanID *int64, fields map[string]any) (string, error) {
	schema, ok := schemas[entity]
	if !ok {
		return "", fmt.Errorf("%w: unknown entity %q", inventory.ErrEncoding, entity)
	}

	var b strings.Builder
	b.WriteString(header(endpointID, entity, verbSave))

	b.WriteByte(' ')
	if scanID != nil {
		b.WriteString(strconv.FormatInt(*scanID, 10))
	} else {
		b.WriteString(constants.NullPlaceholder)
	}

	for _, f := range schema {
		b.WriteByte('|')
		v, err := render(f, fields[f.Name])
		if err != nil {
			return "", err
		}
		b.WriteString(v)
	}

	return checkSize(b.String())
}

// EncodeDelete renders the command dropping the records of entity which do not belong to scan scanID.
func EncodeDelete(entity Entity, endpointID string, scanID int64) (string, error) {
	if _, ok := schemas[entity]; !ok {
		return "", fmt.Errorf("%w: unknown entity %q", inventory.ErrEncoding, entity)
	}
	return checkSize(header(endpointID, entity, verbDelete) + " " + strconv.FormatInt(scanID, 10))
}

func header(endpointID string, entity Entity, verb string) string {
	return "agent " + endpointID + " " + string(entity) + " " + verb
}

// render returns the wire form of v for field f.
func render(f Field, v any) (string, error) {
	if v == nil {
		return constants.NullPlaceholder, nil
	}

	switch f.Kind {
	case Int:
		i, err := cast.ToInt64E(truncate(v))
		if err != nil {
			return "", fmt.Errorf("%w: field %q is not an integer: %v", inventory.ErrDecode, f.Name, err)
		}
		return strconv.FormatInt(i, 10), nil
	case Float:
		fl, err := cast.ToFloat64E(v)
		if err != nil {
			return "", fmt.Errorf("%w: field %q is not a number: %v", inventory.ErrDecode, f.Name, err)
		}
		return strconv.FormatFloat(fl, 'f', 6, 64), nil
	default:
		switch v.(type) {
		case map[string]any, []any:
			return "", fmt.Errorf("%w: field %q is not a scalar", inventory.ErrDecode, f.Name)
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return "", fmt.Errorf("%w: field %q is not a string: %v", inventory.ErrDecode, f.Name, err)
		}
		return s, nil
	}
}

// truncate drops the fractional part of JSON numbers, which cast refuses to do on strings.
func truncate(v any) any {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	}
	return v
}

// checkSize rejects commands which, with their terminator, would not fit the record store buffer.
func checkSize(cmd string) (string, error) {
	if len(cmd)+1 > constants.MaxCommandSize {
		return "", fmt.Errorf("%w: command of %d bytes exceeds the maximum of %d", inventory.ErrEncoding, len(cmd)+1, constants.MaxCommandSize)
	}
	return cmd, nil
}

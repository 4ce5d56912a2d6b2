// Package recordstore implements the record store daemon: it listens for the commands of the decoder and
// applies them to the database.
package recordstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ubuntu/insights-inventory/internal/constants"
	"github.com/ubuntu/insights-inventory/internal/inventory"
	"github.com/ubuntu/insights-inventory/internal/record"
)

// Verbs of the record store commands.
const (
	VerbSave   = "save"
	VerbDelete = "del"
)

// Command is a parsed record store command.
type Command struct {
	EndpointID string
	Entity     record.Entity
	Verb       string
	// ScanID is nil when the command carried NULL.
	ScanID *int64
	// Fields are the save command values in schema order, nil for NULL.
	Fields []*string
}

// AwaitsReply reports whether the sender waits for an answer to this command.
func (c Command) AwaitsReply() bool {
	return c.Entity == record.Program && c.Verb == VerbSave
}

// ParseCommand parses one command, without its terminator.
//
// Save commands are "agent <id> <entity> save <scan>|<field>|...", deletions "agent <id> program del <scan>".
func ParseCommand(line string) (Command, error) {
	parts := strings.SplitN(line, " ", 5)
	if len(parts) < 4 || parts[0] != "agent" {
		return Command{}, fmt.Errorf("%w: malformed command %q", inventory.ErrDecode, line)
	}

	cmd := Command{
		EndpointID: parts[1],
		Entity:     record.Entity(parts[2]),
		Verb:       parts[3],
	}
	if len(parts) != 5 {
		return cmd, fmt.Errorf("%w: missing scan id in %q", inventory.ErrDecode, line)
	}
	if err := inventory.ValidateEndpoint(cmd.EndpointID); err != nil {
		return cmd, err
	}
	if _, ok := record.Schema(cmd.Entity); !ok {
		return cmd, fmt.Errorf("%w: unknown entity %q", inventory.ErrDecode, cmd.Entity)
	}

	switch cmd.Verb {
	case VerbSave:
		values := strings.Split(parts[4], "|")
		if len(values) != record.FieldCount(cmd.Entity)+1 {
			return cmd, fmt.Errorf("%w: %s save expects %d fields, got %d", inventory.ErrDecode, cmd.Entity, record.FieldCount(cmd.Entity)+1, len(values))
		}
		scanID, err := parseScanID(values[0])
		if err != nil {
			return cmd, err
		}
		cmd.ScanID = scanID
		for _, v := range values[1:] {
			if v == constants.NullPlaceholder {
				cmd.Fields = append(cmd.Fields, nil)
				continue
			}
			cmd.Fields = append(cmd.Fields, &v)
		}

	case VerbDelete:
		if cmd.Entity != record.Program {
			return cmd, fmt.Errorf("%w: %s records can not be deleted", inventory.ErrDecode, cmd.Entity)
		}
		scanID, err := parseScanID(parts[4])
		if err != nil {
			return cmd, err
		}
		if scanID == nil {
			return cmd, fmt.Errorf("%w: deletion requires a scan id", inventory.ErrDecode)
		}
		cmd.ScanID = scanID

	default:
		return cmd, fmt.Errorf("%w: unknown verb %q", inventory.ErrDecode, cmd.Verb)
	}

	return cmd, nil
}

func parseScanID(s string) (*int64, error) {
	if s == constants.NullPlaceholder {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid scan id %q", inventory.ErrDecode, s)
	}
	return &id, nil
}

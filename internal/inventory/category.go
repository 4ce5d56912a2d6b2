package inventory

import (
	"fmt"
	"strings"
)

// Category is the kind of inventory a scan collects. Its value names the scan file directory.
type Category string

// Categories of inventory.
const (
	Ports     Category = "ports"
	Programs  Category = "programs"
	Hardware  Category = "hardware"
	OS        Category = "os"
	Network   Category = "network"
	Processes Category = "processes"
)

// Categories lists every category, in a stable order.
var Categories = []Category{Ports, Programs, Hardware, OS, Network, Processes}

const completionSuffix = "end"

// messageTypes maps the declared message types, without completion suffix, to their category.
var messageTypes = map[string]Category{
	"port":         Ports,
	"program":      Programs,
	"hardware":     Hardware,
	"OS":           OS,
	"network":      Network,
	"process":      Processes,
	"process_list": Processes,
}

// completable lists the message types which have a completion variant.
var completable = map[string]bool{
	"port":     true,
	"program":  true,
	"hardware": true,
	"network":  true,
	"process":  true,
}

// Classify maps a declared message type to its category and tells if it marks the end of a scan.
func Classify(msgType string) (cat Category, completed bool, err error) {
	base := msgType
	if strings.HasSuffix(msgType, "_"+completionSuffix) {
		base = strings.TrimSuffix(msgType, "_"+completionSuffix)
		if !completable[base] {
			return "", false, fmt.Errorf("%w: invalid message type %q", ErrDecode, msgType)
		}
		completed = true
	}

	cat, ok := messageTypes[base]
	if !ok {
		return "", false, fmt.Errorf("%w: invalid message type %q", ErrDecode, msgType)
	}
	return cat, completed, nil
}

// CompletionType returns the message type marking the end of a scan of cat.
func CompletionType(cat Category) string {
	switch cat {
	case Ports:
		return "port_" + completionSuffix
	case Programs:
		return "program_" + completionSuffix
	case Hardware:
		return "hardware_" + completionSuffix
	case Network:
		return "network_" + completionSuffix
	case Processes:
		return "process_" + completionSuffix
	default:
		return ""
	}
}

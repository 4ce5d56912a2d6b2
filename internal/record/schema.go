package record

// Entity is a record store table a command targets.
type Entity string

// Entities known by the record store.
const (
	OSInfo   Entity = "osinfo"
	Hardware Entity = "hardware"
	Program  Entity = "program"
)

// Kind is how a field value is rendered.
type Kind int

const (
	// String values are rendered verbatim.
	String Kind = iota
	// Int values are rendered as plain decimal.
	Int
	// Float values are rendered with six decimals.
	Float
)

// Field is one column of an entity schema.
type Field struct {
	Name string
	Kind Kind
}

// schemas lists, per entity, the fields following the scan id in wire order.
// The order is part of the record store protocol.
var schemas = map[Entity][]Field{
	OSInfo: {
		{"timestamp", String},
		{"hostname", String},
		{"architecture", String},
		{"os_name", String},
		{"os_version", String},
		{"os_codename", String},
		{"os_major", String},
		{"os_minor", String},
		{"os_build", String},
		{"os_platform", String},
		{"sysname", String},
		{"release", String},
		{"version", String},
	},
	Hardware: {
		{"timestamp", String},
		{"board_serial", String},
		{"cpu_name", String},
		{"cpu_cores", Int},
		{"cpu_mhz", Float},
		{"ram_total", Int},
		{"ram_free", Int},
	},
	Program: {
		{"timestamp", String},
		{"format", String},
		{"name", String},
		{"vendor", String},
		{"version", String},
		{"architecture", String},
		{"description", String},
	},
}

// Schema returns the fields of entity following the scan id, in wire order.
func Schema(entity Entity) ([]Field, bool) {
	s, ok := schemas[entity]
	if !ok {
		return nil, false
	}
	return append([]Field(nil), s...), true
}

// FieldCount returns the number of pipe separated fields of a save command of entity.
func FieldCount(entity Entity) int {
	return len(schemas[entity])
}

package devicetype

import "sort"

// ParamType is the JSON type a command parameter must have.
type ParamType string

// Parameter types.
const (
	ParamNumber ParamType = "number"
	ParamString ParamType = "string"
)

// Parameter declares one command parameter.
//
// Min and Max are inclusive bounds and only apply to numbers.
// Enum only applies to strings.
type Parameter struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Required bool      `json:"required"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
	Enum     []string  `json:"enum,omitempty"`
}

// Schema is an ordered parameter list. Validation reports the first failure
// in declaration order.
type Schema []Parameter

// Lookup returns the parameter with the given name.
func (s Schema) Lookup(name string) (Parameter, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Outcome is what a transition reports about the change it made.
type Outcome struct {
	// Event is the log event name, e.g. "brightness_set".
	Event string

	// Message is returned to the caller, e.g. "Set brightness to 42%".
	Message string
}

// Transition applies a validated command to a device's attributes.
//
// attrs is a private copy owned by the caller; the transition mutates it in
// place. params has already passed Validate against the command's Schema.
type Transition func(attrs map[string]any, params map[string]any) Outcome

// CommandDefinition binds a command name to its parameters and transition.
type CommandDefinition struct {
	Name       string
	Parameters Schema
	Apply      Transition
}

// Definition describes one device type.
type Definition struct {
	Name     string
	Commands map[string]CommandDefinition
}

// Command returns the named command definition.
func (d *Definition) Command(name string) (CommandDefinition, bool) {
	cmd, ok := d.Commands[name]
	return cmd, ok
}

// CommandNames returns the supported command names in sorted order.
func (d *Definition) CommandNames() []string {
	names := make([]string, 0, len(d.Commands))
	for name := range d.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func bound(v float64) *float64 {
	return &v
}

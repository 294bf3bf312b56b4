package devicetype

import (
	"errors"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry is an immutable catalogue of device type definitions.
//
// It is safe for concurrent use without locking: nothing is written after
// NewRegistry returns.
type Registry struct {
	types    map[string]*Definition
	compiled map[string]*jsonschema.Schema // keyed by "type/command"
}

// NewRegistry builds a registry from the given definitions.
//
// Every command's JSON Schema is compiled up front so a malformed table is
// reported here.
//
// Parameters:
//   - defs: Device type definitions; names must be unique and non-empty
//
// Returns:
//   - *Registry: Ready for lookups
//   - error: ErrInvalidDefinition (wrapped) describing the first problem
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		types:    make(map[string]*Definition, len(defs)),
		compiled: make(map[string]*jsonschema.Schema),
	}

	for i := range defs {
		def := defs[i]
		if def.Name == "" {
			return nil, fmt.Errorf("%w: definition %d has no name", ErrInvalidDefinition, i)
		}
		if _, dup := r.types[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate type %q", ErrInvalidDefinition, def.Name)
		}

		cmds := make(map[string]CommandDefinition, len(def.Commands))
		for name, cmd := range def.Commands {
			if cmd.Name == "" {
				cmd.Name = name
			}
			if cmd.Name != name {
				return nil, fmt.Errorf("%w: %s command %q registered as %q", ErrInvalidDefinition, def.Name, cmd.Name, name)
			}
			if cmd.Apply == nil {
				return nil, fmt.Errorf("%w: %s.%s has no transition", ErrInvalidDefinition, def.Name, name)
			}
			if err := checkSchema(cmd.Parameters); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrInvalidDefinition, def.Name, name, err)
			}

			compiled, err := compileSchema(def.Name, name, cmd.Parameters.JSONSchema(def.Name, name))
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrInvalidDefinition, def.Name, name, err)
			}
			r.compiled[def.Name+"/"+name] = compiled
			cmds[name] = cmd
		}

		r.types[def.Name] = &Definition{Name: def.Name, Commands: cmds}
	}

	return r, nil
}

func checkSchema(s Schema) error {
	seen := make(map[string]struct{}, len(s))
	for _, p := range s {
		if p.Name == "" {
			return errors.New("unnamed parameter")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = struct{}{}

		switch p.Type {
		case ParamNumber:
			if len(p.Enum) > 0 {
				return fmt.Errorf("parameter %q: enum on a number", p.Name)
			}
			if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
				return fmt.Errorf("parameter %q: min above max", p.Name)
			}
		case ParamString:
			if p.Min != nil || p.Max != nil {
				return fmt.Errorf("parameter %q: range on a string", p.Name)
			}
		default:
			return fmt.Errorf("parameter %q: unsupported type %q", p.Name, p.Type)
		}
	}
	return nil
}

// Get returns the definition for a device type.
// Returns ErrUnknownType if the type is not registered.
func (r *Registry) Get(deviceType string) (*Definition, error) {
	def, ok := r.types[deviceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, deviceType)
	}
	return def, nil
}

// Command returns a command definition for a device type.
// Returns ErrUnknownType or ErrUnknownCommand.
func (r *Registry) Command(deviceType, command string) (CommandDefinition, error) {
	def, err := r.Get(deviceType)
	if err != nil {
		return CommandDefinition{}, err
	}
	cmd, ok := def.Command(command)
	if !ok {
		return CommandDefinition{}, fmt.Errorf("%w: %s.%s", ErrUnknownCommand, deviceType, command)
	}
	return cmd, nil
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JSONSchema returns the JSON Schema document for a command's parameters.
func (r *Registry) JSONSchema(deviceType, command string) (map[string]any, error) {
	cmd, err := r.Command(deviceType, command)
	if err != nil {
		return nil, err
	}
	return cmd.Parameters.JSONSchema(deviceType, command), nil
}

// ValidateSchema checks params against the command's compiled JSON Schema.
//
// Validate is the primary check and produces the user-facing messages; this
// is the machine-readable equivalent handed to schema-aware clients.
func (r *Registry) ValidateSchema(deviceType, command string, params map[string]any) error {
	if _, err := r.Command(deviceType, command); err != nil {
		return err
	}
	if params == nil {
		params = map[string]any{}
	}
	return r.compiled[deviceType+"/"+command].Validate(params)
}

// TypeDescription is the serialisable form of a Definition.
type TypeDescription struct {
	Name     string               `json:"name"`
	Commands []CommandDescription `json:"commands"`
}

// CommandDescription is the serialisable form of a CommandDefinition.
type CommandDescription struct {
	Name       string         `json:"name"`
	Parameters Schema         `json:"parameters"`
	JSONSchema map[string]any `json:"jsonSchema"`
}

// Describe returns the whole catalogue, sorted by type then command.
func (r *Registry) Describe() []TypeDescription {
	out := make([]TypeDescription, 0, len(r.types))
	for _, typeName := range r.Types() {
		def := r.types[typeName]
		desc := TypeDescription{Name: typeName, Commands: make([]CommandDescription, 0, len(def.Commands))}
		for _, cmdName := range def.CommandNames() {
			params := def.Commands[cmdName].Parameters
			if params == nil {
				params = Schema{}
			}
			desc.Commands = append(desc.Commands, CommandDescription{
				Name:       cmdName,
				Parameters: params,
				JSONSchema: params.JSONSchema(typeName, cmdName),
			})
		}
		out = append(out, desc)
	}
	return out
}

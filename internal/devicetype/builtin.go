package devicetype

import "fmt"

// Built-in device type names.
const (
	TypeDimmer            = "dimmer"
	TypeVent              = "vent"
	TypeTemperatureSensor = "temperatureSensor"
	TypeHVAC              = "hvac"
	TypeWaterHeater       = "waterHeater"
	TypeGenerator         = "generator"
)

// Builtin returns a registry with the six RV-C device types the bridge
// supports out of the box.
func Builtin() *Registry {
	reg, err := NewRegistry(BuiltinDefinitions()...)
	if err != nil {
		// The table below is static; a failure here is a programming error.
		panic(fmt.Sprintf("devicetype: builtin table: %v", err))
	}
	return reg
}

// BuiltinDefinitions returns fresh copies of the built-in definitions, for
// callers that want to extend the catalogue before building a Registry.
func BuiltinDefinitions() []Definition {
	return []Definition{
		dimmer(),
		vent(),
		temperatureSensor(),
		hvac(),
		waterHeater(),
		generator(),
	}
}

func commands(defs ...CommandDefinition) map[string]CommandDefinition {
	m := make(map[string]CommandDefinition, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return m
}

// number reads a validated numeric parameter, normalised to float64 so the
// stored attribute encodes the same way regardless of how it arrived.
func number(params map[string]any, name string) float64 {
	n, _ := AsNumber(params[name])
	return n
}

func text(params map[string]any, name string) string {
	s, _ := params[name].(string)
	return s
}

func percent(name string) Schema {
	return Schema{{Name: name, Type: ParamNumber, Required: true, Min: bound(0), Max: bound(100)}}
}

func dimmer() Definition {
	return Definition{
		Name: TypeDimmer,
		Commands: commands(
			CommandDefinition{
				Name:       "setBrightness",
				Parameters: percent("brightness"),
				Apply: func(attrs, params map[string]any) Outcome {
					v := number(params, "brightness")
					attrs["brightness"] = v
					return Outcome{Event: "brightness_set", Message: "Set brightness to " + FormatNumber(v) + "%"}
				},
			},
			CommandDefinition{
				Name: "turnOn",
				Apply: func(attrs, _ map[string]any) Outcome {
					attrs["brightness"] = float64(100)
					attrs["state"] = "ON"
					return Outcome{Event: "turned_on", Message: "Turned on dimmer"}
				},
			},
			CommandDefinition{
				Name: "turnOff",
				Apply: func(attrs, _ map[string]any) Outcome {
					attrs["brightness"] = float64(0)
					attrs["state"] = "OFF"
					return Outcome{Event: "turned_off", Message: "Turned off dimmer"}
				},
			},
		),
	}
}

func vent() Definition {
	return Definition{
		Name: TypeVent,
		Commands: commands(
			CommandDefinition{
				Name:       "setPosition",
				Parameters: percent("position"),
				Apply: func(attrs, params map[string]any) Outcome {
					v := number(params, "position")
					attrs["position"] = v
					return Outcome{Event: "position_set", Message: "Set vent position to " + FormatNumber(v) + "%"}
				},
			},
			CommandDefinition{
				Name: "open",
				Apply: func(attrs, _ map[string]any) Outcome {
					attrs["position"] = float64(100)
					attrs["state"] = "OPEN"
					return Outcome{Event: "opened", Message: "Opened vent"}
				},
			},
			CommandDefinition{
				Name: "close",
				Apply: func(attrs, _ map[string]any) Outcome {
					attrs["position"] = float64(0)
					attrs["state"] = "CLOSED"
					return Outcome{Event: "closed", Message: "Closed vent"}
				},
			},
		),
	}
}

func temperatureSensor() Definition {
	return Definition{
		Name: TypeTemperatureSensor,
		Commands: commands(
			CommandDefinition{
				Name:       "calibrate",
				Parameters: Schema{{Name: "offset", Type: ParamNumber, Required: true}},
				Apply: func(attrs, params map[string]any) Outcome {
					v := number(params, "offset")
					attrs["calibrationOffset"] = v
					return Outcome{Event: "calibrated", Message: "Set calibration offset to " + FormatNumber(v)}
				},
			},
		),
	}
}

func hvac() Definition {
	return Definition{
		Name: TypeHVAC,
		Commands: commands(
			CommandDefinition{
				Name: "setMode",
				Parameters: Schema{{
					Name: "mode", Type: ParamString, Required: true,
					Enum: []string{"off", "cool", "heat", "auto", "fan_only"},
				}},
				Apply: func(attrs, params map[string]any) Outcome {
					mode := text(params, "mode")
					attrs["mode"] = mode
					return Outcome{Event: "mode_set", Message: "Set HVAC mode to " + mode}
				},
			},
			CommandDefinition{
				Name:       "setFanMode",
				Parameters: Schema{{Name: "fanMode", Type: ParamString, Required: true, Enum: []string{"auto", "on"}}},
				Apply: func(attrs, params map[string]any) Outcome {
					mode := text(params, "fanMode")
					attrs["fanMode"] = mode
					return Outcome{Event: "fan_mode_set", Message: "Set fan mode to " + mode}
				},
			},
			CommandDefinition{
				Name: "setTemperature",
				Parameters: Schema{
					{Name: "temperature", Type: ParamNumber, Required: true},
					{Name: "mode", Type: ParamString, Required: true, Enum: []string{"heat", "cool"}},
				},
				Apply: func(attrs, params map[string]any) Outcome {
					v := number(params, "temperature")
					mode := text(params, "mode")
					if mode == "heat" {
						attrs["heatSetpoint"] = v
					} else {
						attrs["coolSetpoint"] = v
					}
					return Outcome{
						Event:   "temperature_set",
						Message: "Set " + mode + " temperature to " + FormatNumber(v) + "°C",
					}
				},
			},
		),
	}
}

func waterHeater() Definition {
	return Definition{
		Name: TypeWaterHeater,
		Commands: commands(
			CommandDefinition{
				Name: "setMode",
				Parameters: Schema{{
					Name: "mode", Type: ParamString, Required: true,
					Enum: []string{"off", "combustion", "electric", "gas_electric", "automatic"},
				}},
				Apply: func(attrs, params map[string]any) Outcome {
					mode := text(params, "mode")
					attrs["mode"] = mode
					return Outcome{Event: "mode_set", Message: "Set water heater mode to " + mode}
				},
			},
			CommandDefinition{
				Name:       "setTemperature",
				Parameters: Schema{{Name: "temperature", Type: ParamNumber, Required: true, Min: bound(0), Max: bound(80)}},
				Apply: func(attrs, params map[string]any) Outcome {
					v := number(params, "temperature")
					attrs["setPointTemperature"] = v
					return Outcome{
						Event:   "temperature_set",
						Message: "Set water heater temperature to " + FormatNumber(v) + "°C",
					}
				},
			},
		),
	}
}

func generator() Definition {
	return Definition{
		Name: TypeGenerator,
		Commands: commands(
			CommandDefinition{
				Name: "setCommand",
				Parameters: Schema{{
					Name: "command", Type: ParamString, Required: true,
					Enum: []string{"stop", "start", "manual_prime", "manual_preheat"},
				}},
				Apply: func(attrs, params map[string]any) Outcome {
					cmd := text(params, "command")
					attrs["command"] = cmd
					switch cmd {
					case "start":
						attrs["status"] = "running"
					case "stop":
						attrs["status"] = "stopped"
					}
					return Outcome{Event: "command_set", Message: "Set generator command to " + cmd}
				},
			},
		),
	}
}

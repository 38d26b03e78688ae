package exporter

import "codeberg.org/mutker/bsec-exporter/internal/engine"

const namespace = "bsec"

type unit struct {
	suffix  string
	display string
}

var (
	unitPPM     = &unit{"ppm", "ppm"}
	unitCelsius = &unit{"celsius", "°C"}
	unitPascal  = &unit{"Pa", "Pa"}
	unitPercent = &unit{"percent", "%"}
	unitOhm     = &unit{"ohm", "Ω"}
)

type gaugeSpec struct {
	base string
	help string
	unit *unit
}

var catalogue = map[engine.OutputKind]gaugeSpec{
	engine.Iaq:                              {"iaq", "Indoor-air-quality estimate [0-500]", nil},
	engine.StaticIaq:                        {"static_iaq", "Unscaled indoor-air-quality estimate", nil},
	engine.Co2Equivalent:                    {"co2_equivalent", "CO2 equivalent estimate", unitPPM},
	engine.BreathVocEquivalent:              {"breath_voc_equivalent", "Breath VOC concentration estimate", unitPPM},
	engine.RawTemperature:                   {"raw_temperature", "Temperature sensor signal", unitCelsius},
	engine.RawPressure:                      {"raw_pressure", "Pressure sensor signal", unitPascal},
	engine.RawHumidity:                      {"raw_humidity", "Relative humidity sensor signal", unitPercent},
	engine.RawGas:                           {"raw_gas", "Gas sensor signal", unitOhm},
	engine.StabilizationStatus:              {"stabilization_status", "Gas sensor stabilization status (boolean)", nil},
	engine.RunInStatus:                      {"run_in_status", "Gas sensor run-in status (boolean)", nil},
	engine.SensorHeatCompensatedTemperature: {"temperature", "Sensor heat compensated temperature", unitCelsius},
	engine.SensorHeatCompensatedHumidity:    {"humidity", "Sensor heat compensated humidity", unitPercent},
	engine.DebugCompensatedGas:              {"debug_compensated_gas", "Reserved internal debug output", nil},
	engine.GasPercentage:                    {"gas", "Percentage of min and max filtered gas value", unitPercent},
}

func (s gaugeSpec) valueName() string {
	name := namespace + "_" + s.base
	if s.unit != nil {
		name += "_" + s.unit.suffix
	}
	return name
}

func (s gaugeSpec) valueHelp() string {
	if s.unit != nil {
		return s.help + " (" + s.unit.display + ")"
	}
	return s.help
}

func (s gaugeSpec) accuracyName() string {
	return namespace + "_" + s.base + "_accuracy"
}

func (s gaugeSpec) accuracyHelp() string {
	return s.help + " (accuracy)"
}

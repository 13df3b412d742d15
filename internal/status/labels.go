package status

// labels and units describe how record fields are shown to people.
var labels = map[string]string{
	"input_voltage":        "Input voltage",
	"input_frequency":      "Input frequency",
	"input_status":         "Input status",
	"battery_soc":          "Battery charge",
	"battery_voltage":      "Battery voltage",
	"battery_temp_c":       "Battery temp",
	"battery_temp_f":       "Battery temp",
	"battery_replace_date": "Replace battery",
	"output_voltage":       "Output voltage",
	"output_frequency":     "Output frequency",
	"output_current":       "Output current",
	"output_watts_percent": "Output load",
	"output_va_percent":    "Output VA",
	"output_efficiency":    "Efficiency",
	"output_energy":        "Output energy",
	"last_transfer":        "Last transfer",
}

var units = map[string]string{
	"input_voltage":        "VAC",
	"input_frequency":      "Hz",
	"battery_soc":          "%",
	"battery_voltage":      "VDC",
	"battery_temp_c":       "C",
	"battery_temp_f":       "F",
	"output_voltage":       "VAC",
	"output_frequency":     "Hz",
	"output_current":       "A",
	"output_watts_percent": "%",
	"output_va_percent":    "%",
	"output_energy":        "kWh",
}

// Label returns the display label for a field name, or the name itself.
func (f Field) Label() string {
	if l, ok := labels[f.Name]; ok {
		return l
	}
	return f.Name
}

// Display returns the value followed by its unit, if it has one.
func (f Field) Display() string {
	if u := units[f.Name]; u != "" {
		return f.Value + " " + u
	}
	return f.Value
}

// Package status turns the text printed by the card's detstatus command into
// a Record.
//
// Every field is pulled out by its own pattern, so a truncated or reordered
// reply still yields whatever fields it contains. Values stay as the raw
// decimal text with the unit removed; callers decide what to parse.
package status

import (
	"regexp"
	"strconv"
	"strings"
)

// Record is one parsed status reply. A nil field means its line was not
// found. Records are never modified after Parse returns.
type Record struct {
	CommandOK *bool `json:"command_ok,omitempty"`
	Online    *bool `json:"online,omitempty"`

	LastTransfer       *string `json:"last_transfer,omitempty"`
	InputStatus        *string `json:"input_status,omitempty"`
	BatteryReplaceDate *string `json:"battery_replace_date,omitempty"`
	BatterySOC         *string `json:"battery_soc,omitempty"`
	OutputVoltage      *string `json:"output_voltage,omitempty"`
	OutputFrequency    *string `json:"output_frequency,omitempty"`
	OutputWattsPercent *string `json:"output_watts_percent,omitempty"`
	OutputVAPercent    *string `json:"output_va_percent,omitempty"`
	OutputCurrent      *string `json:"output_current,omitempty"`
	OutputEfficiency   *string `json:"output_efficiency,omitempty"`
	OutputEnergy       *string `json:"output_energy,omitempty"`
	InputVoltage       *string `json:"input_voltage,omitempty"`
	InputFrequency     *string `json:"input_frequency,omitempty"`
	BatteryVoltage     *string `json:"battery_voltage,omitempty"`
	BatteryTempC       *string `json:"battery_temp_c,omitempty"`
	BatteryTempF       *string `json:"battery_temp_f,omitempty"`
}

var (
	reCommand      = regexp.MustCompile(`E000:\s*(\w+)`)
	reOnline       = regexp.MustCompile(`Status of UPS:\s*(\w+)`)
	reLastTransfer = regexp.MustCompile(`Last Transfer:\s*(\w+)`)
	reInputStatus  = regexp.MustCompile(`Input Status:\s*(\w+)`)
	reReplaceDate  = regexp.MustCompile(`Next Battery Replacement Date:\s*(\d{2}/\d{2}/\d{4})`)
	reSOC          = regexp.MustCompile(`Battery State Of Charge:\s*([0-9.]+)\s*%`)
	reOutVoltage   = regexp.MustCompile(`Output Voltage:\s*([0-9.]+)\s*VAC`)
	reOutFrequency = regexp.MustCompile(`Output Frequency:\s*([0-9.]+)\s*Hz`)
	reOutWatts     = regexp.MustCompile(`Output Watts Percent:\s*([0-9.]+)\s*%`)
	reOutVA        = regexp.MustCompile(`Output VA Percent:\s*([0-9.]+)\s*%`)
	reOutCurrent   = regexp.MustCompile(`Output Current:\s*([0-9.]+)\s*A`)
	reOutEff       = regexp.MustCompile(`Output Efficiency:\s*([\w ]+)`)
	reOutEnergy    = regexp.MustCompile(`Output Energy:\s*([0-9.]+)\s*kWh`)
	reInVoltage    = regexp.MustCompile(`Input Voltage:\s*([0-9.]+)\s*VAC`)
	reInFrequency  = regexp.MustCompile(`Input Frequency:\s*([0-9.]+)\s*Hz`)
	reBattVoltage  = regexp.MustCompile(`Battery Voltage:\s*([0-9.]+)\s*VDC`)
	reBattTemp     = regexp.MustCompile(`Battery Temperature:\s*([0-9.]+)\s*C,\s*([0-9.]+)\s*F`)
)

// Parse extracts every field it can find in raw. It never fails.
func Parse(raw string) *Record {
	r := &Record{
		CommandOK: token(reCommand, raw, "Success"),
		Online:    token(reOnline, raw, "Online"),

		LastTransfer:       extract(reLastTransfer, raw, 1),
		InputStatus:        extract(reInputStatus, raw, 1),
		BatteryReplaceDate: extract(reReplaceDate, raw, 1),
		BatterySOC:         extract(reSOC, raw, 1),
		OutputVoltage:      extract(reOutVoltage, raw, 1),
		OutputFrequency:    extract(reOutFrequency, raw, 1),
		OutputWattsPercent: extract(reOutWatts, raw, 1),
		OutputVAPercent:    extract(reOutVA, raw, 1),
		OutputCurrent:      extract(reOutCurrent, raw, 1),
		OutputEnergy:       extract(reOutEnergy, raw, 1),
		InputVoltage:       extract(reInVoltage, raw, 1),
		InputFrequency:     extract(reInFrequency, raw, 1),
		BatteryVoltage:     extract(reBattVoltage, raw, 1),
		BatteryTempC:       extract(reBattTemp, raw, 1),
		BatteryTempF:       extract(reBattTemp, raw, 2),
	}

	if eff := extract(reOutEff, raw, 1); eff != nil {
		trimmed := strings.TrimSpace(*eff)
		r.OutputEfficiency = &trimmed
	}

	return r
}

func extract(re *regexp.Regexp, raw string, group int) *string {
	m := re.FindStringSubmatch(raw)
	if m == nil || group >= len(m) {
		return nil
	}
	v := m[group]
	return &v
}

// token reports whether the captured word equals want, case-sensitively.
func token(re *regexp.Regexp, raw, want string) *bool {
	v := extract(re, raw, 1)
	if v == nil {
		return nil
	}
	ok := *v == want
	return &ok
}

// Field is one named value from a Record.
type Field struct {
	Name  string
	Value string
}

// Fields returns the present text fields in display order.
func (r *Record) Fields() []Field {
	if r == nil {
		return nil
	}
	all := []struct {
		name string
		v    *string
	}{
		{"input_voltage", r.InputVoltage},
		{"input_frequency", r.InputFrequency},
		{"input_status", r.InputStatus},
		{"battery_soc", r.BatterySOC},
		{"battery_voltage", r.BatteryVoltage},
		{"battery_temp_c", r.BatteryTempC},
		{"battery_temp_f", r.BatteryTempF},
		{"battery_replace_date", r.BatteryReplaceDate},
		{"output_voltage", r.OutputVoltage},
		{"output_frequency", r.OutputFrequency},
		{"output_current", r.OutputCurrent},
		{"output_watts_percent", r.OutputWattsPercent},
		{"output_va_percent", r.OutputVAPercent},
		{"output_efficiency", r.OutputEfficiency},
		{"output_energy", r.OutputEnergy},
		{"last_transfer", r.LastTransfer},
	}

	fields := make([]Field, 0, len(all))
	for _, f := range all {
		if f.v != nil {
			fields = append(fields, Field{Name: f.name, Value: *f.v})
		}
	}
	return fields
}

// Numeric returns the present fields whose text parses as a number, keyed
// by field name.
func (r *Record) Numeric() map[string]float64 {
	out := make(map[string]float64)
	for _, f := range r.Fields() {
		if v, err := strconv.ParseFloat(f.Value, 64); err == nil {
			out[f.Name] = v
		}
	}
	return out
}

// OrZero returns the field text, or "0" when it is absent. Used for display.
func OrZero(v *string) string {
	if v == nil || *v == "" {
		return "0"
	}
	return *v
}

// Float parses a field, treating absent or unparsable text as 0.
func Float(v *string) float64 {
	f, err := strconv.ParseFloat(OrZero(v), 64)
	if err != nil {
		return 0
	}
	return f
}

// Bool dereferences a flag, treating absent as false.
func Bool(v *bool) bool {
	return v != nil && *v
}

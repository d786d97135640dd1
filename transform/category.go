package transform

import (
	"strings"
	"unicode"
)

// DefaultCategory is used when no rule matches
const DefaultCategory = "General Parts"

// Rule assigns a category to text containing any of its keywords
type Rule struct {
	Category string
	Keywords []string
}

// Rules are tried in order and the first one with a matching keyword wins.
// Keywords match whole words only, so "gear" does not match "gearing" or "headgear".
// Order matters: "water pump" must reach Cooling before Hydraulics sees "pump",
// and "fuel filter" is a filter before it is fuel system.
var Rules = []Rule{
	{"Filters", []string{"filter", "filters", "filter element", "separator", "strainer", "breather"}},
	{"Cooling", []string{"water pump", "radiator", "thermostat", "coolant", "intercooler", "fan", "fan belt", "oil cooler"}},
	{"Fuel System", []string{"fuel", "injector", "injectors", "injection", "nozzle", "lift pump"}},
	{"Engine", []string{"engine", "piston", "pistons", "cylinder head", "gasket", "gaskets", "turbo", "turbocharger",
		"crankshaft", "camshaft", "liner", "con rod", "connecting rod", "rocker arm", "oil pump"}},
	{"Electrical", []string{"alternator", "starter", "starter motor", "sensor", "switch", "relay", "wiring",
		"harness", "battery", "ecu", "solenoid", "fuse"}},
	{"Hydraulics", []string{"hydraulic", "hydraulics", "pump", "cylinder", "valve", "seal kit", "hose", "accumulator", "spool"}},
	{"Drivetrain", []string{"gear", "gears", "gearbox", "transmission", "axle", "differential", "clutch", "drive shaft",
		"driveshaft", "planetary", "final drive", "shaft", "bearing", "bearings", "synchronizer", "torque converter"}},
	{"Brakes", []string{"brake", "brakes", "brake pad", "brake disc", "caliper"}},
	{"Undercarriage", []string{"track", "track chain", "track roller", "roller", "idler", "sprocket", "track shoe", "shoe"}},
	{"Cab & Body", []string{"mirror", "glass", "window", "seat", "door", "cab", "wiper", "lamp", "light", "handle"}},
	{"Ground Engaging Tools", []string{"bucket", "tooth", "teeth", "cutting edge", "adapter", "ripper", "blade"}},
}

// InferCategory matches text against Rules
func InferCategory(texts ...string) string {
	return InferCategoryWith(Rules, texts...)
}

// InferCategoryWith matches text against the given rules
func InferCategoryWith(rules []Rule, texts ...string) string {
	haystack := " " + strings.Join(words(strings.Join(texts, " ")), " ") + " "
	for _, rule := range rules {
		for _, keyword := range rule.Keywords {
			needle := strings.Join(words(keyword), " ")
			if needle != "" && strings.Contains(haystack, " "+needle+" ") {
				return rule.Category
			}
		}
	}
	return DefaultCategory
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

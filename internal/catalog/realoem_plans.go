package catalog

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/parser"
	"github.com/IshaanNene/partscout/internal/pipeline"
	"github.com/IshaanNene/partscout/internal/types"
)

// Main-group titles used by the find-part plans.
const (
	groupHeaterAC = "HEATER AND AIR CONDITIONING"
	groupBrakes   = "BRAKES"
	groupRadiator = "RADIATOR"
	groupService  = "SERVICE AND SCOPE OF REPAIR WORK"
)

// realoemGroups maps the accepted group names to the main-group titles on
// the RealOEM "Browse Parts" page.
var realoemGroups = map[string]string{
	"engine":                                "ENGINE",
	"engine electrical system":              "ENGINE ELECTRICAL SYSTEM",
	"fuel preparation system":               "FUEL PREPARATION SYSTEM",
	"fuel supply":                           "FUEL SUPPLY",
	"radiator":                              "RADIATOR",
	"exhaust system":                        "EXHAUST SYSTEM",
	"clutch":                                "CLUTCH",
	"engine and transmission suspension":    "ENGINE AND TRANSMISSION SUSPENSION",
	"manual transmission":                   "MANUAL TRANSMISSION",
	"automatic transmission":                "AUTOMATIC TRANSMISSION",
	"gearshift":                             "GEARSHIFT",
	"drive shaft":                           "DRIVE SHAFT",
	"front axle":                            "FRONT AXLE",
	"steering":                              "STEERING",
	"rear axle":                             "REAR AXLE",
	"brakes":                                "BRAKES",
	"pedals":                                "PEDALS",
	"wheels":                                "WHEELS",
	"bodywork":                              "BODYWORK",
	"vehicle trim":                          "VEHICLE TRIM",
	"seats":                                 "SEATS",
	"heating and air conditioning":          groupHeaterAC,
	"sliding roof / folding top":            "SLIDING ROOF / FOLDING TOP",
	"vehicle electrical system":             "VEHICLE ELECTRICAL SYSTEM",
	"instruments measuring systems":         "INSTRUMENTS, MEASURING SYSTEMS",
	"lighting":                              "LIGHTING",
	"audio navigation electronic systems":   "AUDIO, NAVIGATION, ELECTRONIC SYSTEMS",
	"distance systems cruise control":       "DISTANCE SYSTEMS, CRUISE CONTROL",
	"equipment parts":                       "EQUIPMENT PARTS",
	"restraint system and accessories":      "RESTRAINT SYSTEM AND ACCESSORIES",
	"communication systems":                 "COMMUNICATION SYSTEMS",
	"auxiliary materials fluidscolorsystem": "AUXILIARY MATERIALS, FLUIDS/COLOR SYSTEM",
	"service and scope of repair work":      groupService,
}

// RealOEMGroup resolves a group name to its title. Names are matched as
// given, then with punctuation ignored against both the names and the
// titles, so "Heater and air conditioning" and "fluids/color system" work.
func RealOEMGroup(name string) (string, bool) {
	key := parser.NormalizeText(name)
	if title, ok := realoemGroups[key]; ok {
		return title, true
	}
	loose := parser.NormalizeAlnum(name)
	for k, title := range realoemGroups {
		if parser.NormalizeAlnum(k) == loose || parser.NormalizeAlnum(title) == loose {
			return title, true
		}
	}
	return "", false
}

// RealOEMGroupNames lists the accepted group names, sorted.
func RealOEMGroupNames() []string {
	names := make([]string, 0, len(realoemGroups))
	for k := range realoemGroups {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// partPlan is how find-part reaches one keyword's rows: a main group, a
// diagram title (alternatives in order) and the row filter to apply.
type partPlan struct {
	Group string
	// TitleSel is the element holding the diagram title.
	TitleSel string
	Titles   []string
	// Must is extra text the title has to contain.
	Must string

	Filter       string
	ExcludeDesc  []string
	ExcludeNotes []string
	Dedup        bool
	WithQty      bool
}

func acPlan(title, filter string, excludeDesc ...string) partPlan {
	return partPlan{
		Group:        groupHeaterAC,
		TitleSel:     "a",
		Titles:       []string{title},
		Filter:       filter,
		ExcludeDesc:  excludeDesc,
		ExcludeNotes: []string{"discontinued"},
	}
}

func brakePlan(filter string, titles ...string) partPlan {
	return partPlan{
		Group:        groupBrakes,
		TitleSel:     "div.title",
		Titles:       titles,
		Filter:       filter,
		ExcludeDesc:  []string{"repair kit"},
		ExcludeNotes: []string{"ended"},
	}
}

func radiatorPlan(filter, must string, titles ...string) partPlan {
	return partPlan{
		Group:        groupRadiator,
		TitleSel:     "div.title",
		Titles:       titles,
		Must:         must,
		Filter:       filter,
		ExcludeDesc:  []string{"screw cap", "bracket"},
		ExcludeNotes: []string{"ended"},
		Dedup:        true,
	}
}

func servicePlan(title, filter string, withQty bool, excludeDesc ...string) partPlan {
	return partPlan{
		Group:        groupService,
		TitleSel:     "div.title",
		Titles:       []string{title},
		Filter:       filter,
		ExcludeDesc:  excludeDesc,
		ExcludeNotes: []string{"ended"},
		WithQty:      withQty,
	}
}

var partPlans = map[string]partPlan{
	"evaporator":           acPlan("EVAPORATOR / EXPANSION VALVE", "evaporator"),
	"expansion valve":      acPlan("EVAPORATOR / EXPANSION VALVE", "expansion valve"),
	"microfilter":          acPlan("MICROFILTER", "microfilter"),
	"heater":               acPlan("HEATER RADIATOR", "heater"),
	"fresh air":            acPlan("FRESH AIR GRILLE", "fresh air"),
	"air channel":          acPlan("AIR CHANNEL", "air channel"),
	"cooling hose":         acPlan("COOLING WATER HOSES", "cooling hose"),
	"aux hose":             acPlan("COOLANT HOSES FOR AUXILIARY HEATER", "aux hose"),
	"distribution housing": acPlan("DISTRIBUTION HOUSING", "distribution housing"),
	"filter housing":       acPlan("FILTER HOUSING", "filter housing"),
	"condenser":            acPlan("CONDENSER AIR CONDITIONING", "condenser"),
	"compressor":           acPlan("RP A/C COMPRESSOR", "compressor", "oil", "bracket"),
	"compressor bracket":   acPlan("RP A/C COMPRESSOR", "compressor bracket"),
	"bracket":              acPlan("RP A/C COMPRESSOR", "bracket"),

	"front sensor": brakePlan("sensor", "FRONT BRAKE PAD WEAR SENSOR"),
	"rear sensor":  brakePlan("sensor", "REAR BRAKE PAD WEAR SENSOR", "BRAKE PAD WEAR SENSOR, REAR"),
	"front brake":  brakePlan("brake", "FRONT BRAKE / BRAKE DISC"),
	"rear brake":   brakePlan("brake", "REAR WHEEL BRAKE / BRAKE DISC"),
	"brake pads":   brakePlan("pad", "SERVICE KIT FOR BRAKE PADS / VALUE LINE"),

	"radiator":       radiatorPlan("radiator", "MOUNTING", "RADIATOR"),
	"expansion tank": radiatorPlan("expansion tank", "", "EXPANSION TANK"),
	"fan housing":    radiatorPlan("fan", "", "FAN HOUSING WITH FAN", "FAN HOUSING"),

	"oil filter":    servicePlan("OIL MAINTENANCE SERVICE", "oil filter", false),
	"oil service":   servicePlan("OIL MAINTENANCE SERVICE", "oil", false),
	"spark plug":    servicePlan("OIL MAINTENANCE SERVICE", "spark plug", true),
	"brake service": servicePlan("BRAKE SERVICE", "brake", false, "repair kit"),
}

// lookupPlan resolves a find-part keyword.
func lookupPlan(keyword string) (partPlan, bool) {
	p, ok := partPlans[parser.NormalizeText(keyword)]
	return p, ok
}

// RealOEMKeywords lists the find-part keywords, sorted.
func RealOEMKeywords() []string {
	names := make([]string, 0, len(partPlans))
	for k := range partPlans {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// partNumberPattern accepts BMW part numbers as printed, with or without
// the grouping spaces.
const partNumberPattern = `^[0-9A-Z][0-9A-Z ]*$`

// chain builds the row pipeline for the plan.
func (p partPlan) chain(logger *slog.Logger, m *observability.Metrics) (*pipeline.Pipeline, error) {
	validate, err := pipeline.NewFieldValidateMiddleware(map[string]string{
		pipeline.FieldPartNumber: partNumberPattern,
	}, false)
	if err != nil {
		return nil, err
	}

	pl := pipeline.New(logger).WithMetrics(m).Use(
		&pipeline.TrimMiddleware{},
		validate,
		&pipeline.RequiredFieldsMiddleware{Fields: []string{pipeline.FieldPartNumber}},
		pipeline.NewContainsMiddleware(pipeline.FieldDescription, p.Filter),
	)
	if len(p.ExcludeDesc) > 0 {
		pl.Use(pipeline.NewExcludeMiddleware(pipeline.FieldDescription, p.ExcludeDesc...))
	}
	if len(p.ExcludeNotes) > 0 {
		pl.Use(pipeline.NewExcludeMiddleware(pipeline.FieldNotes, p.ExcludeNotes...))
	}
	if p.Dedup {
		pl.Use(pipeline.NewDedupMiddleware(pipeline.FieldPartNumber))
	}
	return pl, nil
}

// collect runs rows through the plan's pipeline and shapes the result.
func (p partPlan) collect(rows []types.PartRow, logger *slog.Logger, m *observability.Metrics) (*types.PartList, error) {
	pl, err := p.chain(logger, m)
	if err != nil {
		return nil, err
	}
	kept, err := pl.Run(rows)
	if err != nil {
		return nil, err
	}
	list := &types.PartList{WithQty: p.WithQty, Items: []types.PartRef{}}
	for _, r := range kept {
		list.Add(r.PartNumber, r.Quantity)
	}
	return list, nil
}

// titlePatterns returns the JS regexes tried, in order, to find the
// diagram title.
func (p partPlan) titlePatterns() []string {
	out := make([]string, 0, len(p.Titles))
	for _, t := range p.Titles {
		pat := jsQuote(t)
		if p.Must != "" {
			must := jsQuote(p.Must)
			pat = fmt.Sprintf("(%s[\\s\\S]*%s|%s[\\s\\S]*%s)", pat, must, must, pat)
		}
		out = append(out, "/"+pat+"/")
	}
	return out
}

// exactTitle builds a JS regex matching a whole title, ignoring case and
// surrounding whitespace.
func exactTitle(title string) string {
	return "/^\\s*" + jsQuote(title) + "\\s*$/i"
}

// jsQuote escapes s for use inside a /.../ JS regex literal.
func jsQuote(s string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(s), "/", "\\/")
}

package recurrence

import (
	"fmt"
	"strings"

	"github.com/emersion/go-ical"
)

// ParseRRule builds a rule from an RFC 5545 RRULE value such as
// "FREQ=WEEKLY;BYDAY=MO,WE". The "RRULE:" prefix is optional.
func ParseRRule(value string) (*Rule, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "RRULE:")

	var freq string
	for _, part := range strings.Split(value, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(key, "FREQ") {
			freq = val
			break
		}
	}
	if freq == "" {
		return nil, fmt.Errorf("%w: missing FREQ in %q", ErrInvalidRule, value)
	}
	return ParseRule(freq, value)
}

// RuleFromComponent extracts the recurrence rule of an iCal component. It
// returns nil without error when the component does not recur. A TZID on
// DTSTART becomes the rule's timezone so expansion follows that wall clock.
func RuleFromComponent(comp *ical.Component) (*Rule, error) {
	prop := comp.Props.Get(ical.PropRecurrenceRule)
	if prop == nil || prop.Value == "" {
		return nil, nil
	}

	value := prop.Value
	if dtstart := comp.Props.Get(ical.PropDateTimeStart); dtstart != nil {
		if tzid := dtstart.Params.Get("TZID"); tzid != "" && !strings.Contains(strings.ToUpper(value), "TZID=") {
			value += ";TZID=" + tzid
		}
	}

	rule, err := ParseRRule(value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE '%s': %w", prop.Value, err)
	}
	if uid := comp.Props.Get(ical.PropUID); uid != nil && uid.Value != "" {
		rule.Description = "imported from " + uid.Value
	}
	return rule, nil
}

// SetRuleOnComponent writes rule as the component's RRULE property, replacing
// any existing one. A nil rule removes the property.
func SetRuleOnComponent(comp *ical.Component, rule *Rule) {
	if rule == nil {
		delete(comp.Props, ical.PropRecurrenceRule)
		return
	}
	prop := ical.NewProp(ical.PropRecurrenceRule)
	prop.Value = rule.RRuleString()
	comp.Props.Set(prop)
}

package domain

import "encoding/json"

// CompositeView merges a StateRecord with its fun facts for callers.
//
// When FactsHidden is set the funfacts field is left out of the JSON
// encoding entirely; otherwise it is always present, as [] when empty.
type CompositeView struct {
	StateRecord
	Facts       []string
	FactsHidden bool
}

type compositeJSON struct {
	StateRecord
	Contiguous bool      `json:"contiguous"`
	Facts      *[]string `json:"funfacts,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v CompositeView) MarshalJSON() ([]byte, error) {
	out := compositeJSON{StateRecord: v.StateRecord, Contiguous: v.Contiguous()}
	if !v.FactsHidden {
		facts := v.Facts
		if facts == nil {
			facts = []string{}
		}
		out.Facts = &facts
	}
	return json.Marshal(out)
}

// NewCompositeView builds the view for record from an optional document.
// show is the outcome of the display policy for this read path.
func NewCompositeView(record StateRecord, doc FactDocument, found, show bool) CompositeView {
	view := CompositeView{StateRecord: record, FactsHidden: !show}
	if !show {
		return view
	}
	view.Facts = []string{}
	if found && doc.Len() > 0 {
		view.Facts = doc.Clone().Facts
	}
	return view
}

// Field names served by the single-field read endpoints.
const (
	FieldCapital    = "capital"
	FieldNickname   = "nickname"
	FieldPopulation = "population"
	FieldAdmission  = "admission"
)

// FieldView is the response for a single reference field.
type FieldView struct {
	State string
	Field string
	Value any
}

// MarshalJSON renders {"state": <name>, <field>: <value>}.
func (f FieldView) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"state": f.State, f.Field: f.Value})
}

// FieldOf extracts a named field from the record.
func FieldOf(record StateRecord, field string) (FieldView, bool) {
	view := FieldView{State: record.Name, Field: field}
	switch field {
	case FieldCapital:
		view.Value = record.Capital
	case FieldNickname:
		view.Value = record.Nickname
	case FieldPopulation:
		view.Value = record.Population
	case FieldAdmission:
		view.Value = record.AdmissionDate
	default:
		return FieldView{}, false
	}
	return view, true
}

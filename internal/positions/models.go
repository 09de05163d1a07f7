// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package positions

// ButtonType enumerates the call types a panel button can place.
type ButtonType string

const (
	ButtonShout          ButtonType = "SHOUT"
	ButtonOverride       ButtonType = "OVERRIDE"
	ButtonRing           ButtonType = "RING"
	ButtonNone           ButtonType = "NONE"
	ButtonConvertedShout ButtonType = "CONVERTED_SHOUT"
)

// PanelType distinguishes the two communication panel hardware families.
type PanelType string

const (
	PanelRDVS PanelType = "RDVS"
	PanelVSCS PanelType = "VSCS"
)

// Facility is a node in the facility hierarchy (ARTCC, TRACON, tower).
type Facility struct {
	ID        string      `json:"id"`
	ParentID  string      `json:"parentId,omitempty"`
	Positions []Position  `json:"positions,omitempty"`
	Children  []*Facility `json:"childFacilities,omitempty"`
}

// Position is one configured controller position within a facility.
// CallsignPrefix and CallsignSuffix are matched against the first and last
// underscore-separated tokens of the claimed network callsign; FrequencyHz
// must match the claimed frequency exactly.
type Position struct {
	ID             int64     `json:"id"`
	FacilityID     string    `json:"facility"`
	Name           string    `json:"name"`
	Sector         string    `json:"sector"`
	CallsignPrefix string    `json:"callsignPrefix"`
	CallsignSuffix string    `json:"callsignSuffix"`
	FrequencyHz    int64     `json:"frequencyHz"`
	DialCode       string    `json:"dialCode,omitempty"`
	PanelType      PanelType `json:"panelType"`
	Buttons        []Button  `json:"buttons,omitempty"`
}

// SectorKey returns the broadcast-group key for this position,
// `<facility>-<sectorCode>`.
func (p *Position) SectorKey() string {
	return p.FacilityID + "-" + p.Sector
}

// Button is one panel button configuration: which call type it places and at
// which sector or facility group it points.
type Button struct {
	ID         int64      `json:"id"`
	FacilityID string     `json:"facility"`
	ShortName  string     `json:"shortName"`
	LongName   string     `json:"longName,omitempty"`
	Target     string     `json:"target"`
	Type       ButtonType `json:"type"`
	DialCode   string     `json:"dialCode,omitempty"`
}

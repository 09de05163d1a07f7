// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package vatsim

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Controller is one ATC connection reported by the network data feed.
type Controller struct {
	CID         int       `json:"cid"`
	Name        string    `json:"name"`
	Callsign    string    `json:"callsign"`
	Frequency   string    `json:"frequency"`
	Facility    int       `json:"facility"`
	Rating      int       `json:"rating"`
	Server      string    `json:"server"`
	LogonTime   time.Time `json:"logon_time"`
	LastUpdated time.Time `json:"last_updated"`
}

// General carries feed metadata; Update changes whenever the feed content does.
type General struct {
	Version          int       `json:"version"`
	Update           string    `json:"update"`
	UpdateTimestamp  time.Time `json:"update_timestamp"`
	ConnectedClients int       `json:"connected_clients"`
}

// Feed is the subset of the VATSIM v3 data file Switchboard consumes.
type Feed struct {
	General     General      `json:"general"`
	Controllers []Controller `json:"controllers"`
}

// ParseFrequencyHz converts a feed frequency string like "119.000" (MHz) to
// integer hertz.
func ParseFrequencyHz(s string) (int64, error) {
	mhz, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frequency %q: %w", s, err)
	}
	return int64(math.Round(mhz * 1e6)), nil
}

// Override is a manually maintained liveness entry merged into the feed.
// Used for event staffing and local testing where the network feed lags.
type Override struct {
	CID       int    `json:"cid" validate:"required,gt=0"`
	Callsign  string `json:"callsign" validate:"required,min=3"`
	Frequency string `json:"frequency" validate:"required"`
}

// Package timeutil implements the scheduling time policy: conversion between
// the organization's civil timezone and UTC, and computation of target send
// instants from an anchor date, a lead time, and a fixed time-of-day.
//
// All conversions go through the tz database via time.LoadLocation; no
// fixed-hour-offset arithmetic is used, so seasonal offset changes are
// handled correctly.
package timeutil

import (
	"fmt"
	"time"

	"stagecall/internal/types"
)

// DefaultTimezone is the civil timezone the engine schedules in.
const DefaultTimezone = "Asia/Jerusalem"

// Policy converts between the configured civil timezone and UTC and computes
// send instants. All methods are pure: "now" is always an explicit parameter.
type Policy struct {
	loc *time.Location
}

// NewPolicy loads the named tz-database zone and returns a Policy bound to it.
func NewPolicy(tzName string) (*Policy, error) {
	if tzName == "" {
		tzName = DefaultTimezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", tzName, err)
	}
	return &Policy{loc: loc}, nil
}

// MustPolicy is NewPolicy that panics on error. For use in tests and in
// process initialization where a bad zone name is a deployment bug.
func MustPolicy(tzName string) *Policy {
	p, err := NewPolicy(tzName)
	if err != nil {
		panic(err)
	}
	return p
}

// Location returns the policy's tz-database location.
func (p *Policy) Location() *time.Location { return p.loc }

// Localize combines a calendar date (time component ignored) and a local
// time-of-day into a UTC instant. The date is interpreted in the policy's
// civil timezone; time.Date resolves the correct seasonal offset.
func (p *Policy) Localize(date time.Time, tod types.TimeOfDay) time.Time {
	local := time.Date(date.Year(), date.Month(), date.Day(),
		tod.Hour, tod.Minute, 0, 0, p.loc)
	return local.UTC()
}

// LocalTimeOfDay extracts the wall-clock time of the instant in the policy's
// civil timezone. Used to verify round-trip stability across DST regimes.
func (p *Policy) LocalTimeOfDay(t time.Time) types.TimeOfDay {
	local := t.In(p.loc)
	return types.TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}
}

// ComputeSendAt computes the target send instant for a message:
//
//  1. Candidate = (anchorDate - leadDays) at tod, local time.
//  2. If the candidate is already in the past relative to now, move it to
//     tomorrow (local calendar) at the same time-of-day.
//  3. If applyWeekendRule is set and the resulting local date falls on the
//     weekend (Friday or Saturday), advance to Sunday at the same
//     time-of-day. Only the INIT message type uses the weekend rule.
//
// The function is pure: identical inputs always yield an identical instant.
func (p *Policy) ComputeSendAt(now, anchorDate time.Time, leadDays int, tod types.TimeOfDay, applyWeekendRule bool) time.Time {
	candidate := anchorDate.AddDate(0, 0, -leadDays)
	sendAt := p.Localize(candidate, tod)

	if !sendAt.After(now) {
		// Already past: tomorrow in local terms, same time-of-day.
		tomorrow := now.In(p.loc).AddDate(0, 0, 1)
		sendAt = p.Localize(tomorrow, tod)
	}

	if applyWeekendRule {
		sendAt = p.skipWeekend(sendAt, tod)
	}

	return sendAt
}

// skipWeekend pushes an instant falling on a local Friday or Saturday
// forward to Sunday at the same time-of-day.
func (p *Policy) skipWeekend(t time.Time, tod types.TimeOfDay) time.Time {
	local := t.In(p.loc)
	switch local.Weekday() {
	case time.Friday:
		return p.Localize(local.AddDate(0, 0, 2), tod)
	case time.Saturday:
		return p.Localize(local.AddDate(0, 0, 1), tod)
	default:
		return t
	}
}

// IsWeekend reports whether the instant falls on a local weekend day.
func (p *Policy) IsWeekend(t time.Time) bool {
	wd := t.In(p.loc).Weekday()
	return wd == time.Friday || wd == time.Saturday
}

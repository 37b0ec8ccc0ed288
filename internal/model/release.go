package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReleaseType string

const (
	ReleaseTypeAlwaysOpen ReleaseType = "ALWAYS_OPEN"
	ReleaseTypeWeekly     ReleaseType = "WEEKLY_RELEASE"
	ReleaseTypeMonthly    ReleaseType = "MONTHLY_RELEASE"
	ReleaseTypeCustomDate ReleaseType = "CUSTOM_DATE"
)

// WeeklyReleaseConfig opens one calendar week at a time: the gate for a
// target week fires on that week's DayOfWeek at Hour. AdvanceDays extends
// the booking horizon past the released week's Saturday.
type WeeklyReleaseConfig struct {
	DayOfWeek   time.Weekday `json:"day_of_week"`
	Hour        string       `json:"hour"`
	AdvanceDays int          `json:"advance_days"`
}

// MonthlyReleaseConfig opens whole months: day ReleaseDay of the month
// TargetMonthOffset months before the target month, at Hour. With
// FallbackToWeekday a weekend release day shifts to the next Monday.
type MonthlyReleaseConfig struct {
	ReleaseDay        int    `json:"release_day"`
	Hour              string `json:"hour"`
	TargetMonthOffset int    `json:"target_month_offset"`
	FallbackToWeekday bool   `json:"fallback_to_weekday"`
}

type CustomReleaseDate struct {
	ReleaseDate     time.Time `json:"release_date"`
	TargetStartDate time.Time `json:"target_start_date"`
	TargetEndDate   time.Time `json:"target_end_date"`
}

type CustomReleaseDates []CustomReleaseDate

func (c CustomReleaseDates) Value() (driver.Value, error) {
	if c == nil {
		return json.Marshal([]CustomReleaseDate{})
	}
	return json.Marshal(c)
}

func (c *CustomReleaseDates) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for custom release dates", src)
	}
	return json.Unmarshal(b, c)
}

type WeeklyConfigColumn struct {
	*WeeklyReleaseConfig
}

func (c WeeklyConfigColumn) Value() (driver.Value, error) {
	if c.WeeklyReleaseConfig == nil {
		return nil, nil
	}
	return json.Marshal(c.WeeklyReleaseConfig)
}

func (c *WeeklyConfigColumn) Scan(src interface{}) error {
	if src == nil {
		c.WeeklyReleaseConfig = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for weekly release config", src)
	}
	c.WeeklyReleaseConfig = &WeeklyReleaseConfig{}
	return json.Unmarshal(b, c.WeeklyReleaseConfig)
}

type MonthlyConfigColumn struct {
	*MonthlyReleaseConfig
}

func (c MonthlyConfigColumn) Value() (driver.Value, error) {
	if c.MonthlyReleaseConfig == nil {
		return nil, nil
	}
	return json.Marshal(c.MonthlyReleaseConfig)
}

func (c *MonthlyConfigColumn) Scan(src interface{}) error {
	if src == nil {
		c.MonthlyReleaseConfig = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for monthly release config", src)
	}
	c.MonthlyReleaseConfig = &MonthlyReleaseConfig{}
	return json.Unmarshal(b, c.MonthlyReleaseConfig)
}

// AgendaReleaseSchedule decides when a future date's agenda becomes
// bookable. A disabled schedule behaves as ALWAYS_OPEN.
type AgendaReleaseSchedule struct {
	Base
	DoctorID       uuid.UUID           `db:"doctor_id" json:"doctor_id"`
	OrganizationID uuid.UUID           `db:"organization_id" json:"organization_id"`
	ReleaseType    ReleaseType         `db:"release_type" json:"release_type"`
	WeeklyConfig   WeeklyConfigColumn  `db:"weekly_config" json:"weekly_config,omitempty"`
	MonthlyConfig  MonthlyConfigColumn `db:"monthly_config" json:"monthly_config,omitempty"`
	CustomDates    CustomReleaseDates  `db:"custom_dates" json:"custom_dates,omitempty"`
	Enabled        bool                `db:"enabled" json:"enabled"`
}

// ReleaseCheck reports whether a target date's agenda has opened.
type ReleaseCheck struct {
	Released    bool       `json:"released"`
	Reason      string     `json:"reason,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
}

// BookingWindow is the currently-open horizon, a UI hint only.
type BookingWindow struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

type SaveReleaseScheduleRequest struct {
	DoctorID       uuid.UUID             `json:"doctor_id" binding:"required"`
	OrganizationID uuid.UUID             `json:"organization_id" binding:"required"`
	ReleaseType    ReleaseType           `json:"release_type" binding:"required,oneof=ALWAYS_OPEN WEEKLY_RELEASE MONTHLY_RELEASE CUSTOM_DATE"`
	WeeklyConfig   *WeeklyReleaseConfig  `json:"weekly_config"`
	MonthlyConfig  *MonthlyReleaseConfig `json:"monthly_config"`
	CustomDates    CustomReleaseDates    `json:"custom_dates"`
	Enabled        bool                  `json:"enabled"`
}

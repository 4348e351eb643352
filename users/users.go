package users

import (
	"strings"
	"time"

	"github.com/mckhtech/uni360-go/internal/utils"
)

// StudyStage tracks how far along the study-abroad journey a student is.
type StudyStage string

const (
	StageExploring StudyStage = "exploring" // Browsing universities and courses
	StageApplying  StudyStage = "applying"  // Applications in progress
	StageAdmitted  StudyStage = "admitted"  // Holds at least one offer
	StageVisa      StudyStage = "visa"      // Visa application underway
	StageEnrolled  StudyStage = "enrolled"  // Studying abroad
)

// User is the locally cached snapshot of the authenticated student. The
// backend remains authoritative; this copy exists so the portal can render
// a session immediately after restart without a network round trip.
type User struct {
	ID            string     `json:"id,omitempty"`             // Unique identifier, backend-issued or client-generated fallback
	Email         string     `json:"email,omitempty"`          // Student's email address
	FirstName     string     `json:"first_name,omitempty"`     // First name
	LastName      string     `json:"last_name,omitempty"`      // Last name
	Phone         string     `json:"phone,omitempty"`          // Contact number, international format
	Nationality   string     `json:"nationality,omitempty"`    // ISO country name
	TargetCountry string     `json:"target_country,omitempty"` // Intended study destination
	Stage         StudyStage `json:"stage,omitempty"`          // Current journey stage
	AvatarURL     string     `json:"avatar_url,omitempty"`     // Profile picture
	DateJoined    time.Time  `json:"date_joined,omitempty"`    // When the account was created
	LastLogin     time.Time  `json:"last_login,omitempty"`     // Last successful login
}

// Partial carries an update to a subset of User fields. Nil fields are
// left untouched by Merge.
type Partial struct {
	Email         *string     `json:"email,omitempty"`
	FirstName     *string     `json:"first_name,omitempty"`
	LastName      *string     `json:"last_name,omitempty"`
	Phone         *string     `json:"phone,omitempty"`
	Nationality   *string     `json:"nationality,omitempty"`
	TargetCountry *string     `json:"target_country,omitempty"`
	Stage         *StudyStage `json:"stage,omitempty"`
	AvatarURL     *string     `json:"avatar_url,omitempty"`
}

// Merge applies the non-nil fields of p to a copy of u and returns it.
// The ID is never touched by a merge.
func (u User) Merge(p Partial) User {
	if p.Email != nil {
		u.Email = utils.Value(p.Email)
	}
	if p.FirstName != nil {
		u.FirstName = utils.Value(p.FirstName)
	}
	if p.LastName != nil {
		u.LastName = utils.Value(p.LastName)
	}
	if p.Phone != nil {
		u.Phone = utils.Value(p.Phone)
	}
	if p.Nationality != nil {
		u.Nationality = utils.Value(p.Nationality)
	}
	if p.TargetCountry != nil {
		u.TargetCountry = utils.Value(p.TargetCountry)
	}
	if p.Stage != nil {
		u.Stage = utils.Value(p.Stage)
	}
	if p.AvatarURL != nil {
		u.AvatarURL = utils.Value(p.AvatarURL)
	}
	return u
}

// DisplayName returns the student's full name, falling back to the email
// local part when no name has been set.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

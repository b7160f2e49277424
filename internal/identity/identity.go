// Package identity produces deterministic record identifiers and repairs
// rows that arrive from the remote sheet without one.
package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/inscripciones-api/internal/models"
)

const timeSuffixLayout = "20060102_150405"

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// Generate builds an ID of the form TOKEN_YYYYMMDD_HHMMSS where TOKEN is the
// record's legajo, falling back to dni, falling back to the literal TEMP.
// Two calls within the same second on the same token collide; data entry is
// human paced so no disambiguating suffix is appended.
func Generate(rec models.Record) string {
	return GenerateAt(rec, time.Now())
}

// GenerateAt is Generate with an explicit clock.
func GenerateAt(rec models.Record, at time.Time) string {
	token := rec.Get("legajo")
	if token == "" {
		token = rec.Get("dni")
	}
	if token == "" {
		token = "TEMP"
	}
	token = nonAlnum.ReplaceAllString(token, "")
	if token == "" {
		token = "TEMP"
	}
	return token + "_" + at.Format(timeSuffixLayout)
}

// IsLegacyUUID reports whether an ID looks like a UUID left over from the
// previous ID scheme: longer than 20 characters with at least four hyphens.
func IsLegacyUUID(id string) bool {
	return len(id) > 20 && strings.Count(id, "-") >= 4
}

// Migrate rewrites a legacy UUID-shaped ID in place using the current
// generator. Any other ID shape is left untouched. Returns true when the
// record was changed.
func Migrate(rec models.Record) bool {
	if !IsLegacyUUID(rec.Get("id")) {
		return false
	}
	rec["id"] = Generate(rec)
	return true
}

// Repair derives an ID for a record that has none. The derivation is
// content based so that repeated mirrors of the same remote row converge on
// the same ID: a version-5 UUID (URL namespace) over dni, legajo and materia
// when any of them is present, a random version-4 UUID as a last resort.
func Repair(rec models.Record) string {
	dni := rec.Get("dni")
	legajo := rec.Get("legajo")
	materia := rec.Get("materia")
	if dni != "" || legajo != "" || materia != "" {
		name := dni + "_" + legajo + materia
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
	}
	return uuid.NewString()
}

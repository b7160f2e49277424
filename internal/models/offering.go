package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Offering is one row of the course catalog: a subject taught by a professor
// in a commission, for a year and shift, with an optional seat quota.
// Offerings are immutable at runtime; reloading the catalog replaces the set.
type Offering struct {
	Materia  string `json:"materia"`
	Profesor string `json:"profesor"`
	Comision string `json:"comision"`
	Anio     int    `json:"anio"`
	Turno    string `json:"turno"`
	Horario  string `json:"horario"`
	Cupo     *int   `json:"cupo"`
	Tipo     string `json:"tipo"`
}

// UnmarshalJSON tolerates the key variants present in catalog files
// (año/anio/Año for the year, turno/Turno for the shift) and accepts
// numbers or numeric strings for año, comisión and cupo.
func (o *Offering) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.Materia = rawString(raw, "materia", "Materia")
	o.Profesor = rawString(raw, "profesor", "Profesor")
	o.Comision = rawString(raw, "comision", "comisión", "Comision")
	o.Turno = rawString(raw, "turno", "Turno")
	o.Horario = rawString(raw, "horario", "Horario")
	o.Tipo = rawString(raw, "tipo", "Tipo")

	if n, ok := rawInt(raw, "anio", "año", "Año"); ok {
		o.Anio = n
	}
	if n, ok := rawInt(raw, "cupo", "Cupo"); ok {
		cupo := n
		o.Cupo = &cupo
	}
	return nil
}

func rawString(raw map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(msg, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(msg, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func rawInt(raw map[string]json.RawMessage, keys ...string) (int, bool) {
	for _, key := range keys {
		msg, ok := raw[key]
		if !ok || string(msg) == "null" {
			continue
		}
		var n int
		if err := json.Unmarshal(msg, &n); err == nil {
			return n, true
		}
		var s string
		if err := json.Unmarshal(msg, &s); err == nil {
			if parsed, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

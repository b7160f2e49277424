package models

// Canonical column order for the record file and every remote push/mirror.
// All persistence, comparison and transport operations use this exact order.
var Columns = []string{
	"id",
	"fecha_inscripcion",
	"nombre",
	"apellido",
	"dni",
	"fecha_nacimiento",
	"edad",
	"legajo",
	"direccion",
	"telefono",
	"email",
	"nombre_padre",
	"nombre_madre",
	"telefono_emergencia",
	"saeta",
	"obra_social",
	"seguro_escolar",
	"pago_voluntario",
	"monto",
	"permiso",
	"observaciones",
	"anio",
	"turno",
	"materia",
	"profesor",
	"comision",
	"horario",
	"en_lista_espera",
}

// Waitlist marker values for en_lista_espera.
const (
	WaitlistYes = "Sí"
	WaitlistNo  = "No"
)

// Record is a single enrollment, stored as a flat field → value mapping.
// Every field is a string on disk and on the wire; typed parsing is the
// consumer's responsibility.
type Record map[string]string

// Get returns the value for a field, empty string when absent.
func (r Record) Get(field string) string {
	if r == nil {
		return ""
	}
	return r[field]
}

// ID returns the record identity.
func (r Record) ID() string {
	return r.Get("id")
}

// Waitlisted reports whether the record sits on the waitlist.
func (r Record) Waitlisted() bool {
	return r.Get("en_lista_espera") == WaitlistYes
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Row projects the record onto the given header order; missing fields
// become empty strings.
func (r Record) Row(header []string) []string {
	row := make([]string, len(header))
	for i, field := range header {
		row[i] = r.Get(field)
	}
	return row
}

// FromRow maps positional cells onto the given field names. Cells beyond the
// header are ignored; missing tail cells become empty strings.
func FromRow(header []string, cells []string) Record {
	rec := make(Record, len(header))
	for i, field := range header {
		if field == "" {
			continue
		}
		if i < len(cells) {
			rec[field] = cells[i]
		} else {
			rec[field] = ""
		}
	}
	return rec
}

// Blank reports whether every field besides id is empty.
func (r Record) Blank() bool {
	for k, v := range r {
		if k == "id" {
			continue
		}
		if v != "" {
			return false
		}
	}
	return true
}

// EqualCanonical compares two records over the canonical columns only.
func (r Record) EqualCanonical(other Record) bool {
	for _, field := range Columns {
		if r.Get(field) != other.Get(field) {
			return false
		}
	}
	return true
}

// RecordFilter narrows record listings.
type RecordFilter struct {
	DNI        string
	Materia    string
	Profesor   string
	Comision   string
	Anio       string
	Turno      string
	Waitlisted string
	Page       int
	PageSize   int
}

// Matches reports whether a record passes the filter.
func (f RecordFilter) Matches(rec Record) bool {
	if f.DNI != "" && rec.Get("dni") != f.DNI {
		return false
	}
	if f.Materia != "" && rec.Get("materia") != f.Materia {
		return false
	}
	if f.Profesor != "" && rec.Get("profesor") != f.Profesor {
		return false
	}
	if f.Comision != "" && rec.Get("comision") != f.Comision {
		return false
	}
	if f.Anio != "" && rec.Get("anio") != f.Anio {
		return false
	}
	if f.Turno != "" && rec.Get("turno") != f.Turno {
		return false
	}
	if f.Waitlisted != "" && rec.Get("en_lista_espera") != f.Waitlisted {
		return false
	}
	return true
}

// Pagination carries listing metadata.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

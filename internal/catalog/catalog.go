// Package catalog holds the read-mostly set of course offerings and answers
// the cascading queries behind the enrollment form.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/inscripciones-api/internal/models"
)

// Catalog is the in-memory offering set. Reload swaps the whole set; there
// are no partial updates.
type Catalog struct {
	mu        sync.RWMutex
	offerings []models.Offering
	logger    *zap.Logger
}

// Load reads the catalog file. A missing or malformed file yields an empty
// catalog and a warning; the rest of the system stays operable.
func Load(path string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{logger: logger}
	if err := c.Reload(path); err != nil {
		logger.Sugar().Warnw("catalog unavailable, starting empty", "path", path, "error", err)
	}
	return c
}

// Reload replaces the offering set from the given file. All or nothing: on
// error the previous set is kept.
func (c *Catalog) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var offerings []models.Offering
	if err := json.Unmarshal(data, &offerings); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	c.mu.Lock()
	c.offerings = offerings
	c.mu.Unlock()
	c.logger.Sugar().Infow("catalog loaded", "offerings", len(offerings))
	return nil
}

// Len returns the number of offerings.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.offerings)
}

// Subjects returns every distinct subject, sorted.
func (c *Catalog) Subjects() []string {
	return c.collect(func(o models.Offering) (string, bool) {
		return o.Materia, o.Materia != ""
	})
}

// SubjectsByYear returns the sorted subjects offered in a given year.
func (c *Catalog) SubjectsByYear(year int) []string {
	return c.collect(func(o models.Offering) (string, bool) {
		return o.Materia, o.Materia != "" && o.Anio == year
	})
}

// Professors returns the sorted professors teaching a subject.
func (c *Catalog) Professors(materia string) []string {
	return c.collect(func(o models.Offering) (string, bool) {
		return o.Profesor, o.Profesor != "" && o.Materia == materia
	})
}

// Commissions returns the sorted commissions for a subject and professor.
func (c *Catalog) Commissions(materia, profesor string) []string {
	return c.collect(func(o models.Offering) (string, bool) {
		return o.Comision, o.Comision != "" && o.Materia == materia && o.Profesor == profesor
	})
}

// Shifts returns every distinct shift in the catalog, sorted.
func (c *Catalog) Shifts() []string {
	return c.collect(func(o models.Offering) (string, bool) {
		return o.Turno, o.Turno != ""
	})
}

// Schedule returns a printable schedule for the offering: the free-text
// horario when the catalog carries one, "Turno: <shift>" when only the shift
// is known. Unknown triples return "".
func (c *Catalog) Schedule(materia, profesor, comision string) string {
	off := c.Offering(materia, profesor, comision)
	if off == nil {
		return ""
	}
	if off.Horario != "" {
		return off.Horario
	}
	if off.Turno != "" {
		return "Turno: " + off.Turno
	}
	return ""
}

// Offering returns the full offering for a triple, nil when unknown.
func (c *Catalog) Offering(materia, profesor, comision string) *models.Offering {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.offerings {
		o := &c.offerings[i]
		if o.Materia == materia && o.Profesor == profesor && o.Comision == comision {
			out := *o
			return &out
		}
	}
	return nil
}

func (c *Catalog) collect(pick func(models.Offering) (string, bool)) []string {
	c.mu.RLock()
	seen := make(map[string]struct{})
	for _, o := range c.offerings {
		if v, ok := pick(o); ok {
			seen[v] = struct{}{}
		}
	}
	c.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

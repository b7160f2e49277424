package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries the fields rendered on an enrollment certificate.
type CertificateData struct {
	Institution string
	Nombre      string
	Apellido    string
	DNI         string
	Legajo      string
	Materia     string
	Profesor    string
	Comision    string
	Turno       string
	Anio        string
	Fecha       string
	Waitlisted  bool
}

// CertificateExporter renders per-student enrollment certificates.
type CertificateExporter struct{}

// NewCertificateExporter constructs a certificate exporter.
func NewCertificateExporter() *CertificateExporter {
	return &CertificateExporter{}
}

// Render produces the certificate PDF for one enrollment.
func (e *CertificateExporter) Render(data CertificateData) ([]byte, error) {
	if data.Nombre == "" && data.Apellido == "" {
		return nil, fmt.Errorf("certificate requires a student name")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	institution := data.Institution
	if institution == "" {
		institution = "Escuela de Música"
	}

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(institution), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, tr("Constancia de Inscripción"), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	body := fmt.Sprintf(
		"Se deja constancia de que %s %s, DNI %s, legajo %s, se encuentra inscripto/a en la materia %s, comisión %s, a cargo de %s, turno %s, ciclo lectivo %s.",
		data.Nombre, data.Apellido, data.DNI, data.Legajo,
		data.Materia, data.Comision, data.Profesor, data.Turno, data.Anio,
	)
	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 7, tr(body), "", "J", false)
	pdf.Ln(4)

	if data.Waitlisted {
		pdf.SetFont("Arial", "I", 11)
		pdf.MultiCell(0, 7, tr("La inscripción se encuentra en lista de espera hasta que se libere una vacante."), "", "J", false)
		pdf.Ln(4)
	}

	fecha := data.Fecha
	if fecha == "" {
		fecha = time.Now().Format("02/01/2006")
	}
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, tr("Fecha de emisión: "+fecha), "", 1, "L", false, 0, "")
	pdf.Ln(18)
	pdf.CellFormat(0, 8, tr("____________________________"), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, tr("Firma y sello"), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ParseExportFormat accepts csv or xlsx, defaulting to csv.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return ExportCSV, nil
	case "xlsx", "excel":
		return ExportXLSX, nil
	default:
		return "", fmt.Errorf("%w: export format %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// ExportColumns is the header row of a patient export.
var ExportColumns = []string{
	"Patient ID", "First Name", "Last Name", "Date of Birth", "Gender", "Phone Number",
	"Province", "District", "Facility", "TB Status", "HIV Status", "Registration Date",
}

const exportSheet = "Patients"

func exportRow(p Patient) []string {
	return []string{
		p.PatientID, p.FirstName, p.LastName, p.DateOfBirth.String(), p.Gender, p.PhoneNumber,
		p.Province, p.District, p.Facility, p.TBStatus, p.HIVStatus, p.RegistrationDate.String(),
	}
}

// ExportPatients writes every active patient to w and audits the export.
func (s *Service) ExportPatients(ctx context.Context, w io.Writer, format ExportFormat, userID string) error {
	patients, err := s.store.ListPatients(ctx, PatientFilter{})
	if err != nil {
		return fmt.Errorf("list patients: %w", err)
	}

	switch format {
	case ExportXLSX:
		err = writePatientsXLSX(w, patients)
	default:
		err = writePatientsCSV(w, patients)
	}
	if err != nil {
		return err
	}

	s.audit(ctx, AuditEvent{
		UserID:       userID,
		Action:       ActionExport,
		ResourceType: ResourcePatient,
		NewValues: map[string]any{
			"format":      string(format),
			"recordCount": len(patients),
		},
	})
	return nil
}

func writePatientsCSV(w io.Writer, patients []Patient) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return err
	}
	for _, p := range patients {
		if err := cw.Write(exportRow(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writePatientsXLSX(w io.Writer, patients []Patient) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}

	header := make([]any, len(ExportColumns))
	for i, c := range ExportColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(ExportColumns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(exportSheet, "A1", lastCol+"1", bold); err != nil {
		return err
	}

	for i, p := range patients {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := exportRow(p)
		row := make([]any, len(values))
		for j, v := range values {
			row[j] = v
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}

// ImportTemplate returns the CSV template offered to users before an import.
func ImportTemplate() []byte {
	var b strings.Builder
	cw := csv.NewWriter(&b)
	cw.Write(TemplateColumns)
	cw.Write([]string{
		"John", "Doe", "1985-03-15", "male", "+27123456789", "123 Main St, Johannesburg",
		"Gauteng", "City of Johannesburg", "Chris Hani Baragwanath Hospital", "negative", "unknown",
	})
	cw.Write([]string{
		"Jane", "Smith", "1990-07-22", "female", "+27987654321", "456 Oak Ave, Cape Town",
		"Western Cape", "City of Cape Town", "Groote Schuur Hospital", "suspected", "negative",
	})
	cw.Flush()
	return []byte(b.String())
}

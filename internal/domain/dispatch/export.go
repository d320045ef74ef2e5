package dispatch

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const runSheet = "Run Sheet"

var runSheetHeadings = []string{"Seq", "Order", "Customer", "Phone", "Payment", "COD Amount", "Outcome", "COD Collected"}

// ExportRunSheet renders a manifest as an XLSX run sheet for the rider
func (s *Service) ExportRunSheet(ctx context.Context, manifestID uint) (*bytes.Buffer, string, error) {
	m, err := s.GetManifest(ctx, manifestID)
	if err != nil {
		return nil, "", err
	}
	r, err := s.riders.GetRider(ctx, m.RiderID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", runSheet); err != nil {
		return nil, "", fmt.Errorf("failed to name run sheet: %w", err)
	}

	// Summary block
	summary := [][]any{
		{"Manifest", m.ManifestNumber},
		{"Rider", r.Name},
		{"Zone", m.ZoneName},
		{"Status", string(m.Status)},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(runSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, "", fmt.Errorf("failed to write run sheet summary: %w", err)
		}
	}

	headerRow := len(summary) + 2
	if err := f.SetSheetRow(runSheet, fmt.Sprintf("A%d", headerRow), &runSheetHeadings); err != nil {
		return nil, "", fmt.Errorf("failed to write run sheet headings: %w", err)
	}

	rowNo := headerRow + 1
	for _, item := range m.ActiveItems() {
		row := []any{item.SequenceNumber, "", "", "", "", item.CODAmount.InexactFloat64(), string(item.Outcome), item.CODCollected.InexactFloat64()}
		if item.Order != nil {
			row[1] = item.Order.OrderNumber
			row[2] = item.Order.CustomerName
			row[3] = item.Order.CustomerPhone
			row[4] = string(item.Order.PaymentMethod)
		}
		if err := f.SetSheetRow(runSheet, fmt.Sprintf("A%d", rowNo), &row); err != nil {
			return nil, "", fmt.Errorf("failed to write run sheet row: %w", err)
		}
		rowNo++
	}

	totals := []any{"", "Total", "", "", "", m.TotalCODExpected.InexactFloat64(), "", m.TotalCODCollected.InexactFloat64()}
	if err := f.SetSheetRow(runSheet, fmt.Sprintf("A%d", rowNo), &totals); err != nil {
		return nil, "", fmt.Errorf("failed to write run sheet totals: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render run sheet: %w", err)
	}

	return buf, m.ManifestNumber + ".xlsx", nil
}

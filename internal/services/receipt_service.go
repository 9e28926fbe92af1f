package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/utils"

	"github.com/phpdave11/gofpdf"
)

// ReceiptService renders a booking receipt as PDF.
type ReceiptService struct {
	Ledger *BookingLedger
}

type receiptData struct {
	Booking models.Booking
	Trip    models.Trip
}

// Receipt returns the PDF bytes and a download filename for a booking the actor may view.
func (s ReceiptService) Receipt(ctx context.Context, bookingID string, actor domain.Actor) ([]byte, string, error) {
	b, err := s.Ledger.GetBooking(ctx, bookingID, actor)
	if err != nil {
		return nil, "", err
	}
	trip, err := s.Ledger.Inventory.GetTrip(ctx, b.TripID)
	if err != nil {
		return nil, "", err
	}
	utils.LogCtx(ctx, "docs", "generate_receipt", fmt.Sprintf("booking_id=%s status=%s", b.ID, b.Status))
	return buildReceiptPDF(receiptData{Booking: b, Trip: trip})
}

func buildReceiptPDF(d receiptData) ([]byte, string, error) {
	b, t := d.Booking, d.Trip

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Booking Receipt", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BOOKING RECEIPT")
	pdf.Ln(12)

	route := safe(t.Origin, "-")
	for _, stop := range t.Stops {
		route += " -> " + safe(stop, "-")
	}
	route += " -> " + safe(t.Destination, "-")

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Booking      : %s", safe(b.ID, "-")),
		fmt.Sprintf("Passenger    : %s", safe(b.PassengerID, "-")),
		fmt.Sprintf("Driver       : %s", safe(b.DriverID, "-")),
		fmt.Sprintf("Departure    : %s", utils.FormatDateTime(t.DepartureAt)),
		fmt.Sprintf("Seats        : %d", b.SeatsRequested),
		fmt.Sprintf("Status       : %s", b.Status),
		fmt.Sprintf("Booked at    : %s", utils.FormatDateTime(b.CreatedAt)),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}
	pdf.MultiCell(0, 7, "Route        : "+route, "", "", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Total: "+formatMoney(b.TotalPrice))
	pdf.Ln(8)
	if b.Status == models.BookingCancelled {
		pdf.Cell(0, 8, "Refund: "+formatMoney(b.RefundAmount))
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
		pdf.Cell(0, 6, "Cancelled ("+safe(string(b.CancelReason), "-")+")")
		pdf.Ln(8)
	}
	if b.Rating != nil {
		pdf.SetFont("Helvetica", "", 11)
		pdf.Cell(0, 6, fmt.Sprintf("Rating given : %d/5", *b.Rating))
		pdf.Ln(8)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "The total was fixed when the seats were reserved and does not follow later price changes.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("RECEIPT_%s_%s.pdf", safeFilenamePart(b.ID), utils.FormatDate(t.DepartureAt))
	return buf.Bytes(), filename, nil
}

func safe(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func safeFilenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	s = replacer.Replace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

func formatMoney(v int64) string {
	return utils.FormatAmount(v)
}

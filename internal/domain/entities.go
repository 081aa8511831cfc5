package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vendor is a supplier row created from an uploaded record.
type Vendor struct {
	ID           int64   `json:"vendor_id"`
	FileUploadID int64   `json:"file_upload_id"`
	VendorName   *string `json:"vendor_name"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
}

// Customer is a billed party row created from an uploaded record.
type Customer struct {
	ID              int64   `json:"customer_id"`
	FileUploadID    int64   `json:"file_upload_id"`
	CustomerName    *string `json:"customer_name"`
	CustomerEmail   *string `json:"customer_email"`
	CustomerPhone   *string `json:"customer_phone"`
	CustomerAddress *string `json:"customer_address"`
}

// Invoice references its vendor and customer by id.
type Invoice struct {
	ID            int64               `json:"invoice_id"`
	FileUploadID  int64               `json:"file_upload_id"`
	VendorID      int64               `json:"vendor_id"`
	CustomerID    int64               `json:"customer_id"`
	InvoiceNumber *string             `json:"invoice_number"`
	IssueDate     *time.Time          `json:"issue_date"`
	DueDate       *time.Time          `json:"due_date"`
	TotalAmount   decimal.NullDecimal `json:"total_amount"`
}

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	ID           int64               `json:"item_id"`
	FileUploadID int64               `json:"file_upload_id"`
	InvoiceID    int64               `json:"invoice_id"`
	Description  *string             `json:"description"`
	Quantity     *int64              `json:"quantity"`
	UnitPrice    decimal.NullDecimal `json:"unit_price"`
	TotalPrice   decimal.NullDecimal `json:"total_price"`
}

// Payment records money received against an invoice.
type Payment struct {
	ID            int64               `json:"payment_id"`
	FileUploadID  int64               `json:"file_upload_id"`
	InvoiceID     int64               `json:"invoice_id"`
	PaymentDate   *time.Time          `json:"payment_date"`
	AmountPaid    decimal.NullDecimal `json:"amount_paid"`
	PaymentMethod *string             `json:"payment_method"`
}

// UploadRecords groups every row written for one upload.
type UploadRecords struct {
	FileUploadID int64         `json:"file_upload_id"`
	Invoices     []Invoice     `json:"invoices"`
	Vendors      []Vendor      `json:"vendors"`
	Customers    []Customer    `json:"customers"`
	Payments     []Payment     `json:"payments"`
	InvoiceItems []InvoiceItem `json:"invoice_items"`
}

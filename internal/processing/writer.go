package processing

import (
	"context"
	"fmt"

	"github.com/rpattn/invoiceflow/internal/domain"
	"github.com/rpattn/invoiceflow/internal/repository"
)

// EntityWriter coerces grouped payloads into typed rows and stages them on a
// unit of work. It never commits.
type EntityWriter struct {
	uploadID int64
}

// NewEntityWriter stamps every row it writes with uploadID.
func NewEntityWriter(uploadID int64) *EntityWriter {
	return &EntityWriter{uploadID: uploadID}
}

// WriteRecord stages one record in foreign key order. Vendor and customer rows
// are always written so the invoice can reference them; line items and payments
// only when the record carries values for them.
func (w *EntityWriter) WriteRecord(ctx context.Context, uow repository.UnitOfWork, payload domain.GroupedPayload) error {
	vendorID, err := w.CreateVendor(ctx, uow, payload.Vendor)
	if err != nil {
		return err
	}
	customerID, err := w.CreateCustomer(ctx, uow, payload.Customer)
	if err != nil {
		return err
	}
	invoiceID, err := w.CreateInvoice(ctx, uow, payload.Invoice, vendorID, customerID)
	if err != nil {
		return err
	}
	if len(payload.InvoiceItem) > 0 {
		if _, err := w.CreateInvoiceItem(ctx, uow, payload.InvoiceItem, invoiceID); err != nil {
			return err
		}
	}
	if len(payload.Payment) > 0 {
		if _, err := w.CreatePayment(ctx, uow, payload.Payment, invoiceID); err != nil {
			return err
		}
	}
	return nil
}

// CreateVendor stages a vendor row.
func (w *EntityWriter) CreateVendor(ctx context.Context, uow repository.UnitOfWork, values domain.ColumnValues) (int64, error) {
	c := newColumnReader(domain.TableVendor, values)
	vendor := domain.Vendor{
		FileUploadID: w.uploadID,
		VendorName:   c.str("vendor_name"),
		Email:        c.str("email"),
		Phone:        c.str("phone"),
		Address:      c.str("address"),
	}
	if err := c.err(); err != nil {
		return 0, err
	}
	id, err := uow.InsertVendor(ctx, vendor)
	if err != nil {
		return 0, fmt.Errorf("failed to create vendor: %w", err)
	}
	return id, nil
}

// CreateCustomer stages a customer row.
func (w *EntityWriter) CreateCustomer(ctx context.Context, uow repository.UnitOfWork, values domain.ColumnValues) (int64, error) {
	c := newColumnReader(domain.TableCustomer, values)
	customer := domain.Customer{
		FileUploadID:    w.uploadID,
		CustomerName:    c.str("customer_name"),
		CustomerEmail:   c.str("customer_email"),
		CustomerPhone:   c.str("customer_phone"),
		CustomerAddress: c.str("customer_address"),
	}
	if err := c.err(); err != nil {
		return 0, err
	}
	id, err := uow.InsertCustomer(ctx, customer)
	if err != nil {
		return 0, fmt.Errorf("failed to create customer: %w", err)
	}
	return id, nil
}

// CreateInvoice stages an invoice referencing the record's vendor and customer.
func (w *EntityWriter) CreateInvoice(ctx context.Context, uow repository.UnitOfWork, values domain.ColumnValues, vendorID, customerID int64) (int64, error) {
	c := newColumnReader(domain.TableInvoice, values)
	invoice := domain.Invoice{
		FileUploadID:  w.uploadID,
		VendorID:      vendorID,
		CustomerID:    customerID,
		InvoiceNumber: c.str("invoice_number"),
		IssueDate:     c.date("issue_date"),
		DueDate:       c.date("due_date"),
		TotalAmount:   c.decimal("total_amount"),
	}
	if err := c.err(); err != nil {
		return 0, err
	}
	id, err := uow.InsertInvoice(ctx, invoice)
	if err != nil {
		return 0, fmt.Errorf("failed to create invoice: %w", err)
	}
	return id, nil
}

// CreateInvoiceItem stages a line item for invoiceID.
func (w *EntityWriter) CreateInvoiceItem(ctx context.Context, uow repository.UnitOfWork, values domain.ColumnValues, invoiceID int64) (int64, error) {
	c := newColumnReader(domain.TableInvoiceItem, values)
	item := domain.InvoiceItem{
		FileUploadID: w.uploadID,
		InvoiceID:    invoiceID,
		Description:  c.str("description"),
		Quantity:     c.integer("quantity"),
		UnitPrice:    c.decimal("unit_price"),
		TotalPrice:   c.decimal("total_price"),
	}
	if err := c.err(); err != nil {
		return 0, err
	}
	id, err := uow.InsertInvoiceItem(ctx, item)
	if err != nil {
		return 0, fmt.Errorf("failed to create invoice item: %w", err)
	}
	return id, nil
}

// CreatePayment stages a payment for invoiceID.
func (w *EntityWriter) CreatePayment(ctx context.Context, uow repository.UnitOfWork, values domain.ColumnValues, invoiceID int64) (int64, error) {
	c := newColumnReader(domain.TablePayment, values)
	payment := domain.Payment{
		FileUploadID:  w.uploadID,
		InvoiceID:     invoiceID,
		PaymentDate:   c.date("payment_date"),
		AmountPaid:    c.decimal("amount_paid"),
		PaymentMethod: c.str("payment_method"),
	}
	if err := c.err(); err != nil {
		return 0, err
	}
	id, err := uow.InsertPayment(ctx, payment)
	if err != nil {
		return 0, fmt.Errorf("failed to create payment: %w", err)
	}
	return id, nil
}

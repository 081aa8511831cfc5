package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/invoiceflow/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type unitOfWorkFactory struct {
	pool *pgxpool.Pool
}

// NewUnitOfWorkFactory opens one transaction per unit of work on pool.
func NewUnitOfWorkFactory(pool *pgxpool.Pool) UnitOfWorkFactory {
	return &unitOfWorkFactory{pool: pool}
}

func (f *unitOfWorkFactory) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := f.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &txUnitOfWork{tx: tx}, nil
}

type txUnitOfWork struct {
	tx pgx.Tx
}

func (u *txUnitOfWork) InsertVendor(ctx context.Context, vendor domain.Vendor) (int64, error) {
	return u.insert(ctx, "vendor",
		`INSERT INTO vendors (vendor_name, email, phone, address, file_upload_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING vendor_id`,
		vendor.VendorName, vendor.Email, vendor.Phone, vendor.Address, vendor.FileUploadID,
	)
}

func (u *txUnitOfWork) InsertCustomer(ctx context.Context, customer domain.Customer) (int64, error) {
	return u.insert(ctx, "customer",
		`INSERT INTO customers (customer_name, customer_email, customer_phone, customer_address, file_upload_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING customer_id`,
		customer.CustomerName, customer.CustomerEmail, customer.CustomerPhone, customer.CustomerAddress, customer.FileUploadID,
	)
}

func (u *txUnitOfWork) InsertInvoice(ctx context.Context, invoice domain.Invoice) (int64, error) {
	return u.insert(ctx, "invoice",
		`INSERT INTO invoices (invoice_number, issue_date, due_date, total_amount, vendor_id, customer_id, file_upload_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING invoice_id`,
		invoice.InvoiceNumber, dateArg(invoice.IssueDate), dateArg(invoice.DueDate), invoice.TotalAmount,
		invoice.VendorID, invoice.CustomerID, invoice.FileUploadID,
	)
}

func (u *txUnitOfWork) InsertInvoiceItem(ctx context.Context, item domain.InvoiceItem) (int64, error) {
	return u.insert(ctx, "invoice item",
		`INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, total_price, file_upload_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING item_id`,
		item.InvoiceID, item.Description, item.Quantity, item.UnitPrice, item.TotalPrice, item.FileUploadID,
	)
}

func (u *txUnitOfWork) InsertPayment(ctx context.Context, payment domain.Payment) (int64, error) {
	return u.insert(ctx, "payment",
		`INSERT INTO payments (invoice_id, payment_date, amount_paid, payment_method, file_upload_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING payment_id`,
		payment.InvoiceID, dateArg(payment.PaymentDate), payment.AmountPaid, payment.PaymentMethod, payment.FileUploadID,
	)
}

func (u *txUnitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback is safe to call after Commit; pgx reports ErrTxClosed which is ignored.
func (u *txUnitOfWork) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (u *txUnitOfWork) insert(ctx context.Context, entity string, sql string, args ...any) (int64, error) {
	var id int64
	if err := u.tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", entity, err)
	}
	return id, nil
}

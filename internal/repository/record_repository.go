package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/invoiceflow/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type recordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository wires a read-side repository for persisted upload rows.
func NewRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &recordRepository{pool: pool}
}

func (r *recordRepository) ListByUpload(ctx context.Context, uploadID int64) (domain.UploadRecords, error) {
	records := domain.UploadRecords{
		FileUploadID: uploadID,
		Invoices:     []domain.Invoice{},
		Vendors:      []domain.Vendor{},
		Customers:    []domain.Customer{},
		Payments:     []domain.Payment{},
		InvoiceItems: []domain.InvoiceItem{},
	}

	if err := r.each(ctx, "vendors",
		`SELECT vendor_id, vendor_name, email, phone, address FROM vendors WHERE file_upload_id = $1 ORDER BY vendor_id`,
		uploadID, func(rows pgx.Rows) error {
			var (
				v                           domain.Vendor
				name, email, phone, address pgtype.Text
			)
			if err := rows.Scan(&v.ID, &name, &email, &phone, &address); err != nil {
				return err
			}
			v.FileUploadID = uploadID
			v.VendorName, v.Email, v.Phone, v.Address = textPtr(name), textPtr(email), textPtr(phone), textPtr(address)
			records.Vendors = append(records.Vendors, v)
			return nil
		}); err != nil {
		return domain.UploadRecords{}, err
	}

	if err := r.each(ctx, "customers",
		`SELECT customer_id, customer_name, customer_email, customer_phone, customer_address
		 FROM customers WHERE file_upload_id = $1 ORDER BY customer_id`,
		uploadID, func(rows pgx.Rows) error {
			var (
				c                           domain.Customer
				name, email, phone, address pgtype.Text
			)
			if err := rows.Scan(&c.ID, &name, &email, &phone, &address); err != nil {
				return err
			}
			c.FileUploadID = uploadID
			c.CustomerName, c.CustomerEmail, c.CustomerPhone, c.CustomerAddress = textPtr(name), textPtr(email), textPtr(phone), textPtr(address)
			records.Customers = append(records.Customers, c)
			return nil
		}); err != nil {
		return domain.UploadRecords{}, err
	}

	if err := r.each(ctx, "invoices",
		`SELECT invoice_id, invoice_number, issue_date, due_date, total_amount::text, vendor_id, customer_id
		 FROM invoices WHERE file_upload_id = $1 ORDER BY invoice_id`,
		uploadID, func(rows pgx.Rows) error {
			var (
				inv                domain.Invoice
				number, total      pgtype.Text
				issueDate, dueDate pgtype.Date
			)
			if err := rows.Scan(&inv.ID, &number, &issueDate, &dueDate, &total, &inv.VendorID, &inv.CustomerID); err != nil {
				return err
			}
			amount, err := numericFromText(total)
			if err != nil {
				return err
			}
			inv.FileUploadID = uploadID
			inv.InvoiceNumber = textPtr(number)
			inv.IssueDate, inv.DueDate = datePtr(issueDate), datePtr(dueDate)
			inv.TotalAmount = amount
			records.Invoices = append(records.Invoices, inv)
			return nil
		}); err != nil {
		return domain.UploadRecords{}, err
	}

	if err := r.each(ctx, "invoice items",
		`SELECT item_id, invoice_id, description, quantity, unit_price::text, total_price::text
		 FROM invoice_items WHERE file_upload_id = $1 ORDER BY item_id`,
		uploadID, func(rows pgx.Rows) error {
			var (
				item              domain.InvoiceItem
				description       pgtype.Text
				quantity          pgtype.Int8
				unitPrice, totalP pgtype.Text
			)
			if err := rows.Scan(&item.ID, &item.InvoiceID, &description, &quantity, &unitPrice, &totalP); err != nil {
				return err
			}
			unit, err := numericFromText(unitPrice)
			if err != nil {
				return err
			}
			total, err := numericFromText(totalP)
			if err != nil {
				return err
			}
			item.FileUploadID = uploadID
			item.Description = textPtr(description)
			if quantity.Valid {
				value := quantity.Int64
				item.Quantity = &value
			}
			item.UnitPrice, item.TotalPrice = unit, total
			records.InvoiceItems = append(records.InvoiceItems, item)
			return nil
		}); err != nil {
		return domain.UploadRecords{}, err
	}

	if err := r.each(ctx, "payments",
		`SELECT payment_id, invoice_id, payment_date, amount_paid::text, payment_method
		 FROM payments WHERE file_upload_id = $1 ORDER BY payment_id`,
		uploadID, func(rows pgx.Rows) error {
			var (
				p              domain.Payment
				paymentDate    pgtype.Date
				amount, method pgtype.Text
			)
			if err := rows.Scan(&p.ID, &p.InvoiceID, &paymentDate, &amount, &method); err != nil {
				return err
			}
			paid, err := numericFromText(amount)
			if err != nil {
				return err
			}
			p.FileUploadID = uploadID
			p.PaymentDate = datePtr(paymentDate)
			p.AmountPaid = paid
			p.PaymentMethod = textPtr(method)
			records.Payments = append(records.Payments, p)
			return nil
		}); err != nil {
		return domain.UploadRecords{}, err
	}

	return records, nil
}

func (r *recordRepository) each(ctx context.Context, table string, sql string, uploadID int64, scan func(pgx.Rows) error) error {
	rows, err := r.pool.Query(ctx, sql, uploadID)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	return nil
}

func textPtr(value pgtype.Text) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func datePtr(value pgtype.Date) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func dateArg(value *time.Time) pgtype.Date {
	if value == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *value, Valid: true}
}

func numericFromText(value pgtype.Text) (decimal.NullDecimal, error) {
	if !value.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(value.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid numeric %q: %w", value.String, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	TypeReceipt = "receipt"
	TypeReport  = "report"
	TypeLabel   = "label"
)

const (
	Brand           = "qaraa"
	DefaultWidth    = 32
	DefaultCurrency = "₸"

	itemNameWidth  = 20
	labelNameWidth = 32
	timeLayout     = "02-01-2006 15:04"
)

var ErrUnknownType = errors.New("unknown job type")

type Options struct {
	Width    int
	Currency string
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	return o
}

type ReceiptItem struct {
	ProductName string  `json:"productName"`
	Size        string  `json:"size"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type ReceiptPayload struct {
	Seller string        `json:"seller"`
	Items  []ReceiptItem `json:"items"`
	Method string        `json:"method"`
	Total  *float64      `json:"total"`
	Given  float64       `json:"given"`
	Change float64       `json:"change"`
}

type ReportPayload struct {
	Seller     string   `json:"seller"`
	KaspiQR    float64  `json:"kaspiQr"`
	HalykQR    float64  `json:"halykQr"`
	Cash       float64  `json:"cash"`
	GrandTotal *float64 `json:"grandTotal"`
}

type LabelPayload struct {
	ProductName string   `json:"productName"`
	Barcode     string   `json:"barcode"`
	Size        string   `json:"size"`
	Price       *float64 `json:"price"`
}

// Render maps a job's type and payload to a formatted document.
// It is deterministic: identical arguments, including now, always
// produce an identical document.
func Render(typ string, payload []byte, opts Options, now time.Time) (*Document, error) {
	opts = opts.withDefaults()

	switch typ {
	case TypeReceipt:
		p, err := parseReceipt(payload)
		if err != nil {
			return nil, err
		}
		return renderReceipt(p, opts, now), nil
	case TypeReport:
		p, err := parseReport(payload)
		if err != nil {
			return nil, err
		}
		return renderReport(p, opts, now), nil
	case TypeLabel:
		p, err := parseLabel(payload)
		if err != nil {
			return nil, err
		}
		return renderLabel(p, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

// ValidatePayload checks that the payload carries every field its type
// requires. The enqueue gateway uses it so that a job accepted into
// the queue cannot later fail rendering on a missing field.
func ValidatePayload(typ string, payload []byte) error {
	switch typ {
	case TypeReceipt:
		_, err := parseReceipt(payload)
		return err
	case TypeReport:
		_, err := parseReport(payload)
		return err
	case TypeLabel:
		_, err := parseLabel(payload)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

func parseReceipt(payload []byte) (*ReceiptPayload, error) {
	var p ReceiptPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("receipt: invalid payload: %w", err)
	}
	if p.Seller == "" {
		return nil, fmt.Errorf("receipt: missing seller")
	}
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("receipt: missing items")
	}
	for i, item := range p.Items {
		if item.ProductName == "" {
			return nil, fmt.Errorf("receipt: item %d: missing productName", i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("receipt: item %d: quantity must be positive", i)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("receipt: item %d: price must be non-negative", i)
		}
	}
	if p.Method == "" {
		return nil, fmt.Errorf("receipt: missing method")
	}
	if p.Total == nil {
		return nil, fmt.Errorf("receipt: missing total")
	}
	return &p, nil
}

func parseReport(payload []byte) (*ReportPayload, error) {
	var p ReportPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("report: invalid payload: %w", err)
	}
	if p.GrandTotal == nil {
		return nil, fmt.Errorf("report: missing grandTotal")
	}
	return &p, nil
}

func parseLabel(payload []byte) (*LabelPayload, error) {
	var p LabelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("label: invalid payload: %w", err)
	}
	if p.ProductName == "" {
		return nil, fmt.Errorf("label: missing productName")
	}
	if p.Barcode == "" {
		return nil, fmt.Errorf("label: missing barcode")
	}
	if p.Size == "" {
		return nil, fmt.Errorf("label: missing size")
	}
	if p.Price == nil {
		return nil, fmt.Errorf("label: missing price")
	}
	return &p, nil
}

func renderReceipt(p *ReceiptPayload, opts Options, now time.Time) *Document {
	w := opts.Width
	doc := &Document{}

	doc.append(boldLine(center(Brand, w)))
	doc.append(textLine(rule('=', w)))
	doc.append(textLine(justify("Продавец:", p.Seller, w)))
	doc.append(textLine(rule('-', w)))

	for _, item := range p.Items {
		lineTotal := item.Price * float64(item.Quantity)
		doc.append(textLine(truncate(item.ProductName, itemNameWidth)))
		qty := fmt.Sprintf("%s x%d", item.Size, item.Quantity)
		doc.append(textLine(justify(qty, money(lineTotal, opts.Currency), w)))
	}

	doc.append(textLine(justify("Оплата:", p.Method, w)))
	doc.append(textLine(rule('-', w)))
	doc.append(textLine(justify("ИТОГО:", money(*p.Total, opts.Currency), w)))
	if p.Given > 0 {
		doc.append(textLine(justify("Получено:", money(p.Given, opts.Currency), w)))
	}
	if p.Change > 0 {
		doc.append(textLine(justify("Сдача:", money(p.Change, opts.Currency), w)))
	}
	doc.append(textLine(rule('=', w)))
	doc.append(textLine(center(now.Format(timeLayout), w)))
	doc.append(boldLine(center(Brand, w)))
	doc.append(textLine(center("Спасибо за покупку!", w)))

	return doc
}

func renderReport(p *ReportPayload, opts Options, now time.Time) *Document {
	w := opts.Width
	doc := &Document{}

	doc.append(textLine(center("ОТЧЁТ О ПРОДАЖАХ", w)))
	if p.Seller != "" {
		doc.append(textLine(justify("Продавец:", p.Seller, w)))
	}
	doc.append(textLine(center(now.Format(timeLayout), w)))
	doc.append(textLine(rule('=', w)))

	if p.KaspiQR > 0 {
		doc.append(textLine(justify("Kaspi QR:", money(p.KaspiQR, opts.Currency), w)))
	}
	if p.HalykQR > 0 {
		doc.append(textLine(justify("Halyk QR/Card:", money(p.HalykQR, opts.Currency), w)))
	}
	if p.Cash > 0 {
		doc.append(textLine(justify("Наличные:", money(p.Cash, opts.Currency), w)))
	}

	doc.append(textLine(rule('=', w)))
	doc.append(textLine(justify("ИТОГО:", money(*p.GrandTotal, opts.Currency), w)))
	doc.append(textLine(rule('=', w)))
	doc.append(textLine(center(now.Format(timeLayout), w)))
	doc.append(boldLine(center(Brand, w)))

	return doc
}

func renderLabel(p *LabelPayload, opts Options) *Document {
	w := opts.Width
	doc := &Document{}

	doc.append(boldLine(center(Brand, w)))
	doc.append(textLine(truncate(p.ProductName, labelNameWidth)))
	doc.append(textLine(rule('-', w)))
	doc.append(textLine(center(p.Barcode, w)))
	doc.append(textLine(rule('-', w)))
	doc.append(textLine(justify(p.Size, money(*p.Price, opts.Currency), w)))

	return doc
}

// money rounds to whole units and appends the currency symbol with no
// separating space: 2000₸.
func money(v float64, currency string) string {
	return strconv.FormatFloat(math.Round(v), 'f', 0, 64) + currency
}

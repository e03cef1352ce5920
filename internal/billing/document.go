package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/scoopstack/backend-scoopstack/internal/bank"
	"github.com/scoopstack/backend-scoopstack/internal/seller"
)

// BlockKind discriminates the sections of a rendered bill.
type BlockKind string

// Bill document sections, in render order.
const (
	BlockHeader     BlockKind = "header"
	BlockSellerInfo BlockKind = "sellerInfo"
	BlockParties    BlockKind = "parties"
	BlockMeta       BlockKind = "meta"
	BlockTable      BlockKind = "table"
	BlockNote       BlockKind = "note"
	BlockBanking    BlockKind = "banking"
	BlockRemarks    BlockKind = "remarks"
	BlockFooter     BlockKind = "footer"
)

// Block is one section of the declarative bill document. Exactly one payload
// field is set, matching Kind. Renderers walk the slice in order and may
// ignore kinds they do not understand.
type Block struct {
	Kind   BlockKind    `json:"kind"`
	Header *HeaderBlock `json:"header,omitempty"`
	Info   *InfoBlock   `json:"info,omitempty"`
	Table  *TableBlock  `json:"table,omitempty"`
	Text   *TextBlock   `json:"text,omitempty"`
	Footer *FooterBlock `json:"footer,omitempty"`
}

// HeaderBlock is the bill masthead.
type HeaderBlock struct {
	Title   string `json:"title"`
	Name    string `json:"name"`
	Slogan  string `json:"slogan,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// InfoBlock is a labelled list of key/value pairs.
type InfoBlock struct {
	Heading string     `json:"heading,omitempty"`
	Pairs   []InfoPair `json:"pairs"`
}

// InfoPair is one labelled line of an InfoBlock.
type InfoPair struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// TableBlock is the line-item table with its summary rows.
type TableBlock struct {
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

// TableRow is one printed table row. Summary rows render emphasised.
type TableRow struct {
	Cells   []string `json:"cells"`
	Summary bool     `json:"summary,omitempty"`
}

// TextBlock is a free-text section such as a note or remarks.
type TextBlock struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body"`
}

// FooterBlock closes the bill with the signing area.
type FooterBlock struct {
	SignatureURL string `json:"signatureUrl,omitempty"`
	QRCodeURL    string `json:"qrCodeUrl,omitempty"`
	Caption      string `json:"caption"`
}

// BillInput is everything needed to assemble a bill document.
type BillInput struct {
	SerialNo        string
	Date            time.Time
	CustomerName    string
	CustomerAddress string
	CustomerContact string
	Lines           []LineItem
	Discount        float64
	Note            string
	Remarks         string
}

// BuildDocument assembles the declarative block list for a bill. Blank rows
// are dropped; the table always ends with the three summary rows.
func BuildDocument(input BillInput, sellerDetails seller.Details, bankDetails bank.Details) []Block {
	blocks := []Block{
		{Kind: BlockHeader, Header: &HeaderBlock{
			Title:   "BILL OF SUPPLY",
			Name:    sellerDetails.SellerName,
			Slogan:  sellerDetails.Slogan,
			LogoURL: sellerDetails.LogoURL,
		}},
	}

	sellerPairs := []InfoPair{}
	if sellerDetails.GSTNumber != "" {
		sellerPairs = append(sellerPairs, InfoPair{Label: "GSTIN", Value: sellerDetails.GSTNumber})
	}
	if sellerDetails.FullAddress != "" {
		sellerPairs = append(sellerPairs, InfoPair{Label: "Address", Value: sellerDetails.FullAddress})
	}
	if sellerDetails.Contact != "" {
		sellerPairs = append(sellerPairs, InfoPair{Label: "Contact", Value: sellerDetails.Contact})
	}
	if len(sellerPairs) > 0 {
		blocks = append(blocks, Block{Kind: BlockSellerInfo, Info: &InfoBlock{Pairs: sellerPairs}})
	}

	customerPairs := []InfoPair{{Label: "Name", Value: input.CustomerName}}
	if input.CustomerAddress != "" {
		customerPairs = append(customerPairs, InfoPair{Label: "Address", Value: input.CustomerAddress})
	}
	if input.CustomerContact != "" {
		customerPairs = append(customerPairs, InfoPair{Label: "Contact", Value: input.CustomerContact})
	}
	blocks = append(blocks, Block{Kind: BlockParties, Info: &InfoBlock{Heading: "Billed To", Pairs: customerPairs}})

	blocks = append(blocks, Block{Kind: BlockMeta, Info: &InfoBlock{Pairs: []InfoPair{
		{Label: "Bill No", Value: input.SerialNo},
		{Label: "Date", Value: input.Date.Format("02-01-2006")},
	}}})

	blocks = append(blocks, Block{Kind: BlockTable, Table: buildTable(input.Lines, input.Discount)})

	if input.Note != "" {
		blocks = append(blocks, Block{Kind: BlockNote, Text: &TextBlock{Heading: "Note", Body: input.Note}})
	}

	if bankDetails.BankName != "" {
		blocks = append(blocks, Block{Kind: BlockBanking, Info: &InfoBlock{Heading: "Banking Details", Pairs: []InfoPair{
			{Label: "Bank", Value: bankDetails.BankName},
			{Label: "Branch", Value: bankDetails.BranchName},
			{Label: "IFSC", Value: bankDetails.IFSCCode},
			{Label: "Name", Value: bankDetails.BankingName},
			{Label: "A/C No", Value: bankDetails.AccountNumber},
		}}})
	}

	if input.Remarks != "" {
		blocks = append(blocks, Block{Kind: BlockRemarks, Text: &TextBlock{Heading: "Remarks", Body: input.Remarks}})
	}

	blocks = append(blocks, Block{Kind: BlockFooter, Footer: &FooterBlock{
		SignatureURL: sellerDetails.SignatureURL,
		QRCodeURL:    sellerDetails.QRCodeURL,
		Caption:      "Authorized Signatory",
	}})

	return blocks
}

func buildTable(lines []LineItem, discount float64) *TableBlock {
	table := &TableBlock{
		Columns: []string{"#", "Product", "Qty", "Rate", "Total"},
	}

	n := 0
	for _, line := range lines {
		if !line.Filled() {
			continue
		}
		n++
		qty := trimFloat(line.Quantity)
		if line.Unit != "" {
			qty += " " + line.Unit
		}
		total := FormatAmount(line.Total)
		rate := FormatAmount(line.Price)
		if line.Free {
			rate = "FREE"
			total = "FREE"
		}
		table.Rows = append(table.Rows, TableRow{Cells: []string{
			fmt.Sprintf("%d", n), line.ProductName, qty, rate, total,
		}})
	}

	totals := Totals(lines, discount)
	table.Rows = append(table.Rows,
		TableRow{Summary: true, Cells: []string{"", "", "", "Sub Total", FormatAmount(totals.SubTotal)}},
		TableRow{Summary: true, Cells: []string{"", "", "", fmt.Sprintf("Discount (%s%%)", trimFloat(discount)), FormatAmount(totals.SubTotal - totals.DiscountedTotal)}},
		TableRow{Summary: true, Cells: []string{"", "", "", "Grand Total", FormatAmount(totals.DiscountedTotal)}},
	)
	return table
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

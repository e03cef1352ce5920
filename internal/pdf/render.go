// Package pdf renders bill documents and stock reports with gofpdf.
package pdf

import (
	"bytes"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog"

	"github.com/scoopstack/backend-scoopstack/internal/billing"
	"github.com/scoopstack/backend-scoopstack/internal/catalog"
)

const (
	pageMargin = 12.0
	lineHeight = 6.0
)

// BillRenderer renders the declarative block document to an A4 PDF.
type BillRenderer struct {
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// RenderBill walks the block list in order and produces the PDF bytes.
func (r BillRenderer) RenderBill(blocks []billing.Block) ([]byte, error) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.AliasNbPages("")

	var header *billing.HeaderBlock
	for _, block := range blocks {
		if block.Kind == billing.BlockHeader {
			header = block.Header
			break
		}
	}
	// The header hook fires on every page, including the ones a long table
	// breaks onto, so the title block repeats throughout the document.
	doc.SetHeaderFunc(func() {
		r.renderHeader(doc, header)
	})
	doc.SetFooterFunc(func() {
		doc.SetY(-15)
		doc.SetFont("Arial", "I", 8)
		doc.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", doc.PageNo()), "", 0, "C", false, 0, "")
	})
	doc.AddPage()

	for _, block := range blocks {
		switch block.Kind {
		case billing.BlockHeader:
			// drawn by the page header hook
		case billing.BlockSellerInfo, billing.BlockParties, billing.BlockMeta, billing.BlockBanking:
			r.renderInfo(doc, block.Info)
		case billing.BlockTable:
			r.renderTable(doc, block.Table)
		case billing.BlockNote, billing.BlockRemarks:
			r.renderText(doc, block.Text)
		case billing.BlockFooter:
			r.renderSignature(doc, block.Footer)
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render bill pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r BillRenderer) renderHeader(doc *gofpdf.Fpdf, h *billing.HeaderBlock) {
	if h == nil {
		return
	}
	if h.LogoURL != "" {
		r.embedImage(doc, h.LogoURL, pageMargin, doc.GetY(), 22)
	}
	doc.SetFont("Arial", "B", 18)
	doc.CellFormat(0, 9, sanitize(h.Name), "", 1, "C", false, 0, "")
	if h.Slogan != "" {
		doc.SetFont("Arial", "I", 9)
		doc.CellFormat(0, 5, sanitize(h.Slogan), "", 1, "C", false, 0, "")
	}
	doc.SetFont("Arial", "B", 11)
	doc.CellFormat(0, 7, sanitize(h.Title), "", 1, "C", false, 0, "")
	pageW, _ := doc.GetPageSize()
	doc.SetLineWidth(0.4)
	doc.Line(pageMargin, doc.GetY(), pageW-pageMargin, doc.GetY())
	doc.Ln(3)
}

func (r BillRenderer) renderInfo(doc *gofpdf.Fpdf, info *billing.InfoBlock) {
	if info == nil {
		return
	}
	if info.Heading != "" {
		doc.SetFont("Arial", "B", 10)
		doc.CellFormat(0, lineHeight, sanitize(info.Heading), "", 1, "L", false, 0, "")
	}
	doc.SetFont("Arial", "", 9)
	for _, pair := range info.Pairs {
		doc.SetFont("Arial", "B", 9)
		doc.CellFormat(28, lineHeight-1, sanitize(pair.Label)+":", "", 0, "L", false, 0, "")
		doc.SetFont("Arial", "", 9)
		doc.MultiCell(0, lineHeight-1, sanitize(pair.Value), "", "L", false)
	}
	doc.Ln(2)
}

func (r BillRenderer) renderTable(doc *gofpdf.Fpdf, table *billing.TableBlock) {
	if table == nil {
		return
	}
	widths := tableWidths(doc, len(table.Columns))

	doc.SetFont("Arial", "B", 9)
	doc.SetFillColor(235, 235, 235)
	for i, col := range table.Columns {
		doc.CellFormat(widths[i], lineHeight+1, sanitize(col), "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	for _, row := range table.Rows {
		if row.Summary {
			doc.SetFont("Arial", "B", 9)
		} else {
			doc.SetFont("Arial", "", 9)
		}
		for i, cell := range row.Cells {
			if i >= len(widths) {
				break
			}
			align := "L"
			if i >= len(row.Cells)-2 {
				align = "R"
			}
			border := "1"
			if row.Summary && cell == "" {
				border = ""
			}
			doc.CellFormat(widths[i], lineHeight, sanitize(cell), border, 0, align, false, 0, "")
		}
		doc.Ln(-1)
	}
	doc.Ln(3)
}

func (r BillRenderer) renderText(doc *gofpdf.Fpdf, text *billing.TextBlock) {
	if text == nil {
		return
	}
	if text.Heading != "" {
		doc.SetFont("Arial", "B", 10)
		doc.CellFormat(0, lineHeight, sanitize(text.Heading), "", 1, "L", false, 0, "")
	}
	doc.SetFont("Arial", "", 9)
	doc.MultiCell(0, lineHeight-1, sanitize(text.Body), "", "L", false)
	doc.Ln(2)
}

func (r BillRenderer) renderSignature(doc *gofpdf.Fpdf, footer *billing.FooterBlock) {
	if footer == nil {
		return
	}
	pageW, _ := doc.GetPageSize()
	doc.Ln(6)
	if footer.QRCodeURL != "" {
		r.embedImage(doc, footer.QRCodeURL, pageMargin, doc.GetY(), 25)
	}
	if footer.SignatureURL != "" {
		r.embedImage(doc, footer.SignatureURL, pageW-pageMargin-35, doc.GetY(), 35)
		doc.Ln(18)
	}
	doc.SetFont("Arial", "", 9)
	doc.CellFormat(0, lineHeight, sanitize(footer.Caption), "", 1, "R", false, 0, "")
}

// embedImage fetches a remote image and places it on the page. Failures are
// logged and otherwise swallowed so a dead image URL never blocks an export.
func (r BillRenderer) embedImage(doc *gofpdf.Fpdf, url string, x, y, w float64) {
	// The header hook re-draws the logo on every page; fetch it once.
	if info := doc.GetImageInfo(url); info != nil {
		doc.ImageOptions(url, x, y, w, 0, false, gofpdf.ImageOptions{ReadDpi: true}, 0, "")
		return
	}
	client := r.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Get(url)
	if err != nil {
		r.Logger.Debug().Err(err).Str("url", url).Msg("bill image fetch failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.Logger.Debug().Int("status", resp.StatusCode).Str("url", url).Msg("bill image fetch failed")
		return
	}

	kind := imageKind(url, resp.Header.Get("Content-Type"))
	if kind == "" {
		r.Logger.Debug().Str("url", url).Msg("bill image type unsupported")
		return
	}
	opts := gofpdf.ImageOptions{ImageType: kind, ReadDpi: true}
	doc.RegisterImageOptionsReader(url, opts, resp.Body)
	if doc.Err() {
		r.Logger.Debug().Str("url", url).Msg("bill image decode failed")
		doc.ClearError()
		return
	}
	doc.ImageOptions(url, x, y, w, 0, false, opts, 0, "")
}

func imageKind(url, contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return "PNG"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return "JPG"
	}
	switch strings.ToLower(path.Ext(url)) {
	case ".png":
		return "PNG"
	case ".jpg", ".jpeg":
		return "JPG"
	}
	return ""
}

func tableWidths(doc *gofpdf.Fpdf, cols int) []float64 {
	pageW, _ := doc.GetPageSize()
	usable := pageW - 2*pageMargin
	switch cols {
	case 5:
		return []float64{12, usable - 12 - 30 - 30 - 32, 30, 30, 32}
	default:
		widths := make([]float64, cols)
		for i := range widths {
			widths[i] = usable / float64(cols)
		}
		return widths
	}
}

// sanitize maps strings onto the cp1252 glyph set the core fonts carry. The
// rupee sign has no cp1252 slot, so amounts print with an Rs prefix.
func sanitize(s string) string {
	return strings.ReplaceAll(s, "₹", "Rs ")
}

// StockRenderer renders the stock level report.
type StockRenderer struct {
	Logger zerolog.Logger
}

// StockReport produces a PDF table of current stock, flagging low rows.
func (r StockRenderer) StockReport(shopName string, generatedAt time.Time, products []catalog.Product) ([]byte, error) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.AliasNbPages("")
	doc.SetFooterFunc(func() {
		doc.SetY(-15)
		doc.SetFont("Arial", "I", 8)
		doc.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", doc.PageNo()), "", 0, "C", false, 0, "")
	})
	doc.AddPage()

	doc.SetFont("Arial", "B", 16)
	title := "Stock Report"
	if shopName != "" {
		title = shopName + " - Stock Report"
	}
	doc.CellFormat(0, 9, sanitize(title), "", 1, "C", false, 0, "")
	doc.SetFont("Arial", "", 9)
	doc.CellFormat(0, 6, generatedAt.Format("02-01-2006 15:04"), "", 1, "C", false, 0, "")
	doc.Ln(3)

	pageW, _ := doc.GetPageSize()
	usable := pageW - 2*pageMargin
	widths := []float64{12, usable - 12 - 35 - 25 - 28 - 28, 35, 25, 28, 28}
	headers := []string{"#", "Product", "Category", "Unit", "In Stock", "Min Stock"}

	doc.SetFont("Arial", "B", 9)
	doc.SetFillColor(235, 235, 235)
	for i, h := range headers {
		doc.CellFormat(widths[i], lineHeight+1, h, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Arial", "", 9)
	for i, p := range products {
		if p.LowStock {
			doc.SetTextColor(200, 30, 30)
		}
		minStock := "-"
		if p.MinStock != nil {
			minStock = fmt.Sprintf("%g", *p.MinStock)
		}
		cells := []string{
			fmt.Sprintf("%d", i+1), p.Name, p.Category, p.Unit,
			fmt.Sprintf("%g", p.Quantity), minStock,
		}
		for j, cell := range cells {
			align := "L"
			if j >= 4 {
				align = "R"
			}
			doc.CellFormat(widths[j], lineHeight, sanitize(cell), "1", 0, align, false, 0, "")
		}
		doc.Ln(-1)
		doc.SetTextColor(0, 0, 0)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render stock report: %w", err)
	}
	return buf.Bytes(), nil
}

package pipe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Some DMS installs export "text" reports that are really an HTML page with
// one <table>. Those are flattened to delimited lines before reconciliation.

func looksLikeHTMLTable(text string) bool {
	head := strings.ToLower(strings.TrimSpace(text))
	if len(head) > 4096 {
		head = head[:4096]
	}
	return strings.HasPrefix(head, "<") && strings.Contains(strings.ToLower(text), "<table")
}

// FlattenHTMLTable renders the first <table> of an HTML document as
// delim-joined lines, one per <tr>. Cell text is whitespace-collapsed and any
// delimiter inside a cell is replaced by a space.
func FlattenHTMLTable(html, delim string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return "", errors.New("no <table> element")
	}

	var b strings.Builder
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("th, td")
		if cells.Length() == 0 {
			return
		}
		cells.Each(func(i int, td *goquery.Selection) {
			if i > 0 {
				b.WriteString(delim)
			}
			v := strings.Join(strings.Fields(td.Text()), " ")
			b.WriteString(strings.ReplaceAll(v, delim, " "))
		})
		b.WriteByte('\n')
	})
	return b.String(), nil
}

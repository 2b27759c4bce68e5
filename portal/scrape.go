package portal

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Everything that depends on the markup of my.telegram.org lives in this file.

const (
	fieldAppID   = "app_id"
	fieldAppHash = "app_hash"
)

func parseDocument(r io.Reader) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(r)
}

// findFormFieldValue returns the value of the first input named name.
func findFormFieldValue(doc *goquery.Document, name string) (string, bool) {
	return doc.Find(`input[name="` + name + `"]`).First().Attr("value")
}

// findCredentialFields scans every .form-group for the app_id and app_hash
// labels. Both groups are looked up independently of their order.
func findCredentialFields(doc *goquery.Document) Credentials {
	var creds Credentials

	doc.Find(".form-group").Each(func(_ int, group *goquery.Selection) {
		label := group.Find("label").First()
		target, ok := label.Attr("for")
		if !ok {
			return
		}

		switch strings.ToLower(target) {
		case fieldAppID:
			creds.APIID = labelValue(label)
		case fieldAppHash:
			creds.APIHash = labelValue(label)
		}
	})

	return creds
}

// labelValue reads the span that follows a label. The portal wraps it in a
// div on the live site; fixtures sometimes put the span right after the label.
func labelValue(label *goquery.Selection) string {
	next := label.Next()
	if next.Is("span") {
		return strings.TrimSpace(next.Text())
	}
	return strings.TrimSpace(next.Find("span").First().Text())
}

package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/adi-253/chatfeed/internal/models"
)

// ConfigElementID is the id of the script element carrying the view
// configuration on a thread page.
const ConfigElementID = "chat-config"

// Page is what a server-rendered thread page tells the synchronizer.
type Page struct {
	View    *models.ThreadView
	SeedIDs []models.ID
}

// LoadPage parses a thread page: the embedded view configuration and the IDs
// of the messages it already displays.
func LoadPage(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	script := doc.Find("script#" + ConfigElementID).First()
	if script.Length() == 0 {
		return nil, errors.New("page has no chat configuration")
	}
	var view models.ThreadView
	if err := json.Unmarshal([]byte(strings.TrimSpace(script.Text())), &view); err != nil {
		return nil, fmt.Errorf("decode chat configuration: %w", err)
	}

	page := &Page{View: &view}
	doc.Find("[data-mid]").Each(func(_ int, sel *goquery.Selection) {
		mid, _ := sel.Attr("data-mid")
		if id := models.ParseID(mid); id > 0 {
			page.SeedIDs = append(page.SeedIDs, id)
		}
	})
	return page, nil
}

package filter

import (
	"html/template"
	"strings"
)

// DefaultBlockPageHTML is served for every blocked request unless a custom
// template is configured.
const DefaultBlockPageHTML = `<html><body><h1><center>Access to this website is blocked.</center></h1></body></html>`

// BlockPageData is passed to custom block page templates.
type BlockPageData struct {
	URL       string
	Host      string
	Reason    string
	Timestamp string
}

// BlockPage renders the synthetic response body for blocked requests.
// The zero value and a nil *BlockPage both render DefaultBlockPageHTML.
type BlockPage struct {
	template *template.Template
}

// NewBlockPage returns a BlockPage that always renders DefaultBlockPageHTML.
func NewBlockPage() *BlockPage { return &BlockPage{} }

// NewBlockPageFromTemplate creates a BlockPage from a custom template string.
func NewBlockPageFromTemplate(templateStr string) (*BlockPage, error) {
	tmpl, err := template.New("block").Parse(templateStr)
	if err != nil {
		return nil, err
	}
	return &BlockPage{template: tmpl}, nil
}

// NewBlockPageFromFile creates a BlockPage from a template file.
func NewBlockPageFromFile(path string) (*BlockPage, error) {
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return nil, err
	}
	return &BlockPage{template: tmpl}, nil
}

// RenderString returns the block page as a string. A template that fails to
// execute yields DefaultBlockPageHTML together with the error.
func (bp *BlockPage) RenderString(data BlockPageData) (string, error) {
	if bp == nil || bp.template == nil {
		return DefaultBlockPageHTML, nil
	}
	var sb strings.Builder
	if err := bp.template.Execute(&sb, data); err != nil {
		return DefaultBlockPageHTML, err
	}
	return sb.String(), nil
}

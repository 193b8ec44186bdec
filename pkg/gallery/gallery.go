// Package gallery renders the icon picker from a remote icon manifest.
// Unlike the polling chains this is a one-shot path: a single fetch, a
// single render pass, no retry.
package gallery

import (
	"context"
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/mcculloh213/digestwatch/pkg/models"
	"github.com/mcculloh213/digestwatch/pkg/ui"
	"github.com/pkg/errors"
)

// DefaultManifestURL points at the icon font's selection file as
// published with the upstream file manager.
const DefaultManifestURL = "https://raw.githubusercontent.com/mcculloh213/browsepy/master/browsepy/plugin/text_digest/static/fonts/selection.json"

// FetchManifest performs the one-shot manifest fetch. A nil httpClient
// falls back to a client with a default timeout.
func FetchManifest(ctx context.Context, httpClient *http.Client, url string) (models.IconManifest, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.IconManifest{}, errors.Wrap(err, "creating request")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return models.IconManifest{}, errors.Wrap(err, "fetching icon manifest")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.IconManifest{}, errors.Wrap(err, "reading response body")
	}
	if resp.StatusCode != http.StatusOK {
		return models.IconManifest{}, errors.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var manifest models.IconManifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return models.IconManifest{}, errors.Wrap(err, "decoding icon manifest")
	}
	return manifest, nil
}

// Populate appends one entry per manifest icon to the list and returns
// the number of entries appended.
func Populate(list ui.List, manifest models.IconManifest) int {
	for _, icon := range manifest.Icons {
		list.Append(ui.ListItem{
			Class: "icon-" + icon.Properties.Name,
			Label: icon.Properties.Name,
		})
	}
	return len(manifest.Icons)
}

// itemTemplate renders one list item per icon: glyph class first, the
// name as the visible label.
var itemTemplate = template.Must(template.New("gallery").Parse(
	`<ul class="icon-gallery">
{{- range .Icons}}
  <li><span class="icon-{{.Properties.Name}}"></span> {{.Properties.Name}}</li>
{{- end}}
</ul>
`))

// WriteHTML renders the manifest as a static gallery list.
func WriteHTML(w io.Writer, manifest models.IconManifest) error {
	if err := itemTemplate.Execute(w, manifest); err != nil {
		return errors.Wrap(err, "rendering gallery")
	}
	return nil
}

package models

// IconManifest mirrors an IcoMoon selection file. Only the glyph names
// are of interest; the remaining metadata is ignored on decode.
type IconManifest struct {
	Icons []Icon `json:"icons"`
}

// Icon is a single glyph entry of the manifest.
type Icon struct {
	Properties IconProperties `json:"properties"`
}

// IconProperties carries the glyph attributes the gallery renders.
type IconProperties struct {
	Name string `json:"name"` // Glyph name; the CSS class is "icon-<name>"
}

// Names returns the glyph names in manifest order.
func (m IconManifest) Names() []string {
	names := make([]string, 0, len(m.Icons))
	for _, icon := range m.Icons {
		names = append(names, icon.Properties.Name)
	}
	return names
}

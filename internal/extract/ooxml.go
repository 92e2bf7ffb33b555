package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// paragraphTag matches one paragraph element (<w:p> or <a:p>) including attributes.
var paragraphTag = regexp.MustCompile(`(?s)<[wa]:p[ >].*?</[wa]:p>`)

// openZip opens OOXML bytes as a zip archive.
func openZip(kind string, content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", kind, err)
	}
	return zr, nil
}

// readZipFile returns the contents of the named entry, or nil if absent.
func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, nil
}

// paragraphs returns the text of each non-empty paragraph in xml, reading runs matched by runTag.
// Paragraphs are separated by blank lines so the splitter can keep them together.
func paragraphs(xml string, runTag *regexp.Regexp) []string {
	var out []string
	for _, p := range paragraphTag.FindAllString(xml, -1) {
		var b strings.Builder
		for _, run := range runTag.FindAllStringSubmatch(p, -1) {
			b.WriteString(run[1])
		}
		if text := strings.TrimSpace(unescapeXML(b.String())); text != "" {
			out = append(out, text)
		}
	}
	return out
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}

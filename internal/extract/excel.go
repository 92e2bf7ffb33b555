package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders each sheet as a titled block of tab-separated rows, so formula
// tables stay together when chunked.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var blocks []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		var buf strings.Builder
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		if buf.Len() == 0 {
			continue
		}
		blocks = append(blocks, sheet+"\n"+strings.TrimRight(buf.String(), "\n"))
	}
	return strings.Join(blocks, "\n\n"), nil
}

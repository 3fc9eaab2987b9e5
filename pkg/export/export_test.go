package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSheet() Sheet {
	return Sheet{
		Title:   "CS101 Attendance",
		Summary: []string{"Date: 2024-01-10", "Present: 1 / 2"},
		Data: Dataset{
			Headers: []string{"Roll Number", "Name", "Status"},
			Rows: []map[string]string{
				{"Roll Number": "CSE001", "Name": "Ada Lovelace", "Status": "Present"},
				{"Roll Number": "CSE002", "Name": "Alan, Turing", "Status": "Absent"},
			},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleSheet())
	require.NoError(t, err)

	expected := "Roll Number,Name,Status\nCSE001,Ada Lovelace,Present\nCSE002,\"Alan, Turing\",Absent\n"
	assert.Equal(t, expected, string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Sheet{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	exporter := NewPDFExporter()
	out, err := exporter.Render(sampleSheet())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Equal(t, "application/pdf", exporter.ContentType())
}

func TestColumnWidthsFillPage(t *testing.T) {
	widths := columnWidths(sampleSheet().Data)
	require.Len(t, widths, 3)
	total := 0.0
	for _, w := range widths {
		total += w
	}
	assert.InDelta(t, pageWidth, total, 0.001)
	assert.Greater(t, widths[1], widths[2])
}

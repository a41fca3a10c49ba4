package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() Report {
	return Report{
		Title:    "Schedule changes",
		Subtitle: "session s-1",
		Sections: []Section{
			{
				Title: "Pending changes",
				Data: Dataset{
					Headers: []string{"Action", "Date"},
					Rows:    []map[string]string{{"Action": "simple_slot_create", "Date": "2024-01-01"}},
				},
			},
			{
				Title: "Reconciliation",
				Data:  Dataset{Headers: []string{"Bucket", "Count"}},
			},
		},
	}
}

func TestCSVExporterRenderReport(t *testing.T) {
	payload, err := NewCSVExporter().RenderReport(sampleReport())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	assert.Equal(t, []string{
		"Pending changes",
		"Action,Date",
		"simple_slot_create,2024-01-01",
		"",
		"Reconciliation",
		"Bucket,Count",
	}, lines)
}

func TestCSVExporterRenderSingleDataset(t *testing.T) {
	payload, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"A", "B"},
		Rows:    []map[string]string{{"A": "1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "A,B\n1,\n", string(payload))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)

	_, err = NewCSVExporter().RenderReport(Report{})
	require.Error(t, err)
}

func TestPDFExporterRenderReport(t *testing.T) {
	payload, err := NewPDFExporter().RenderReport(sampleReport())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestPDFExporterRequiresHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Dataset{}, "empty")
	require.Error(t, err)
}

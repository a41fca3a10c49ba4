package export

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Section is a titled table inside a report.
type Section struct {
	Title string
	Data  Dataset
}

// Report groups sections under a document title.
type Report struct {
	Title    string
	Subtitle string
	Sections []Section
}

func (d Dataset) record(row map[string]string) []string {
	out := make([]string, len(d.Headers))
	for i, header := range d.Headers {
		out[i] = row[header]
	}
	return out
}

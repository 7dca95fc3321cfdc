package leads

// Stats are the dashboard KPI counts.
type Stats struct {
	Total     int `json:"total"`
	Contacted int `json:"contacted"`
	Won       int `json:"won"`
}

// Summarize counts the given leads.
func Summarize(list []Lead) Stats {
	s := Stats{Total: len(list)}
	for _, l := range list {
		switch l.Status {
		case StatusContacted:
			s.Contacted++
		case StatusWon:
			s.Won++
		}
	}
	return s
}

// Column is one pipeline stage.
type Column struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Leads  []Lead `json:"leads"`
}

var pipelineStages = []struct{ status, title string }{
	{StatusLeads, "New Leads"},
	{StatusContacted, "Contacted"},
	{StatusWon, "Won"},
	{StatusLost, "Lost"},
}

// Pipeline groups leads into status columns. Leads without a known status
// land in the first column. Order within a column follows the input.
func Pipeline(list []Lead) []Column {
	cols := make([]Column, len(pipelineStages))
	index := make(map[string]int, len(pipelineStages))
	for i, st := range pipelineStages {
		cols[i] = Column{Status: st.status, Title: st.title, Leads: []Lead{}}
		index[st.status] = i
	}
	for _, l := range list {
		i := index[l.StatusOrDefault()]
		cols[i].Leads = append(cols[i].Leads, l)
	}
	return cols
}

// FormTypes returns the selector options: "all", the known form types, and
// any other type present in list, in first-seen order.
func FormTypes(list []Lead) []string {
	out := []string{AllTypes, "book-demo", "contact"}
	seen := map[string]bool{AllTypes: true, "book-demo": true, "contact": true}
	for _, l := range list {
		if l.FormType != "" && !seen[l.FormType] {
			seen[l.FormType] = true
			out = append(out, l.FormType)
		}
	}
	return out
}

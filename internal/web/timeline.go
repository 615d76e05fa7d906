package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"apptline/internal/board"
	appLog "apptline/internal/log"
	"apptline/internal/timeline"
)

//go:embed templates/timeline.html
var templateFS embed.FS

var timelinePage = template.Must(template.ParseFS(templateFS, "templates/timeline.html"))

type pageData struct {
	Resource string
	Name     string
	Version  uint64
	Range    string
	Buckets  []timeline.Bucket
	Rows     [][]boxView
	Dropped  int
}

type boxView struct {
	ID       string
	Label    string
	Patient  string
	Doctor   string
	Status   string
	Times    string
	Style    template.CSS
	Overflow bool
	Hovered  bool
	Selected bool
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookupBoard(w, r.URL.Query().Get("resource"))
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := timelinePage.Execute(w, newPageData(b.Snapshot())); err != nil {
		appLog.Error("render timeline page failed", err, "resource", b.ID())
	}
}

func newPageData(snap board.Snapshot) pageData {
	l := snap.Layout
	loc := l.Window.Start.Location()

	rows := make([][]boxView, 0, len(l.Rows))
	for _, row := range l.Rows {
		views := make([]boxView, 0, len(row))
		for _, p := range row {
			views = append(views, boxView{
				ID:       p.IntervalID,
				Label:    p.Label,
				Patient:  p.Patient,
				Doctor:   p.Doctor,
				Status:   string(p.Status),
				Times:    p.Start.In(loc).Format("15:04") + "–" + p.End.In(loc).Format("15:04"),
				Style:    boxStyle(p, l.Window.BucketCount),
				Overflow: p.Overflow,
				Hovered:  snap.Interaction.HoveredID == p.IntervalID,
				Selected: snap.Interaction.SelectedID == p.IntervalID,
			})
		}
		rows = append(rows, views)
	}

	var rng string
	if !l.Window.Start.IsZero() {
		rng = l.Window.Start.Format("2006-01-02 15:04") + " – " + l.Window.End.In(loc).Format("15:04 MST")
	}

	return pageData{
		Resource: snap.Resource,
		Name:     snap.Name,
		Version:  snap.Version,
		Range:    rng,
		Buckets:  l.Buckets,
		Rows:     rows,
		Dropped:  len(l.Warnings),
	}
}

// boxStyle converts bucket-relative percentages to offsets across the
// whole row.
func boxStyle(p timeline.PositionedInterval, bucketCount int) template.CSS {
	if bucketCount <= 0 {
		bucketCount = 1
	}
	n := float64(bucketCount)
	left := (float64(p.BucketIndex)*100 + p.LeftPercent) / n
	width := p.WidthPercent / n
	return template.CSS(fmt.Sprintf("left:%.4f%%;width:%.4f%%", left, width))
}

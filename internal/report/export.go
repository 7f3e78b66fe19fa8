package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

var queueHeader = []string{
	"show", "outlet", "critic", "severity", "kind", "bucket_distance", "score_delta",
	"score", "source", "confidence", "models", "reason", "url", "updated_at",
}

func (it *QueueItem) record() []string {
	score := ""
	if it.Score != nil {
		score = strconv.Itoa(*it.Score)
	}
	updated := ""
	if !it.UpdatedAt.IsZero() {
		updated = it.UpdatedAt.Format("2006-01-02 15:04")
	}
	return []string{
		it.Key.ShowID,
		it.Outlet,
		it.Critic,
		string(it.Severity),
		string(it.Kind),
		strconv.Itoa(it.BucketDistance),
		strconv.Itoa(it.ScoreDelta),
		score,
		string(it.Source),
		string(it.Confidence),
		it.Models,
		it.Reason,
		it.URL,
		updated,
	}
}

// WriteCSV writes the queue as CSV with a header row.
func WriteCSV(w io.Writer, items []QueueItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(queueHeader); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for i := range items {
		if err := cw.Write(items[i].record()); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// WriteXLSX writes the queue as a single-sheet workbook.
func WriteXLSX(w io.Writer, items []QueueItem) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Review Queue")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range queueHeader {
		header.AddCell().SetString(h)
	}

	for i := range items {
		row := sheet.AddRow()
		for col, v := range items[i].record() {
			cell := row.AddCell()
			switch col {
			case 5, 6:
				n, _ := strconv.Atoi(v)
				cell.SetInt(n)
			case 7:
				if v == "" {
					continue
				}
				n, _ := strconv.Atoi(v)
				cell.SetInt(n)
			default:
				cell.SetString(v)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}
